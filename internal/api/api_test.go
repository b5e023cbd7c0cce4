package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"burnbox.dev/config"
	"burnbox.dev/internal/crypto"
	"burnbox.dev/internal/ratelimit"
	"burnbox.dev/internal/secrets"
	"burnbox.dev/internal/settings"
	"burnbox.dev/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, settings.Store) {
	t.Helper()

	cfg := config.Default()
	options := settings.NewMemoryStore()

	manager, err := crypto.NewManager(context.Background(), options, "")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	limiter := ratelimit.New(ratelimit.NewMemoryCounters(), options, []byte("test salt"), time.Minute)
	svc := secrets.NewService(store.NewMemoryStore(), manager, limiter, options, cfg.Secrets.SweepGrace)

	ts := httptest.NewServer(SetupRouter(svc, cfg, limiter.Trigger()))
	t.Cleanup(ts.Close)
	return ts, options
}

func httpJSON(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode json: %v", err)
		}
	}
	req, _ := http.NewRequest(method, ts.URL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http do: %v", err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response, out *T) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func TestCreateRevealAndBurn(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := httpJSON(t, ts, "POST", "/api/secrets", CreateRequest{
		Content:    "top secret",
		MaxViews:   1,
		TTLMinutes: 60,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created CreateResponse
	decodeJSON(t, resp, &created)
	if created.ID == "" || created.URL == "" {
		t.Fatalf("incomplete create response: %+v", created)
	}

	resp = httpJSON(t, ts, "GET", "/api/secrets/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reveal: expected 200, got %d", resp.StatusCode)
	}
	var revealed RevealResponse
	decodeJSON(t, resp, &revealed)
	if revealed.Content != "top secret" {
		t.Fatalf("revealed content %q", revealed.Content)
	}
	if revealed.ViewsRemaining != 0 {
		t.Fatalf("views remaining = %d, want 0", revealed.ViewsRemaining)
	}

	// The only view is spent; the record is burned for reading but its
	// status stays queryable until the sweep.
	resp = httpJSON(t, ts, "GET", "/api/secrets/"+created.ID, nil)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("second reveal: expected 410, got %d", resp.StatusCode)
	}

	resp = httpJSON(t, ts, "GET", "/api/secrets/"+created.ID+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", resp.StatusCode)
	}
	var status StatusResponse
	decodeJSON(t, resp, &status)
	if !status.Exists || status.ViewsRemaining != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStatusForMissingSecret(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := httpJSON(t, ts, "GET", "/api/secrets/does-not-exist/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status StatusResponse
	decodeJSON(t, resp, &status)
	if status.Exists {
		t.Fatal("missing secret reported as existing")
	}
}

func TestRevealMissingSecret(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := httpJSON(t, ts, "GET", "/api/secrets/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := httpJSON(t, ts, "POST", "/api/secrets", CreateRequest{Content: ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty content: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Non-JSON bodies are refused outright.
	req, _ := http.NewRequest("POST", ts.URL+"/api/secrets", bytes.NewBufferString("content=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http do: %v", err)
	}
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("form body: expected 415, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestViewRateLimitReturns429(t *testing.T) {
	ts, options := newTestServer(t)

	if err := options.Set(context.Background(), settings.KeyRateLimitTries("view"), "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	resp := httpJSON(t, ts, "POST", "/api/secrets", CreateRequest{
		Content:  "limited",
		MaxViews: 10,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created CreateResponse
	decodeJSON(t, resp, &created)

	for i := 0; i < 2; i++ {
		resp = httpJSON(t, ts, "GET", "/api/secrets/"+created.ID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("reveal %d: expected 200, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp = httpJSON(t, ts, "GET", "/api/secrets/"+created.ID, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("throttled reveal: expected 429, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("http get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.StatusCode)
	}
}
