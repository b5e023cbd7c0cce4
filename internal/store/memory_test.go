package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"burnbox.dev/internal/models"
)

func testSecret(id string, maxViews int, expiresIn time.Duration) *models.Secret {
	return &models.Secret{
		PublicID:   id,
		Ciphertext: "token-" + id,
		MaxViews:   maxViews,
		Views:      0,
		ExpiresAt:  time.Now().Add(expiresIn),
		CreatedAt:  time.Now(),
	}
}

func TestMemoryViewQuota(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, testSecret("abc", 3, time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for i := 1; i <= 3; i++ {
		got, err := s.View(ctx, "abc")
		if err != nil {
			t.Fatalf("view %d: %v", i, err)
		}
		if got.Views != i {
			t.Fatalf("view %d: views = %d", i, got.Views)
		}
		if got.Ciphertext != "token-abc" {
			t.Fatalf("view %d: ciphertext %q", i, got.Ciphertext)
		}
	}

	if _, err := s.View(ctx, "abc"); !errors.Is(err, ErrExhausted) {
		t.Fatalf("4th view: got %v, want ErrExhausted", err)
	}

	// Exhausted records persist until the sweep.
	got, err := s.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get after exhaustion: %v", err)
	}
	if got.Views != 3 {
		t.Fatalf("views after exhaustion = %d", got.Views)
	}
}

func TestMemoryViewExpired(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, testSecret("old", 3, -time.Second)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := s.View(ctx, "old"); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}

	// The failed view must not have burned a view.
	got, err := s.Get(ctx, "old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Views != 0 {
		t.Fatalf("views = %d after expired view attempt", got.Views)
	}
}

func TestMemoryViewNotFound(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.View(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryConcurrentViewsSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, testSecret("once", 1, time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const viewers = 50
	var wg sync.WaitGroup
	results := make([]error, viewers)

	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.View(ctx, "once")
		}(i)
	}
	wg.Wait()

	won := 0
	for i, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrExhausted):
		default:
			t.Fatalf("viewer %d: unexpected error %v", i, err)
		}
	}
	if won != 1 {
		t.Fatalf("%d viewers succeeded, want exactly 1", won)
	}
}

func TestMemorySweepRespectsGrace(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, testSecret("stale", 1, -25*time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, testSecret("recent", 1, -time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, testSecret("live", 1, time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := s.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d records, want 1", removed)
	}

	if _, err := s.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale record: got %v, want ErrNotFound", err)
	}

	// Within grace: retained but still unreadable.
	if _, err := s.Get(ctx, "recent"); err != nil {
		t.Fatalf("recent record should be retained: %v", err)
	}
	if _, err := s.View(ctx, "recent"); !errors.Is(err, ErrExpired) {
		t.Fatalf("recent record view: got %v, want ErrExpired", err)
	}

	if _, err := s.Get(ctx, "live"); err != nil {
		t.Fatalf("live record should be retained: %v", err)
	}

	// Re-running is harmless.
	removed, err = s.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("second sweep removed %d records", removed)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Save(ctx, testSecret("iso", 5, time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "iso")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Views = 99

	again, err := s.Get(ctx, "iso")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Views != 0 {
		t.Fatal("mutating a returned record leaked into the store")
	}
}
