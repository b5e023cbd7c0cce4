package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"burnbox.dev/config"
	"burnbox.dev/internal/crypto"
	"burnbox.dev/internal/models"
	"burnbox.dev/internal/ratelimit"
	"burnbox.dev/internal/secrets"
	"burnbox.dev/internal/store"
)

type Handler struct {
	service *secrets.Service
	config  *config.Config
	trigger ratelimit.Trigger
}

func NewHandler(svc *secrets.Service, cfg *config.Config, trigger ratelimit.Trigger) *Handler {
	return &Handler{
		service: svc,
		config:  cfg,
		trigger: trigger,
	}
}

type CreateRequest struct {
	Content    string `json:"content"`
	MaxViews   int    `json:"max_views,omitempty"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"`
}

type CreateResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxViews  int       `json:"max_views"`
}

type RevealResponse struct {
	Content        string `json:"content"`
	ViewsRemaining int    `json:"views_remaining"`
}

type StatusResponse struct {
	ID             string    `json:"id"`
	Exists         bool      `json:"exists"`
	Expired        bool      `json:"expired"`
	ViewsRemaining int       `json:"views_remaining,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateSecret(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" {
		h.error(w, http.StatusBadRequest, "content is required")
		return
	}

	maxViews := clamp(
		req.MaxViews,
		h.config.Secrets.DefaultViews,
		h.config.Secrets.MaxViews,
	)

	ttl := clampDuration(
		time.Duration(req.TTLMinutes)*time.Minute,
		h.config.Secrets.DefaultTTL,
		h.config.Secrets.MaxTTL,
	)

	secret, err := h.service.Create(
		r.Context(), h.trigger, clientIP(r),
		[]byte(req.Content), time.Now().Add(ttl), maxViews,
	)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.json(w, http.StatusCreated, CreateResponse{
		ID:        secret.PublicID,
		URL:       h.config.Server.BaseURL + "/api/secrets/" + secret.PublicID,
		ExpiresAt: secret.ExpiresAt,
		MaxViews:  secret.MaxViews,
	})
}

func (h *Handler) RevealSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	content, secret, err := h.service.View(r.Context(), h.trigger, clientIP(r), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.json(w, http.StatusOK, RevealResponse{
		Content:        string(content),
		ViewsRemaining: secret.ViewsRemaining(),
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	secret, err := h.service.Confirm(r.Context(), h.trigger, clientIP(r), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.json(w, http.StatusOK, StatusResponse{ID: id, Exists: false})
			return
		}
		h.handleServiceError(w, err)
		return
	}

	h.json(w, http.StatusOK, statusFor(secret))
}

func statusFor(secret *models.Secret) StatusResponse {
	return StatusResponse{
		ID:             secret.PublicID,
		Exists:         true,
		Expired:        secret.Expired(time.Now()),
		ViewsRemaining: secret.ViewsRemaining(),
		ExpiresAt:      secret.ExpiresAt,
	}
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		h.error(w, http.StatusTooManyRequests, "too many requests, try again later")
	case errors.Is(err, ratelimit.ErrInvalidAction), errors.Is(err, ratelimit.ErrInvalidTrigger):
		h.error(w, http.StatusForbidden, "access denied")
	case errors.Is(err, secrets.ErrInvalidInput):
		h.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		h.error(w, http.StatusNotFound, "secret not found")
	case errors.Is(err, store.ErrExpired):
		h.error(w, http.StatusGone, "secret has expired")
	case errors.Is(err, store.ErrExhausted):
		h.error(w, http.StatusGone, "secret has reached maximum views")
	case errors.Is(err, crypto.ErrDecryptionFailed):
		h.error(w, http.StatusInternalServerError, "stored secret could not be decrypted")
	default:
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}

// clientIP strips the port so one client maps to one rate-limit
// fingerprint. RealIP middleware has already resolved proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clamp(val, defaultVal, maxVal int) int {
	if val <= 0 {
		return defaultVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func clampDuration(val, defaultVal, maxVal time.Duration) time.Duration {
	if val <= 0 {
		return defaultVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
