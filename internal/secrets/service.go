// Package secrets ties the lifecycle together: rate checks in front of
// every path, encryption at rest, quota enforcement in the store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"burnbox.dev/internal/crypto"
	"burnbox.dev/internal/models"
	"burnbox.dev/internal/ratelimit"
	"burnbox.dev/internal/settings"
	"burnbox.dev/internal/store"
)

var ErrInvalidInput = errors.New("invalid secret parameters")

type Service struct {
	store   store.Store
	manager *crypto.Manager
	limiter *ratelimit.Limiter
	options settings.Store
	grace   time.Duration
}

func NewService(st store.Store, m *crypto.Manager, l *ratelimit.Limiter, options settings.Store, grace time.Duration) *Service {
	return &Service{
		store:   st,
		manager: m,
		limiter: l,
		options: options,
		grace:   grace,
	}
}

// Create encrypts plaintext and persists a new record, returning it with
// its freshly assigned public id. The expiration must be in the future
// and maxViews at least 1; both are fixed for the record's lifetime.
func (s *Service) Create(ctx context.Context, t ratelimit.Trigger, clientAddr string, plaintext []byte, expiresAt time.Time, maxViews int) (*models.Secret, error) {
	if err := s.limiter.Check(ctx, t, ratelimit.ActionSubmit, clientAddr); err != nil {
		return nil, err
	}

	if maxViews < 1 {
		return nil, fmt.Errorf("%w: max views must be at least 1", ErrInvalidInput)
	}
	if !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expiration must be in the future", ErrInvalidInput)
	}

	ciphertext, err := s.manager.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting secret: %w", err)
	}

	secret := &models.Secret{
		PublicID:   uuid.NewString(),
		Ciphertext: ciphertext,
		MaxViews:   maxViews,
		Views:      0,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
	}

	if err := s.store.Save(ctx, secret); err != nil {
		return nil, fmt.Errorf("saving secret: %w", err)
	}

	// Usage counters are best effort; a broken stats write must not fail
	// the request.
	_, _ = s.options.Incr(ctx, settings.KeyStatsTotalSecrets)

	return secret, nil
}

// View burns one view and returns the plaintext with the post-increment
// record state. Store sentinels (ErrNotFound, ErrExpired, ErrExhausted)
// and crypto.ErrDecryptionFailed propagate unchanged.
func (s *Service) View(ctx context.Context, t ratelimit.Trigger, clientAddr, publicID string) ([]byte, *models.Secret, error) {
	if err := s.limiter.Check(ctx, t, ratelimit.ActionView, clientAddr); err != nil {
		return nil, nil, err
	}

	secret, err := s.store.View(ctx, publicID)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := s.manager.Decrypt(secret.Ciphertext)
	if err != nil {
		return nil, nil, err
	}

	_, _ = s.options.Incr(ctx, settings.KeyStatsTotalViews)

	return plaintext, secret, nil
}

// Confirm is the read-only peek backing the creation-confirmation page:
// record state without burning a view.
func (s *Service) Confirm(ctx context.Context, t ratelimit.Trigger, clientAddr, publicID string) (*models.Secret, error) {
	if err := s.limiter.Check(ctx, t, ratelimit.ActionConfirm, clientAddr); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, publicID)
}

// Sweep removes records past expiration plus the configured grace
// period. Invoked by the host's scheduler; always safe to re-run.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.store.Sweep(ctx, s.grace)
}

// EncryptionAvailable reports whether payloads are actually encrypted at
// rest, for operator-facing warnings about degraded mode.
func (s *Service) EncryptionAvailable() bool {
	return s.manager.Available()
}
