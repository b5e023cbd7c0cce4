package store

import (
	"context"
	"errors"
	"time"

	"burnbox.dev/internal/models"
)

var (
	ErrNotFound  = errors.New("secret not found")
	ErrExpired   = errors.New("secret has expired")
	ErrExhausted = errors.New("secret has reached maximum views")
)

// Store persists secret records and enforces their lifecycle. View is
// the only mutator of a live record and must perform its check and
// increment as one atomic step: with K concurrent Views of a record that
// has one view left, exactly one call succeeds. Expired and exhausted
// records stay in place, unreadable, until Sweep removes them.
type Store interface {
	Save(ctx context.Context, secret *models.Secret) error
	Get(ctx context.Context, id string) (*models.Secret, error)
	View(ctx context.Context, id string) (*models.Secret, error)
	Delete(ctx context.Context, id string) error
	// Sweep deletes every record whose expiration lies more than grace in
	// the past and returns how many were removed. Safe to re-run and to
	// run concurrently with reads and writes.
	Sweep(ctx context.Context, grace time.Duration) (int, error)
	Close() error
}
