// Package settings is the runtime key-value options store: toggles and
// limits an operator can change without a restart, the internally
// generated encryption key, and usage counters.
package settings

import (
	"context"
	"errors"
	"strconv"
)

var ErrNotSet = errors.New("setting not set")

// Recognized option keys.
const (
	KeyRateLimitEnabled  = "rate_limit_enabled"
	KeyEncryptionKey     = "encryption_key"
	KeyFirstRunCompleted = "first_run_completed"
	KeyStatsTotalSecrets = "stats_total_secrets"
	KeyStatsTotalViews   = "stats_total_views"
)

// KeyRateLimitTries returns the per-action attempt-limit key, e.g.
// "rate_limit_tries_view".
func KeyRateLimitTries(action string) string {
	return "rate_limit_tries_" + action
}

type Store interface {
	// Get returns ErrNotSet when the key has no value.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetNX sets the key only if it has no value yet and reports whether
	// this call performed the write.
	SetNX(ctx context.Context, key, value string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Close() error
}

// Bool reads a boolean option, falling back to def when unset or
// unparsable. A store error is returned alongside the fallback so callers
// can decide whether a broken backend is fatal.
func Bool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotSet) {
			return def, nil
		}
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

// Int reads an integer option with the same fallback rules as Bool.
func Int(ctx context.Context, s Store, key string, def int) (int, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotSet) {
			return def, nil
		}
		return def, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, nil
	}
	return n, nil
}
