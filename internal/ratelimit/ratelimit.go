// Package ratelimit throttles request attempts per action and per
// client using fixed-window counters.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"burnbox.dev/internal/settings"
)

// Action is one of the fixed request kinds subject to independent limits.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionConfirm Action = "confirm"
	ActionView    Action = "view"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxAttempts = 10
)

var (
	ErrInvalidAction  = errors.New("invalid rate limit action")
	ErrInvalidTrigger = errors.New("rate limit check from unauthorized origin")
	ErrRateLimited    = errors.New("too many requests")
)

// Trigger is the capability required to invoke Check. Only the Limiter
// itself mints usable values; the zero Trigger is rejected, so a check
// cannot be reached from anywhere that was not explicitly handed the
// capability.
type Trigger struct {
	l *Limiter
}

// CounterStore persists attempt counters. IncrBelow atomically
// increments the counter unless it already reached limit, starting a new
// window of the given duration when the counter is absent or elapsed.
// It returns the resulting count and whether the increment was applied.
type CounterStore interface {
	IncrBelow(ctx context.Context, key string, limit int, window time.Duration) (int64, bool, error)
	Close() error
}

type Limiter struct {
	counters CounterStore
	options  settings.Store
	salt     []byte
	window   time.Duration
}

func New(counters CounterStore, options settings.Store, salt []byte, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		counters: counters,
		options:  options,
		salt:     salt,
		window:   window,
	}
}

// Trigger mints the capability handed to legitimate internal callers.
func (l *Limiter) Trigger() Trigger {
	return Trigger{l: l}
}

// Check decides whether one more attempt of action by the client at addr
// is allowed, and counts it if so.
//
// The window is a fixed bucket, not a sliding log: a client straddling a
// window boundary can fit close to twice the nominal limit into a short
// span. That slack is accepted; the guarantee is that within any single
// window at most max-attempts calls return nil.
func (l *Limiter) Check(ctx context.Context, t Trigger, action Action, clientAddr string) error {
	if t.l != l {
		return ErrInvalidTrigger
	}
	switch action {
	case ActionSubmit, ActionConfirm, ActionView:
	default:
		return ErrInvalidAction
	}

	enabled, err := settings.Bool(ctx, l.options, settings.KeyRateLimitEnabled, true)
	if err != nil {
		return fmt.Errorf("rate limit toggle: %w", err)
	}
	if !enabled {
		return nil
	}

	max, err := settings.Int(ctx, l.options, settings.KeyRateLimitTries(string(action)), DefaultMaxAttempts)
	if err != nil {
		return fmt.Errorf("rate limit threshold: %w", err)
	}

	key := counterKey(action, l.Fingerprint(clientAddr))
	_, allowed, err := l.counters.IncrBelow(ctx, key, max, l.window)
	if err != nil {
		return fmt.Errorf("rate limit counter: %w", err)
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// Fingerprint pseudonymizes a client address with the server salt. The
// raw address is never persisted.
func (l *Limiter) Fingerprint(clientAddr string) string {
	h := sha256.New()
	h.Write([]byte(clientAddr))
	h.Write(l.salt)
	return hex.EncodeToString(h.Sum(nil))
}

func counterKey(action Action, fingerprint string) string {
	return string(action) + ":" + fingerprint
}
