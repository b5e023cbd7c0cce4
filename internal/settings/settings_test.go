package settings

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
	}
}

func TestGetSetSetNX(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "absent"); !errors.Is(err, ErrNotSet) {
				t.Fatalf("got %v, want ErrNotSet", err)
			}

			if err := s.Set(ctx, "k", "v1"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if v, err := s.Get(ctx, "k"); err != nil || v != "v1" {
				t.Fatalf("Get: %q, %v", v, err)
			}

			// SetNX must not overwrite.
			set, err := s.SetNX(ctx, "k", "v2")
			if err != nil {
				t.Fatalf("SetNX: %v", err)
			}
			if set {
				t.Fatal("SetNX overwrote an existing value")
			}
			if v, _ := s.Get(ctx, "k"); v != "v1" {
				t.Fatalf("value changed to %q", v)
			}

			set, err = s.SetNX(ctx, "fresh", "v3")
			if err != nil {
				t.Fatalf("SetNX: %v", err)
			}
			if !set {
				t.Fatal("SetNX refused to set a fresh key")
			}
		})
	}
}

func TestIncr(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				n, err := s.Incr(ctx, "counter")
				if err != nil {
					t.Fatalf("Incr: %v", err)
				}
				if n != want {
					t.Fatalf("Incr = %d, want %d", n, want)
				}
			}
		})
	}
}

func TestTypedHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if v, err := Bool(ctx, s, "missing", true); err != nil || !v {
		t.Fatalf("Bool default: %v, %v", v, err)
	}
	if v, err := Int(ctx, s, "missing", 10); err != nil || v != 10 {
		t.Fatalf("Int default: %v, %v", v, err)
	}

	s.Set(ctx, "flag", "false")
	if v, _ := Bool(ctx, s, "flag", true); v {
		t.Fatal("Bool ignored the stored value")
	}

	s.Set(ctx, "n", "42")
	if v, _ := Int(ctx, s, "n", 10); v != 42 {
		t.Fatalf("Int = %d, want 42", v)
	}

	// Garbage falls back to the default rather than failing the caller.
	s.Set(ctx, "junk", "not a number")
	if v, err := Int(ctx, s, "junk", 7); err != nil || v != 7 {
		t.Fatalf("Int on garbage: %v, %v", v, err)
	}
}
