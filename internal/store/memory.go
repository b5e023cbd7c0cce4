package store

import (
	"context"
	"sync"
	"time"

	"burnbox.dev/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	secrets map[string]*models.Secret
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]*models.Secret)}
}

func (s *MemoryStore) Save(ctx context.Context, secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *secret
	s.secrets[secret.PublicID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *secret
	return &cp, nil
}

func (s *MemoryStore) View(ctx context.Context, id string) (*models.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, ok := s.secrets[id]
	if !ok {
		return nil, ErrNotFound
	}

	if secret.Expired(time.Now()) {
		return nil, ErrExpired
	}

	if secret.Exhausted() {
		return nil, ErrExhausted
	}

	secret.Views++

	cp := *secret
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, id)
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-grace)
	removed := 0
	for id, secret := range s.secrets {
		if !secret.ExpiresAt.After(cutoff) {
			delete(s.secrets, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets = nil
	return nil
}
