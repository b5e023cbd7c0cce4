package models

import "time"

// Secret is one shareable record. PublicID is the externally shared
// identifier; Ciphertext is the encoded token produced by the encryption
// manager (or raw plaintext when encryption is unavailable).
type Secret struct {
	PublicID   string    `json:"public_id"`
	Ciphertext string    `json:"-"`
	MaxViews   int       `json:"max_views"`
	Views      int       `json:"views"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Secret) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Secret) Exhausted() bool {
	return s.Views >= s.MaxViews
}

func (s *Secret) ViewsRemaining() int {
	if n := s.MaxViews - s.Views; n > 0 {
		return n
	}
	return 0
}
