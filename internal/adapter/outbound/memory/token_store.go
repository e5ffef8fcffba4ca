package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/token"
)

// TokenStore is an in-memory implementation of token.Store: a process-wide
// set of opaque tokens with expiry, written by the shell-gate and read by
// the HTTP proxy.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Mint generates a new token with token.DefaultTTL and inserts it.
func (s *TokenStore) Mint(_ context.Context) (token.Token, error) {
	value, err := newTokenValue()
	if err != nil {
		return token.Token{}, err
	}

	t := token.Token{
		Value:     value,
		ExpiresAt: s.now().Add(token.DefaultTTL),
	}

	s.mu.Lock()
	s.tokens[t.Value] = t.ExpiresAt
	s.mu.Unlock()

	return t, nil
}

// AnyValid reports whether any unexpired token exists, pruning expired
// entries as a side effect.
func (s *TokenStore) AnyValid(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	return len(s.tokens) > 0
}

// Sweep discards entries past their expiry.
func (s *TokenStore) Sweep(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
}

// Count returns the number of currently valid tokens, pruning expired
// entries as a side effect.
func (s *TokenStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.tokens)
}

func (s *TokenStore) pruneLocked(now time.Time) {
	for v, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, v)
		}
	}
}

func newTokenValue() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "tok_" + hex.EncodeToString(buf), nil
}
