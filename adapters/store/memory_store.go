package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/evmauth/ports"
)

// MemoryStore is an in-memory revocation list. Expired revocations are
// dropped lazily on lookup
type MemoryStore struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return &MemoryStore{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// InvalidateToken revokes tokenID for the given duration
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := s.now().Add(expiry)
	if current, ok := s.revoked[tokenID]; ok && current.After(until) {
		return nil
	}
	s.revoked[tokenID] = until
	return nil
}

// IsTokenInvalidated reports whether tokenID is currently revoked
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	until, exists := s.revoked[tokenID]
	s.mu.RUnlock()
	if !exists {
		return false, nil
	}

	if s.now().Before(until) {
		return true, nil
	}

	s.mu.Lock()
	if current, ok := s.revoked[tokenID]; ok && !s.now().Before(current) {
		delete(s.revoked, tokenID)
	}
	s.mu.Unlock()
	return false, nil
}
