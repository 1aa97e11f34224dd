// Package idempotency remembers the outcome of already-processed requests so
// redelivered messages can be answered without re-running side effects.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

const DefaultTTL = 24 * time.Hour

// Store keeps opaque response payloads by key for a bounded time.
type Store interface {
	// Get returns the stored payload and true when key has been recorded.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put records payload under key unless one is already present.
	// It reports whether this call stored the value.
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) (bool, error)
}

// Key builds the store key for a (scope, user, message) triple. The message id
// is hashed so arbitrary client ids stay within key limits.
func Key(scope, userID, messageID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(messageID)))
	return fmt.Sprintf("%s:%s:%s", scope, strings.TrimSpace(userID), hex.EncodeToString(sum[:16]))
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns a process-local Store. Expired entries are purged lazily on access.
func NewMemoryStore() Store {
	return &memoryStore{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true, nil
}

func (s *memoryStore) Put(_ context.Context, key string, payload []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && (e.expiresAt.IsZero() || !now.After(e.expiresAt)) {
		return false, nil
	}
	if len(s.entries) > 0 && len(s.entries)%1024 == 0 {
		s.sweepLocked(now)
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.entries[key] = memoryEntry{payload: cp, expiresAt: exp}
	return true, nil
}

func (s *memoryStore) sweepLocked(now time.Time) {
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
