package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/fluentvoice/server/domain/repositories"
)

type record struct {
	value     []byte
	list      [][]byte
	isList    bool
	expiresAt time.Time
}

func (r *record) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && now.After(r.expiresAt)
}

// Store is an in-memory EphemeralStore with per-key expiry. It backs local
// development and tests when no Redis instance is configured.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

func (s *Store) get(key string) (*record, bool) {
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	if rec.expired(time.Now()) {
		delete(s.records, key)
		return nil, false
	}
	return rec, true
}

// Set implements repositories.EphemeralStore.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	s.records[key] = &record{value: buf, expiresAt: deadline(ttl)}
	return nil
}

// Get implements repositories.EphemeralStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.get(key)
	if !ok || rec.isList {
		return nil, repositories.ErrKeyNotFound
	}

	buf := make([]byte, len(rec.value))
	copy(buf, rec.value)
	return buf, nil
}

// Delete implements repositories.EphemeralStore.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.records, key)
	}
	return nil
}

// RightPush implements repositories.EphemeralStore.
func (s *Store) RightPush(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)

	rec, ok := s.get(key)
	if !ok || !rec.isList {
		rec = &record{isList: true}
		s.records[key] = rec
	}
	rec.list = append(rec.list, buf)
	rec.expiresAt = deadline(ttl)
	return nil
}

// ListRange implements repositories.EphemeralStore.
func (s *Store) ListRange(ctx context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.get(key)
	if !ok || !rec.isList {
		return nil, nil
	}

	out := make([][]byte, len(rec.list))
	for i, v := range rec.list {
		buf := make([]byte, len(v))
		copy(buf, v)
		out[i] = buf
	}
	return out, nil
}

// Keys implements repositories.EphemeralStore.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var keys []string
	for key, rec := range s.records {
		if rec.expired(now) {
			delete(s.records, key)
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Expire implements repositories.EphemeralStore.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.get(key)
	if !ok {
		return nil
	}
	rec.expiresAt = deadline(ttl)
	return nil
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
