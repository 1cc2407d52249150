package cache

import (
	"context"
	"sync"
	"time"

	"sensor-anomaly/internal/models"
)

type memoryEntry struct {
	reading  models.Reading
	storedAt time.Time
}

// MemoryStore is the in-process counterpart of RedisStore, used when Redis is
// disabled. It keeps at most maxRecent readings, each for at most ttl.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   []memoryEntry // oldest first
	ttl       time.Duration
	maxRecent int64
	now       func() time.Time
}

func NewMemoryStore(ttl time.Duration, maxRecent int64) *MemoryStore {
	return &MemoryStore{
		entries:   make([]memoryEntry, 0, 1024),
		ttl:       ttl,
		maxRecent: maxRecent,
		now:       time.Now,
	}
}

func (s *MemoryStore) StoreReading(_ context.Context, r models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, memoryEntry{reading: r, storedAt: s.now()})
	if over := int64(len(s.entries)) - s.maxRecent; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

// RecentReadings returns up to count unexpired readings, newest first.
func (s *MemoryStore) RecentReadings(_ context.Context, count int64) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > s.maxRecent {
		count = s.maxRecent
	}

	now := s.now()
	out := make([]models.Reading, 0, min(count, int64(len(s.entries))))
	for i := len(s.entries) - 1; i >= 0 && int64(len(out)) < count; i-- {
		e := s.entries[i]
		if s.ttl > 0 && now.Sub(e.storedAt) > s.ttl {
			continue
		}
		out = append(out, e.reading)
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
