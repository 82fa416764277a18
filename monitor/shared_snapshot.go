package monitor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SharedSnapshot is a Snapshot used by several chain monitors at once.
// Concurrent updates are coalesced into a single refresh, and a refresh finished less than
// maxAge ago satisfies later callers without touching the chain again.
type SharedSnapshot struct {
	snapshot Snapshot
	maxAge   time.Duration
	group    singleflight.Group

	mu        sync.Mutex
	updatedAt time.Time
}

func NewSharedSnapshot(snapshot Snapshot, maxAge time.Duration) *SharedSnapshot {
	return &SharedSnapshot{
		snapshot: snapshot,
		maxAge:   maxAge,
	}
}

func (s *SharedSnapshot) fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxAge > 0 && !s.updatedAt.IsZero() && time.Since(s.updatedAt) < s.maxAge
}

func (s *SharedSnapshot) Update(ctx context.Context) error {
	if s.fresh() {
		return nil
	}
	_, err, _ := s.group.Do("update", func() (interface{}, error) {
		if s.fresh() {
			return nil, nil
		}
		if err := s.snapshot.Update(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.updatedAt = time.Now()
		s.mu.Unlock()
		return nil, nil
	})
	return err
}
