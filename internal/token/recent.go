package token

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

const (
	DefaultHighWater     = 10000
	DefaultTargetSize    = 5000
	DefaultSweepInterval = time.Hour
)

type recentEntry struct {
	hash      string
	expiresAt time.Time
}

type expiryHeap []recentEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(recentEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// RecentSet holds the digests of recently revoked tokens so the hot check
// path never touches cache or database for them. It is bounded: a sweep
// drops expired digests and, past the high-water mark, evicts the
// earliest-expiring ones down to the target size. Evicted digests fall back
// to the cache and durable tiers, so eviction costs latency, not correctness.
type RecentSet struct {
	mu        sync.Mutex
	expiries  map[string]time.Time
	order     expiryHeap
	highWater int
	target    int
}

func NewRecentSet(highWater, target int) *RecentSet {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	if target <= 0 || target > highWater {
		target = highWater / 2
	}

	return &RecentSet{
		expiries:  make(map[string]time.Time),
		highWater: highWater,
		target:    target,
	}
}

func (s *RecentSet) Add(hash string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.expiries[hash]
	if ok && !existing.Before(expiresAt) {
		return
	}
	// A re-revocation leaves a stale heap entry behind; sweeps skip entries
	// whose expiry no longer matches the map.
	s.expiries[hash] = expiresAt
	heap.Push(&s.order, recentEntry{hash: hash, expiresAt: expiresAt})
}

func (s *RecentSet) Contains(hash string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.expiries[hash]
	return ok && now.Before(expiresAt)
}

func (s *RecentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.expiries)
}

// Sweep drops expired digests, then evicts the earliest-expiring live ones
// until the set is back at the target size.
func (s *RecentSet) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.order.Len() > 0 {
		head := s.order[0]
		live, ok := s.expiries[head.hash]
		if ok && live.Equal(head.expiresAt) && now.Before(head.expiresAt) {
			break
		}
		heap.Pop(&s.order)
		if ok && live.Equal(head.expiresAt) {
			delete(s.expiries, head.hash)
		}
	}

	if len(s.expiries) <= s.highWater {
		return
	}
	for s.order.Len() > 0 && len(s.expiries) > s.target {
		head := heap.Pop(&s.order).(recentEntry)
		live, ok := s.expiries[head.hash]
		if ok && live.Equal(head.expiresAt) {
			delete(s.expiries, head.hash)
		}
	}
}

// Run sweeps on a fixed interval until the context is cancelled. It is the
// only background task the subsystem owns and never blocks request paths;
// callers start it once from the composition root.
func (s *RecentSet) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now.UTC())
		}
	}
}
