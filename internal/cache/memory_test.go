package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok := m.Get(ctx, "missing")
	assert.False(t, ok)

	m.Set(ctx, "k", "v", time.Minute)
	got, ok := m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	m.Set(ctx, "k", "v2", time.Minute)
	got, _ = m.Get(ctx, "k")
	assert.Equal(t, "v2", got)

	m.Delete(ctx, "k")
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryEntriesExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryIgnoresNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "k", "v", 0)
	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryIncrCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.Equal(t, int64(1), m.Incr(ctx, "counter", time.Minute))
	assert.Equal(t, int64(2), m.Incr(ctx, "counter", time.Minute))
	assert.Equal(t, int64(3), m.Incr(ctx, "counter", time.Minute))
}

func TestMemoryIncrWindowAnchoredAtFirstIncrement(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Incr(ctx, "counter", 20*time.Millisecond)
	time.Sleep(12 * time.Millisecond)

	// Still inside the original window; the increment must not extend it.
	assert.Equal(t, int64(2), m.Incr(ctx, "counter", 20*time.Millisecond))
	time.Sleep(12 * time.Millisecond)

	// Past the window opened by the first increment, the counter restarts.
	assert.Equal(t, int64(1), m.Incr(ctx, "counter", 20*time.Millisecond))
}

func TestMemoryIncrExpiredCounterRestarts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Incr(ctx, "counter", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	assert.Equal(t, int64(1), m.Incr(ctx, "counter", 10*time.Millisecond))
}

func TestMemoryStaysBoundedUnderLiveEntries(t *testing.T) {
	ctx := context.Background()
	m := &Memory{entries: make(map[string]memoryEntry), maxEntries: 4}

	for i := 0; i < 8; i++ {
		m.Set(ctx, fmt.Sprintf("k%d", i), "v", time.Duration(i+1)*time.Hour)
	}

	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()
	assert.LessOrEqual(t, size, 4)

	// Entries closest to expiry went first; the latest-expiring ones stay.
	_, ok := m.Get(ctx, "k7")
	assert.True(t, ok)
	_, ok = m.Get(ctx, "k0")
	assert.False(t, ok)
}
