package cache

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

const defaultMaxEntries = 50000

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Cache backed by a mutex-guarded map. Expired
// entries are dropped lazily on read and wholesale once the map grows past
// maxEntries.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
}

func NewMemory() *Memory {
	return &Memory{
		entries:    make(map[string]memoryEntry),
		maxEntries: defaultMaxEntries,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		if current, still := m.entries[key]; still && time.Now().After(current.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false
	}

	return entry.value, true
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	m.evictExpiredLocked()
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) int64 {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || now.After(entry.expiresAt) {
		m.entries[key] = memoryEntry{value: "1", expiresAt: now.Add(ttl)}
		m.evictExpiredLocked()
		return 1
	}

	count, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		count = 0
	}
	count++
	// Keep the original expiry so the counter's window is anchored at the
	// first increment, not the most recent one.
	m.entries[key] = memoryEntry{value: strconv.FormatInt(count, 10), expiresAt: entry.expiresAt}

	return count
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
}

func (m *Memory) evictExpiredLocked() {
	if len(m.entries) <= m.maxEntries {
		return
	}

	now := time.Now()
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}

	over := len(m.entries) - m.maxEntries
	if over <= 0 {
		return
	}

	// Still past the cap with only live entries: shed the ones closest to
	// expiry. Dropping a live cache entry is safe; the durable store stays
	// authoritative and the next lookup backfills.
	type keyed struct {
		key       string
		expiresAt time.Time
	}
	candidates := make([]keyed, 0, len(m.entries))
	for key, entry := range m.entries {
		candidates = append(candidates, keyed{key: key, expiresAt: entry.expiresAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].expiresAt.Before(candidates[j].expiresAt)
	})
	for _, candidate := range candidates[:over] {
		delete(m.entries, candidate.key)
	}
}
