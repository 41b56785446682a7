package token

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecentSetExpiry(t *testing.T) {
	now := time.Now().UTC()
	set := NewRecentSet(100, 50)

	set.Add("a", now.Add(time.Minute))
	assert.True(t, set.Contains("a", now))
	assert.False(t, set.Contains("a", now.Add(2*time.Minute)))
	assert.False(t, set.Contains("b", now))
}

func TestRecentSetLatestExpiryWins(t *testing.T) {
	now := time.Now().UTC()
	set := NewRecentSet(100, 50)

	set.Add("a", now.Add(time.Minute))
	set.Add("a", now.Add(time.Hour))
	// An earlier re-add must not shorten the window.
	set.Add("a", now.Add(time.Second))

	assert.True(t, set.Contains("a", now.Add(30*time.Minute)))
	assert.Equal(t, 1, set.Len())
}

func TestSweepDropsExpired(t *testing.T) {
	now := time.Now().UTC()
	set := NewRecentSet(100, 50)

	set.Add("dead", now.Add(-time.Minute))
	set.Add("live", now.Add(time.Hour))

	set.Sweep(now)

	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Contains("live", now))
}

func TestSweepEvictsDownToTargetPastHighWater(t *testing.T) {
	now := time.Now().UTC()
	set := NewRecentSet(10, 4)

	for i := 0; i < 12; i++ {
		set.Add(fmt.Sprintf("h%02d", i), now.Add(time.Duration(i+1)*time.Minute))
	}

	set.Sweep(now)

	assert.Equal(t, 4, set.Len())
	// The survivors are the latest-expiring entries; the evicted ones fall
	// back to the slower tiers.
	assert.True(t, set.Contains("h11", now))
	assert.True(t, set.Contains("h08", now))
	assert.False(t, set.Contains("h00", now))
}

func TestSweepBelowHighWaterKeepsEverything(t *testing.T) {
	now := time.Now().UTC()
	set := NewRecentSet(10, 4)

	for i := 0; i < 8; i++ {
		set.Add(fmt.Sprintf("h%02d", i), now.Add(time.Hour))
	}

	set.Sweep(now)

	assert.Equal(t, 8, set.Len())
}

func TestHashIsDeterministic(t *testing.T) {
	assert.Equal(t, Hash("tok123"), Hash("tok123"))
	assert.NotEqual(t, Hash("tok123"), Hash("tok124"))
	assert.Len(t, Hash("tok123"), 64)
}
