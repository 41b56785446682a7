package lockout

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"booking-backend/internal/cache"
	"booking-backend/internal/observability"
	"booking-backend/internal/storage"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute

	// Ceiling on any single durable-store call; a hung connection degrades
	// into the transient-failure branch instead of stalling logins.
	DefaultStoreTimeout = 3 * time.Second

	countCachePrefix = "lockout:count:"
	untilCachePrefix = "lockout:until:"
)

// Guard counts failed login attempts per user and enforces a temporary
// lockout once the threshold is reached. The cache carries the hot-path
// counter; the durable row is what other processes — and restarts — see.
type Guard struct {
	store        Store
	cache        cache.Cache
	logger       *observability.Logger
	threshold    int
	duration     time.Duration
	storeTimeout time.Duration
}

func NewGuard(store Store, c cache.Cache, logger *observability.Logger) *Guard {
	return &Guard{
		store:        store,
		cache:        c,
		logger:       logger,
		threshold:    DefaultThreshold,
		duration:     DefaultDuration,
		storeTimeout: DefaultStoreTimeout,
	}
}

func (g *Guard) WithConfig(threshold int, duration time.Duration) *Guard {
	if threshold > 0 {
		g.threshold = threshold
	}
	if duration > 0 {
		g.duration = duration
	}
	return g
}

func (g *Guard) WithStoreTimeout(timeout time.Duration) *Guard {
	if timeout > 0 {
		g.storeTimeout = timeout
	}
	return g
}

func (g *Guard) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.storeTimeout)
}

// RecordFailedAttempt registers one failed login for userID. An already
// locked user gets the existing lock back unchanged; lockouts are not
// extended by continued attack traffic.
func (g *Guard) RecordFailedAttempt(ctx context.Context, userID, source string) (Status, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Status{}, storage.Malformed("record failed attempt", "empty user id")
	}

	now := time.Now().UTC()

	if until, ok := g.cachedLock(ctx, userID, now); ok {
		return Status{Locked: true, LockedUntil: &until}, nil
	}

	localCount := g.cache.Incr(ctx, countCachePrefix+userID, g.duration)

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()
	rec, err := g.store.RecordFailure(storeCtx, userID, source, g.threshold, now.Add(g.duration), now, now.Add(-g.duration))
	if err != nil {
		g.logStoreFailure("record_failed_attempt_store_failed", err)
		count := int(localCount)
		if count < 1 {
			count = 1
		}
		if count >= g.threshold {
			until := now.Add(g.duration)
			g.markLocked(ctx, userID, until, now)
			return Status{Locked: true, LockedUntil: &until}, nil
		}
		return Status{AttemptsRemaining: g.threshold - count}, nil
	}

	count := rec.FailedAttempts
	if int(localCount) > count {
		count = int(localCount)
	}

	if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
		g.markLocked(ctx, userID, *rec.LockedUntil, now)
		return Status{Locked: true, LockedUntil: rec.LockedUntil}, nil
	}

	remaining := g.threshold - count
	if remaining < 0 {
		remaining = 0
	}

	return Status{AttemptsRemaining: remaining}, nil
}

// IsLocked reports whether userID is currently locked out. A cached counter
// at the threshold is confirmed against the durable row, which carries the
// real expiry; when the store is unreachable the guard answers with a local
// now+duration estimate instead of letting a locked user through.
func (g *Guard) IsLocked(ctx context.Context, userID string) (Status, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Status{}, storage.Malformed("check lockout", "empty user id")
	}

	now := time.Now().UTC()

	if until, ok := g.cachedLock(ctx, userID, now); ok {
		return Status{Locked: true, LockedUntil: &until}, nil
	}

	cachedCount := 0
	if value, ok := g.cache.Get(ctx, countCachePrefix+userID); ok {
		cachedCount, _ = strconv.Atoi(value)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()
	rec, err := g.store.Lookup(storeCtx, userID)
	if err != nil {
		g.logStoreFailure("lockout_check_degraded", err)
		// A cached counter at the threshold is trusted whatever the failure
		// kind; a broken store must not let a locked user back in.
		if cachedCount >= g.threshold {
			until := now.Add(g.duration)
			return Status{Locked: true, LockedUntil: &until}, nil
		}
		remaining := g.threshold - cachedCount
		if remaining < 0 {
			remaining = 0
		}
		return Status{AttemptsRemaining: remaining}, nil
	}

	if rec == nil {
		remaining := g.threshold - cachedCount
		if remaining < 0 {
			remaining = 0
		}
		return Status{AttemptsRemaining: remaining}, nil
	}

	if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
		g.markLocked(ctx, userID, *rec.LockedUntil, now)
		return Status{Locked: true, LockedUntil: rec.LockedUntil}, nil
	}

	count := rec.FailedAttempts
	if cachedCount > count {
		count = cachedCount
	}
	remaining := g.threshold - count
	if remaining < 0 {
		remaining = 0
	}

	return Status{AttemptsRemaining: remaining}, nil
}

// Clear wipes the counter and any lock for userID in both tiers. Called
// exactly once per successful login or credential reset. Returns whether the
// durable delete stuck; storage failures never surface.
func (g *Guard) Clear(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, storage.Malformed("clear lockout", "empty user id")
	}

	g.cache.Delete(ctx, countCachePrefix+userID)
	g.cache.Delete(ctx, untilCachePrefix+userID)

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()
	if err := g.store.Clear(storeCtx, userID); err != nil {
		g.logStoreFailure("clear_lockout_store_failed", err)
		return false, nil
	}

	return true, nil
}

func (g *Guard) cachedLock(ctx context.Context, userID string, now time.Time) (time.Time, bool) {
	value, ok := g.cache.Get(ctx, untilCachePrefix+userID)
	if !ok {
		return time.Time{}, false
	}

	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	until := time.UnixMilli(millis).UTC()
	if !now.Before(until) {
		return time.Time{}, false
	}

	return until, true
}

func (g *Guard) markLocked(ctx context.Context, userID string, until, now time.Time) {
	g.cache.Set(ctx, untilCachePrefix+userID, strconv.FormatInt(until.UnixMilli(), 10), until.Sub(now))
}

func (g *Guard) logStoreFailure(message string, err error) {
	kind := storage.KindOf(err)
	if kind == storage.KindNotProvisioned {
		g.logger.WarnOnce(message, map[string]any{"error": err.Error(), "kind": kind.String()})
		return
	}
	if kind == storage.KindUnexpected {
		sentry.CaptureException(err)
	}
	g.logger.Warn(message, map[string]any{"error": err.Error(), "kind": kind.String()})
}
