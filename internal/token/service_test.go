package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-backend/internal/cache"
	"booking-backend/internal/observability"
	"booking-backend/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	tokens  map[string]RevokedToken
	users   map[string]RevokedUser
	failErr error
	lookups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens: make(map[string]RevokedToken),
		users:  make(map[string]RevokedUser),
	}
}

func (f *fakeStore) UpsertRevokedToken(_ context.Context, rec RevokedToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.tokens[rec.TokenHash] = rec
	return nil
}

func (f *fakeStore) LookupRevokedToken(_ context.Context, tokenHash string, now time.Time) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.failErr != nil {
		return nil, f.failErr
	}
	rec, ok := f.tokens[tokenHash]
	if !ok || !now.Before(rec.ExpiresAt) {
		return nil, nil
	}
	expiresAt := rec.ExpiresAt
	return &expiresAt, nil
}

func (f *fakeStore) UpsertRevokedUser(_ context.Context, rec RevokedUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.users[rec.UserID] = rec
	return nil
}

func (f *fakeStore) LookupRevokedUser(_ context.Context, userID string, now time.Time) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.failErr != nil {
		return nil, f.failErr
	}
	rec, ok := f.users[userID]
	if !ok || !now.Before(rec.ExpiresAt) {
		return nil, nil
	}
	expiresAt := rec.ExpiresAt
	return &expiresAt, nil
}

func (f *fakeStore) failWith(kind storage.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = &storage.Error{Kind: kind, Op: "fake", Err: errors.New("injected")}
}

func newTestService(store Store) *Service {
	return NewService(store, cache.NewMemory(), NewRecentSet(100, 50), observability.NewLogger())
}

func TestRevokedTokenStaysRevokedWithoutFastTiers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	svc := newTestService(store)
	persisted, err := svc.RevokeToken(ctx, "tok123", time.Hour, "u1", "logout")
	require.NoError(t, err)
	assert.True(t, persisted)

	// A fresh service over the same store simulates losing every
	// process-local tier: the durable row alone must reproduce the result.
	cold := newTestService(store)
	revoked, err := cold.IsTokenRevoked(ctx, "tok123")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokeTokenSurvivesStoreOutageInProcess(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failWith(storage.KindTransient)

	svc := newTestService(store)
	persisted, err := svc.RevokeToken(ctx, "tok123", time.Hour, "u1", "logout")
	require.NoError(t, err)
	assert.False(t, persisted)

	// Same process still rejects the token through the recent set.
	revoked, err := svc.IsTokenRevoked(ctx, "tok123")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	_, err := svc.RevokeToken(ctx, "tok123", 10*time.Millisecond, "", "logout")
	require.NoError(t, err)

	revoked, err := svc.IsTokenRevoked(ctx, "tok123")
	require.NoError(t, err)
	assert.True(t, revoked)

	time.Sleep(30 * time.Millisecond)

	revoked, err = svc.IsTokenRevoked(ctx, "tok123")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenCheckFailureAsymmetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient fails open", func(t *testing.T) {
		store := newFakeStore()
		store.failWith(storage.KindTransient)

		revoked, err := newTestService(store).IsTokenRevoked(ctx, "tok123")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("unprovisioned fails open", func(t *testing.T) {
		store := newFakeStore()
		store.failWith(storage.KindNotProvisioned)

		revoked, err := newTestService(store).IsTokenRevoked(ctx, "tok123")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("unexpected fails closed", func(t *testing.T) {
		store := newFakeStore()
		store.failWith(storage.KindUnexpected)

		revoked, err := newTestService(store).IsTokenRevoked(ctx, "tok123")
		require.NoError(t, err)
		assert.True(t, revoked)
	})
}

func TestUserCheckFailsOpenOnUnexpected(t *testing.T) {
	// The user-wide check deliberately keeps the opposite bias of the token
	// check for unclassified failures.
	ctx := context.Background()
	store := newFakeStore()
	store.failWith(storage.KindUnexpected)

	revoked, err := newTestService(store).IsUserRevoked(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeUserLatestExpiryWins(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.RevokeUser(ctx, "u1", time.Minute, "password_change")
	require.NoError(t, err)
	first := store.users["u1"].ExpiresAt

	_, err = svc.RevokeUser(ctx, "u1", time.Hour, "deactivated")
	require.NoError(t, err)
	second := store.users["u1"].ExpiresAt

	assert.True(t, second.After(first))
	assert.Equal(t, "deactivated", store.users["u1"].Reason)

	revoked, err := svc.IsUserRevoked(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestDurableHitBackfillsFastTiers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	warm := newTestService(store)
	_, err := warm.RevokeToken(ctx, "tok123", time.Hour, "", "logout")
	require.NoError(t, err)

	cold := newTestService(store)
	revoked, err := cold.IsTokenRevoked(ctx, "tok123")
	require.NoError(t, err)
	require.True(t, revoked)
	lookupsAfterFirst := store.lookups

	// Second check must be served by the backfilled tiers.
	revoked, err = cold.IsTokenRevoked(ctx, "tok123")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, lookupsAfterFirst, store.lookups)
}

func TestMalformedInputShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.IsTokenRevoked(ctx, "   ")
	require.Error(t, err)
	assert.Equal(t, storage.KindMalformed, storage.KindOf(err))

	_, err = svc.RevokeUser(ctx, "", time.Hour, "x")
	require.Error(t, err)
	assert.Equal(t, storage.KindMalformed, storage.KindOf(err))

	assert.Zero(t, store.lookups)
}

type hangingStore struct{}

func (hangingStore) UpsertRevokedToken(ctx context.Context, _ RevokedToken) error {
	<-ctx.Done()
	return storage.NewError("upsert revoked token", ctx.Err())
}

func (hangingStore) LookupRevokedToken(ctx context.Context, _ string, _ time.Time) (*time.Time, error) {
	<-ctx.Done()
	return nil, storage.NewError("lookup revoked token", ctx.Err())
}

func (hangingStore) UpsertRevokedUser(ctx context.Context, _ RevokedUser) error {
	<-ctx.Done()
	return storage.NewError("upsert revoked user", ctx.Err())
}

func (hangingStore) LookupRevokedUser(ctx context.Context, _ string, _ time.Time) (*time.Time, error) {
	<-ctx.Done()
	return nil, storage.NewError("lookup revoked user", ctx.Err())
}

func TestHungStoreDegradesWithinTimeout(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(hangingStore{}).WithStoreTimeout(25 * time.Millisecond)

	start := time.Now()

	// The durable lookup times out and classifies as transient: fail open.
	revoked, err := svc.IsTokenRevoked(ctx, "tok123")
	require.NoError(t, err)
	assert.False(t, revoked)

	userRevoked, err := svc.IsUserRevoked(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, userRevoked)

	// Writes return too, reporting the durable write as lost.
	persisted, err := svc.RevokeToken(ctx, "tok123", time.Hour, "u1", "logout")
	require.NoError(t, err)
	assert.False(t, persisted)

	persisted, err = svc.RevokeUser(ctx, "u1", time.Hour, "compromise")
	require.NoError(t, err)
	assert.False(t, persisted)

	assert.Less(t, time.Since(start), time.Second)
}
