package token

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
	DefaultRevocationTTL = 30 * 24 * time.Hour

	// Ceiling on any single durable-store call. A hung connection must
	// surface as a transient failure, not block the caller.
	DefaultStoreTimeout = 3 * time.Second

	tokenCachePrefix = "revoked:token:"
	userCachePrefix  = "revoked:user:"
)

// Service decides whether a bearer token, or every token of a user, has been
// revoked before its natural expiry. Lookups go through three tiers: the
// in-process recent set, the cache, then the durable store; writes go to all
// three but only the durable store is authoritative across processes.
type Service struct {
	store        Store
	cache        cache.Cache
	recent       *RecentSet
	logger       *observability.Logger
	defaultTTL   time.Duration
	storeTimeout time.Duration
}

func NewService(store Store, c cache.Cache, recent *RecentSet, logger *observability.Logger) *Service {
	return &Service{
		store:        store,
		cache:        c,
		recent:       recent,
		logger:       logger,
		defaultTTL:   DefaultRevocationTTL,
		storeTimeout: DefaultStoreTimeout,
	}
}

func (s *Service) WithDefaultTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.defaultTTL = ttl
	}
	return s
}

func (s *Service) WithStoreTimeout(timeout time.Duration) *Service {
	if timeout > 0 {
		s.storeTimeout = timeout
	}
	return s
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// RevokeToken marks a single token unusable for ttl. The returned flag
// reports whether the durable write stuck; the in-process tiers are updated
// either way, so the caller's logout path never fails on a storage outage.
func (s *Service) RevokeToken(ctx context.Context, rawToken string, ttl time.Duration, userID, reason string) (bool, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return false, storage.Malformed("revoke token", "empty token")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	hash := Hash(rawToken)

	s.recent.Add(hash, expiresAt)
	s.cache.Set(ctx, tokenCachePrefix+hash, formatExpiry(expiresAt), ttl)

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	err := s.store.UpsertRevokedToken(storeCtx, RevokedToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
	})
	if err != nil {
		s.logWriteFailure("revoke_token_store_failed", err)
		return false, nil
	}

	return true, nil
}

// RevokeUser marks every token issued to userID unusable until ttl elapses.
// One row per user; a newer revocation replaces the previous expiry.
func (s *Service) RevokeUser(ctx context.Context, userID string, ttl time.Duration, reason string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, storage.Malformed("revoke user", "empty user id")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	expiresAt := time.Now().UTC().Add(ttl)
	s.cache.Set(ctx, userCachePrefix+userID, formatExpiry(expiresAt), ttl)

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	err := s.store.UpsertRevokedUser(storeCtx, RevokedUser{
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
	})
	if err != nil {
		s.logWriteFailure("revoke_user_store_failed", err)
		return false, nil
	}

	return true, nil
}

// IsTokenRevoked reports whether the token is currently revoked. On storage
// trouble the answer depends on the failure class: unreachable or
// unprovisioned stores fail open, anything unclassified fails closed -- an
// unknown failure mode must not let a possibly revoked token through.
func (s *Service) IsTokenRevoked(ctx context.Context, rawToken string) (bool, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return false, storage.Malformed("check token", "empty token")
	}

	now := time.Now().UTC()
	hash := Hash(rawToken)

	if s.recent.Contains(hash, now) {
		return true, nil
	}

	if value, ok := s.cache.Get(ctx, tokenCachePrefix+hash); ok {
		if expiresAt, valid := parseExpiry(value, now); valid {
			s.recent.Add(hash, expiresAt)
			return true, nil
		}
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	expiresAt, err := s.store.LookupRevokedToken(storeCtx, hash, now)
	if err != nil {
		switch storage.KindOf(err) {
		case storage.KindNotProvisioned:
			s.logger.WarnOnce("revoked_tokens_table_missing", map[string]any{"error": err.Error()})
			return false, nil
		case storage.KindTransient:
			s.logger.Warn("revocation_check_degraded", map[string]any{"error": err.Error()})
			return false, nil
		default:
			sentry.CaptureException(err)
			s.logger.Error("revocation_check_failed_closed", map[string]any{"error": err.Error()})
			return true, nil
		}
	}
	if expiresAt == nil {
		return false, nil
	}

	s.recent.Add(hash, *expiresAt)
	s.cache.Set(ctx, tokenCachePrefix+hash, formatExpiry(*expiresAt), expiresAt.Sub(now))

	return true, nil
}

// IsUserRevoked reports whether a user-wide revocation is in force. Unlike
// the token check, an unclassified failure here fails open; the original
// system made that call and consumers rely on it, so it is kept deliberately.
func (s *Service) IsUserRevoked(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, storage.Malformed("check user", "empty user id")
	}

	now := time.Now().UTC()

	if value, ok := s.cache.Get(ctx, userCachePrefix+userID); ok {
		if _, valid := parseExpiry(value, now); valid {
			return true, nil
		}
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	expiresAt, err := s.store.LookupRevokedUser(storeCtx, userID, now)
	if err != nil {
		switch storage.KindOf(err) {
		case storage.KindNotProvisioned:
			s.logger.WarnOnce("revoked_users_table_missing", map[string]any{"error": err.Error()})
		case storage.KindTransient:
			s.logger.Warn("user_revocation_check_degraded", map[string]any{"error": err.Error()})
		default:
			sentry.CaptureException(err)
			s.logger.Error("user_revocation_check_failed_open", map[string]any{"error": err.Error()})
		}
		return false, nil
	}
	if expiresAt == nil {
		return false, nil
	}

	s.cache.Set(ctx, userCachePrefix+userID, formatExpiry(*expiresAt), expiresAt.Sub(now))

	return true, nil
}

func (s *Service) logWriteFailure(message string, err error) {
	kind := storage.KindOf(err)
	if kind == storage.KindNotProvisioned {
		s.logger.WarnOnce(message, map[string]any{"error": err.Error(), "kind": kind.String()})
		return
	}
	if kind == storage.KindUnexpected {
		sentry.CaptureException(err)
	}
	s.logger.Warn(message, map[string]any{"error": err.Error(), "kind": kind.String()})
}

func formatExpiry(expiresAt time.Time) string {
	return strconv.FormatInt(expiresAt.UnixMilli(), 10)
}

func parseExpiry(value string, now time.Time) (time.Time, bool) {
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	expiresAt := time.UnixMilli(millis).UTC()
	return expiresAt, now.Before(expiresAt)
}
