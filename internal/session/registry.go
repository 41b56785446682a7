package session

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"booking-backend/internal/observability"
	"booking-backend/internal/storage"
	"booking-backend/internal/token"
)

const (
	DefaultMaxAge = 30 * 24 * time.Hour

	// Ceiling on any single durable-store call, so a hung connection
	// degrades like any other storage failure.
	DefaultStoreTimeout = 3 * time.Second
)

// Registry tracks one session per successful login. Session tracking is
// advisory: a registry failure must never block a login, only degrade the
// session-management surface.
type Registry struct {
	store        Store
	logger       *observability.Logger
	maxAge       time.Duration
	storeTimeout time.Duration
}

func NewRegistry(store Store, logger *observability.Logger) *Registry {
	return &Registry{
		store:        store,
		logger:       logger,
		maxAge:       DefaultMaxAge,
		storeTimeout: DefaultStoreTimeout,
	}
}

func (r *Registry) WithMaxAge(maxAge time.Duration) *Registry {
	if maxAge > 0 {
		r.maxAge = maxAge
	}
	return r
}

func (r *Registry) WithStoreTimeout(timeout time.Duration) *Registry {
	if timeout > 0 {
		r.storeTimeout = timeout
	}
	return r
}

func (r *Registry) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.storeTimeout)
}

// Create opens a session for userID bound to the digest of rawToken and
// returns its identifier.
func (r *Registry) Create(ctx context.Context, userID, rawToken, sourceAddr, clientDesc string) (string, error) {
	userID = strings.TrimSpace(userID)
	rawToken = strings.TrimSpace(rawToken)
	if userID == "" || rawToken == "" {
		return "", storage.Malformed("create session", "empty user id or token")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", storage.NewError("create session", err)
	}

	now := time.Now().UTC()
	sess := Session{
		ID:               id.String(),
		UserID:           userID,
		TokenHash:        token.Hash(rawToken),
		SourceAddress:    sourceAddr,
		ClientDescriptor: clientDesc,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(r.maxAge),
	}

	storeCtx, cancel := r.storeCtx(ctx)
	defer cancel()
	if err := r.store.Insert(storeCtx, sess); err != nil {
		r.logStoreFailure("create_session_failed", err)
		return "", err
	}

	return sess.ID, nil
}

func (r *Registry) List(ctx context.Context, userID string) ([]Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, storage.Malformed("list sessions", "empty user id")
	}

	storeCtx, cancel := r.storeCtx(ctx)
	defer cancel()
	sessions, err := r.store.ListActive(storeCtx, userID, time.Now().UTC())
	if err != nil {
		r.logStoreFailure("list_sessions_failed", err)
		if storage.KindOf(err) == storage.KindNotProvisioned {
			return []Session{}, nil
		}
		return nil, err
	}

	return sessions, nil
}

// Revoke deletes one session, scoped by owner. Revoking a session that
// belongs to a different user is a no-op.
func (r *Registry) Revoke(ctx context.Context, sessionID, userID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	userID = strings.TrimSpace(userID)
	if sessionID == "" || userID == "" {
		return false, storage.Malformed("revoke session", "empty session or user id")
	}

	storeCtx, cancel := r.storeCtx(ctx)
	defer cancel()
	deleted, err := r.store.Delete(storeCtx, sessionID, userID)
	if err != nil {
		r.logStoreFailure("revoke_session_failed", err)
		return false, nil
	}

	return deleted, nil
}

// RevokeByToken drops the session bound to rawToken's digest on logout.
// Best-effort, like Touch.
func (r *Registry) RevokeByToken(ctx context.Context, userID, rawToken string) {
	userID = strings.TrimSpace(userID)
	rawToken = strings.TrimSpace(rawToken)
	if userID == "" || rawToken == "" {
		return
	}

	storeCtx, cancel := r.storeCtx(ctx)
	defer cancel()
	if _, err := r.store.DeleteByTokenHash(storeCtx, token.Hash(rawToken), userID); err != nil {
		r.logStoreFailure("revoke_session_by_token_failed", err)
	}
}

// RevokeAll deletes every session of userID; used on deactivation or
// compromise, typically alongside a user-wide token revocation.
func (r *Registry) RevokeAll(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, storage.Malformed("revoke sessions", "empty user id")
	}

	storeCtx, cancel := r.storeCtx(ctx)
	defer cancel()
	deleted, err := r.store.DeleteAll(storeCtx, userID)
	if err != nil {
		r.logStoreFailure("revoke_all_sessions_failed", err)
		return 0, nil
	}

	return deleted, nil
}

// Touch refreshes last_activity_at for the session holding rawToken. Pure
// telemetry; failures are swallowed.
func (r *Registry) Touch(ctx context.Context, rawToken string) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return
	}

	storeCtx, cancel := r.storeCtx(ctx)
	defer cancel()
	if err := r.store.TouchByTokenHash(storeCtx, token.Hash(rawToken), time.Now().UTC()); err != nil {
		r.logStoreFailure("touch_session_failed", err)
	}
}

func (r *Registry) logStoreFailure(message string, err error) {
	kind := storage.KindOf(err)
	if kind == storage.KindNotProvisioned {
		r.logger.WarnOnce(message, map[string]any{"error": err.Error(), "kind": kind.String()})
		return
	}
	if kind == storage.KindUnexpected {
		sentry.CaptureException(err)
	}
	r.logger.Warn(message, map[string]any{"error": err.Error(), "kind": kind.String()})
}
