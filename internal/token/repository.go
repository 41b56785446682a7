package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"booking-backend/internal/storage"
)

// Store is the durable tier behind the revocation service. Implementations
// return errors classified by internal/storage.
type Store interface {
	UpsertRevokedToken(ctx context.Context, rec RevokedToken) error
	LookupRevokedToken(ctx context.Context, tokenHash string, now time.Time) (*time.Time, error)
	UpsertRevokedUser(ctx context.Context, rec RevokedUser) error
	LookupRevokedUser(ctx context.Context, userID string, now time.Time) (*time.Time, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) UpsertRevokedToken(ctx context.Context, rec RevokedToken) error {
	var userID any
	if rec.UserID != "" {
		userID = rec.UserID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_hash, user_id, expires_at, reason, revoked_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (token_hash)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			expires_at = EXCLUDED.expires_at,
			reason = EXCLUDED.reason,
			revoked_at = EXCLUDED.revoked_at
	`, rec.TokenHash, userID, rec.ExpiresAt.UTC(), rec.Reason)
	if err != nil {
		return storage.NewError("upsert revoked token", err)
	}

	return nil
}

func (r *Repository) LookupRevokedToken(ctx context.Context, tokenHash string, now time.Time) (*time.Time, error) {
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT expires_at
		FROM revoked_tokens
		WHERE token_hash = $1 AND expires_at > $2
	`, tokenHash, now.UTC()).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.NewError("lookup revoked token", err)
	}

	expiresAt = expiresAt.UTC()
	return &expiresAt, nil
}

func (r *Repository) UpsertRevokedUser(ctx context.Context, rec RevokedUser) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_users (user_id, expires_at, reason, revoked_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			reason = EXCLUDED.reason,
			revoked_at = EXCLUDED.revoked_at
	`, rec.UserID, rec.ExpiresAt.UTC(), rec.Reason)
	if err != nil {
		return storage.NewError("upsert revoked user", err)
	}

	return nil
}

func (r *Repository) LookupRevokedUser(ctx context.Context, userID string, now time.Time) (*time.Time, error) {
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT expires_at
		FROM revoked_users
		WHERE user_id = $1 AND expires_at > $2
	`, userID, now.UTC()).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.NewError("lookup revoked user", err)
	}

	expiresAt = expiresAt.UTC()
	return &expiresAt, nil
}
