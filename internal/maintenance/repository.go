package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository is the storage-layer retention the security packages rely on:
// rows past their expiry are logically dead the moment the clock passes
// them, and these batched deletes are what eventually reclaims the space.
type Repository struct {
	db *sql.DB
}

type CleanupResult struct {
	DeletedRevokedTokens int64 `json:"deleted_revoked_tokens"`
	DeletedRevokedUsers  int64 `json:"deleted_revoked_users"`
	DeletedLockouts      int64 `json:"deleted_lockouts"`
	DeletedSessions      int64 `json:"deleted_sessions"`
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CleanupExpiredSecurityState(ctx context.Context, lockoutRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if lockoutRetention <= 0 {
		lockoutRetention = 30 * 24 * time.Hour
	}

	var result CleanupResult
	var err error

	result.DeletedRevokedTokens, err = r.deleteBatch(ctx, `
		WITH stale AS (
			SELECT token_hash
			FROM revoked_tokens
			WHERE expires_at < NOW()
			ORDER BY expires_at ASC
			LIMIT $1
		)
		DELETE FROM revoked_tokens t
		USING stale
		WHERE t.token_hash = stale.token_hash
	`, "delete expired revoked tokens", batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	result.DeletedRevokedUsers, err = r.deleteBatch(ctx, `
		WITH stale AS (
			SELECT user_id
			FROM revoked_users
			WHERE expires_at < NOW()
			ORDER BY expires_at ASC
			LIMIT $1
		)
		DELETE FROM revoked_users t
		USING stale
		WHERE t.user_id = stale.user_id
	`, "delete expired revoked users", batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	lockoutCutoff := time.Now().UTC().Add(-lockoutRetention)
	result.DeletedLockouts, err = r.deleteBatchBefore(ctx, `
		WITH stale AS (
			SELECT user_id
			FROM auth_lockouts
			WHERE last_attempt_at < $1
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY last_attempt_at ASC
			LIMIT $2
		)
		DELETE FROM auth_lockouts t
		USING stale
		WHERE t.user_id = stale.user_id
	`, "delete stale lockouts", lockoutCutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	result.DeletedSessions, err = r.deleteBatch(ctx, `
		WITH stale AS (
			SELECT id
			FROM sessions
			WHERE expires_at < NOW()
			ORDER BY expires_at ASC
			LIMIT $1
		)
		DELETE FROM sessions t
		USING stale
		WHERE t.id = stale.id
	`, "delete expired sessions", batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return result, nil
}

func (r *Repository) deleteBatch(ctx context.Context, query, op string, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, batchSize)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}

	return affected, nil
}

func (r *Repository) deleteBatchBefore(ctx context.Context, query, op string, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}

	return affected, nil
}
