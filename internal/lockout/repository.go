package lockout

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"booking-backend/internal/storage"
)

// Store is the durable tier behind the guard.
type Store interface {
	RecordFailure(ctx context.Context, userID, source string, threshold int, lockUntil, now, windowStart time.Time) (Record, error)
	Lookup(ctx context.Context, userID string) (*Record, error)
	Clear(ctx context.Context, userID string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordFailure bumps the failure counter in a single atomic upsert. The SQL
// carries three rules: an unexpired lock freezes both counter and expiry, a
// counter older than the window restarts at 1, and reaching the threshold
// stamps locked_until. Concurrent callers may each observe their own
// increment; the counter can overshoot the threshold but never undershoot.
func (r *Repository) RecordFailure(ctx context.Context, userID, source string, threshold int, lockUntil, now, windowStart time.Time) (Record, error) {
	rec := Record{UserID: userID}

	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO auth_lockouts (user_id, failed_attempts, locked_until, last_attempt_source, last_attempt_at)
		VALUES ($1, 1, CASE WHEN 1 >= $2 THEN $3::timestamptz ELSE NULL END, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET
			failed_attempts = CASE
				WHEN auth_lockouts.locked_until IS NOT NULL AND auth_lockouts.locked_until > $5 THEN auth_lockouts.failed_attempts
				WHEN auth_lockouts.last_attempt_at <= $6 THEN 1
				ELSE auth_lockouts.failed_attempts + 1
			END,
			locked_until = CASE
				WHEN auth_lockouts.locked_until IS NOT NULL AND auth_lockouts.locked_until > $5 THEN auth_lockouts.locked_until
				WHEN (CASE
					WHEN auth_lockouts.last_attempt_at <= $6 THEN 1
					ELSE auth_lockouts.failed_attempts + 1
				END) >= $2 THEN $3::timestamptz
				ELSE NULL
			END,
			last_attempt_source = $4,
			last_attempt_at = $5
		RETURNING failed_attempts, locked_until
	`, userID, threshold, lockUntil.UTC(), source, now.UTC(), windowStart.UTC()).Scan(&rec.FailedAttempts, &lockedUntil)
	if err != nil {
		return Record{}, storage.NewError("record failed attempt", err)
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		rec.LockedUntil = &value
	}
	rec.LastAttemptSource = source
	rec.LastAttemptAt = now.UTC()

	return rec, nil
}

func (r *Repository) Lookup(ctx context.Context, userID string) (*Record, error) {
	rec := Record{UserID: userID}

	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until, last_attempt_source, last_attempt_at
		FROM auth_lockouts
		WHERE user_id = $1
	`, userID).Scan(&rec.FailedAttempts, &lockedUntil, &rec.LastAttemptSource, &rec.LastAttemptAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.NewError("lookup lockout", err)
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		rec.LockedUntil = &value
	}

	return &rec, nil
}

func (r *Repository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_lockouts
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return storage.NewError("clear lockout", err)
	}

	return nil
}
