package session

import (
	"context"
	"database/sql"
	"time"

	"booking-backend/internal/storage"
)

type Store interface {
	Insert(ctx context.Context, sess Session) error
	ListActive(ctx context.Context, userID string, now time.Time) ([]Session, error)
	Delete(ctx context.Context, sessionID, userID string) (bool, error)
	DeleteByTokenHash(ctx context.Context, tokenHash, userID string) (bool, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
	TouchByTokenHash(ctx context.Context, tokenHash string, now time.Time) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, sess Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, source_address, client_descriptor, created_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.SourceAddress, sess.ClientDescriptor,
		sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		return storage.NewError("insert session", err)
	}

	return nil
}

func (r *Repository) ListActive(ctx context.Context, userID string, now time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, source_address, client_descriptor, created_at, last_activity_at, expires_at
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY last_activity_at DESC
	`, userID, now.UTC())
	if err != nil {
		return nil, storage.NewError("list sessions", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0, 8)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.SourceAddress,
			&sess.ClientDescriptor, &sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt); err != nil {
			return nil, storage.NewError("scan session", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewError("list sessions", err)
	}

	return sessions, nil
}

// Delete is scoped by user so one user cannot revoke another's session by
// guessing an identifier.
func (r *Repository) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE id = $1 AND user_id = $2
	`, sessionID, userID)
	if err != nil {
		return false, storage.NewError("delete session", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, storage.NewError("delete session", err)
	}

	return affected > 0, nil
}

func (r *Repository) DeleteByTokenHash(ctx context.Context, tokenHash, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE token_hash = $1 AND user_id = $2
	`, tokenHash, userID)
	if err != nil {
		return false, storage.NewError("delete session by token", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, storage.NewError("delete session by token", err)
	}

	return affected > 0, nil
}

func (r *Repository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, storage.NewError("delete sessions", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storage.NewError("delete sessions", err)
	}

	return affected, nil
}

func (r *Repository) TouchByTokenHash(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET last_activity_at = $2
		WHERE token_hash = $1 AND expires_at > $2
	`, tokenHash, now.UTC())
	if err != nil {
		return storage.NewError("touch session", err)
	}

	return nil
}
