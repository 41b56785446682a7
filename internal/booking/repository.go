package booking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, package_code, start_date, guests, status, created_at, updated_at
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]Booking, 0)
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.PackageCode, &b.StartDate, &b.Guests, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}

	return bookings, nil
}

func (r *Repository) Create(ctx context.Context, userID string, input BookingInput) (Booking, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Booking{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	b := Booking{
		ID:          id.String(),
		UserID:      userID,
		PackageCode: input.PackageCode,
		StartDate:   input.StartDate,
		Guests:      input.Guests,
		Status:      "confirmed",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, package_code, start_date, guests, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.UserID, b.PackageCode, b.StartDate, b.Guests, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return Booking{}, fmt.Errorf("insert booking: %w", err)
	}

	return b, nil
}

// Cancel is scoped by owner, like session revocation.
func (r *Repository) Cancel(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', updated_at = $3
		WHERE id = $1 AND user_id = $2
	`, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
