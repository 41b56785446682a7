package booking

import "time"

type Booking struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PackageCode string    `json:"package_code"`
	StartDate   time.Time `json:"start_date"`
	Guests      int       `json:"guests"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type BookingInput struct {
	PackageCode string    `json:"package_code"`
	StartDate   time.Time `json:"start_date"`
	Guests      int       `json:"guests"`
}
