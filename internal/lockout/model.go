package lockout

import "time"

// Record mirrors one row of the auth_lockouts table.
type Record struct {
	UserID            string
	FailedAttempts    int
	LockedUntil       *time.Time
	LastAttemptSource string
	LastAttemptAt     time.Time
}

// Status is what the login path branches on.
type Status struct {
	Locked            bool
	AttemptsRemaining int
	LockedUntil       *time.Time
}
