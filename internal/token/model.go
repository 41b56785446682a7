package token

import "time"

type RevokedToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	Reason    string
}

type RevokedUser struct {
	UserID    string
	ExpiresAt time.Time
	Reason    string
}
