package auth

import "time"

type User struct {
	ID           string
	Username     string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Tokens struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	SessionID   string `json:"session_id,omitempty"`
}

// Identity is what the middleware hands to downstream handlers once a token
// has passed structural validation and both revocation checks.
type Identity struct {
	UserID string
	Role   string
}
