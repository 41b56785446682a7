package session

import "time"

// Session records one successful login, independent of the token's own
// expiry, so active logins can be listed and revoked one by one.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	TokenHash        string    `json:"-"`
	SourceAddress    string    `json:"source_address"`
	ClientDescriptor string    `json:"client_descriptor"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}
