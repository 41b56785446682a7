package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"booking-backend/internal/lockout"
	"booking-backend/internal/session"
	"booking-backend/internal/token"
)

const defaultAccessTTL = 12 * time.Hour

// Service is the authentication gate: it owns credential minting and
// structural validation, and delegates every security-state decision to the
// revocation service, the lockout guard and the session registry.
// UserStore is the account lookup the gate needs; *Repository implements it.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (User, error)
}

type Service struct {
	users     UserStore
	tokens    *token.Service
	guard     *lockout.Guard
	sessions  *session.Registry
	jwtSecret []byte
	accessTTL time.Duration
}

func NewService(users UserStore, tokens *token.Service, guard *lockout.Guard, sessions *session.Registry, jwtSecret string) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		guard:     guard,
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
		accessTTL: defaultAccessTTL,
	}
}

func (s *Service) WithAccessTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.accessTTL = ttl
	}
	return s
}

// Login runs the full login path: lockout gate first, then credential
// verification, then counter clearing and session creation. A failed attempt
// is recorded identically whether the username is unknown or the password is
// wrong, so the response never reveals which accounts exist.
func (s *Service) Login(ctx context.Context, username, password, sourceAddr, clientDesc string) (Tokens, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return Tokens{}, ErrInvalidCredentials
	}

	status, err := s.guard.IsLocked(ctx, username)
	if err != nil {
		return Tokens{}, fmt.Errorf("check lockout: %w", err)
	}
	if status.Locked {
		return Tokens{}, ErrLoginLocked{Until: *status.LockedUntil}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tokens{}, s.failAttempt(ctx, username, sourceAddr)
		}
		return Tokens{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Tokens{}, s.failAttempt(ctx, username, sourceAddr)
	}

	if _, err := s.guard.Clear(ctx, username); err != nil {
		return Tokens{}, fmt.Errorf("clear lockout: %w", err)
	}

	access, expiresIn, err := s.mintAccessToken(user)
	if err != nil {
		return Tokens{}, err
	}

	// Advisory: a registry outage degrades session management, not login.
	sessionID, err := s.sessions.Create(ctx, user.ID, access, sourceAddr, clientDesc)
	if err != nil {
		sessionID = ""
	}

	return Tokens{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		SessionID:   sessionID,
	}, nil
}

func (s *Service) failAttempt(ctx context.Context, username, sourceAddr string) error {
	status, err := s.guard.RecordFailedAttempt(ctx, username, sourceAddr)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	if status.Locked {
		return ErrLoginLocked{Until: *status.LockedUntil}
	}

	return ErrInvalidCredentials
}

// Logout revokes the presented token for the rest of its natural lifetime
// and drops the session bound to it. With all=true every token and session
// of the user dies. Revocation is best-effort by contract; logout itself
// never fails on a storage outage.
func (s *Service) Logout(ctx context.Context, rawToken string, ident Identity, all bool) error {
	ttl := s.remainingLifetime(rawToken)

	if _, err := s.tokens.RevokeToken(ctx, rawToken, ttl, ident.UserID, "logout"); err != nil {
		return err
	}
	s.sessions.RevokeByToken(ctx, ident.UserID, rawToken)

	if all {
		if _, err := s.tokens.RevokeUser(ctx, ident.UserID, ttl, "logout_all"); err != nil {
			return err
		}
		if _, err := s.sessions.RevokeAll(ctx, ident.UserID); err != nil {
			return err
		}
	}

	return nil
}

// VerifyToken performs the ordered gate check: structure and expiry first,
// only then the two revocation predicates. Revocation is never consulted for
// a token that fails structural validation.
func (s *Service) VerifyToken(ctx context.Context, rawToken string) (Identity, error) {
	ident, err := s.parseAccessToken(rawToken)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	revoked, err := s.tokens.IsTokenRevoked(ctx, rawToken)
	if err != nil || revoked {
		return Identity{}, ErrTokenRevoked
	}

	userRevoked, err := s.tokens.IsUserRevoked(ctx, ident.UserID)
	if err != nil || userRevoked {
		return Identity{}, ErrTokenRevoked
	}

	s.sessions.Touch(ctx, rawToken)

	return ident, nil
}

func (s *Service) mintAccessToken(user User) (string, int64, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.accessTTL).Unix(),
		"typ":  "access",
	}
	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, int64(s.accessTTL.Seconds()), nil
}

func (s *Service) parseAccessToken(rawToken string) (Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if tokenType, _ := claims["typ"].(string); tokenType != "access" {
		return Identity{}, ErrInvalidToken
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return Identity{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)

	return Identity{UserID: userID, Role: role}, nil
}

func (s *Service) remainingLifetime(rawToken string) time.Duration {
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
		return 0
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}

	remaining := time.Until(exp.Time)
	if remaining <= 0 {
		return 0
	}
	// Small margin over the claim so clock skew between nodes cannot open a
	// gap at the end of the token's life.
	return remaining + time.Minute
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
)

type ErrLoginLocked struct {
	Until time.Time
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}
