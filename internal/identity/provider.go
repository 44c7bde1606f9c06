// Package identity is the identity provider: it issues and verifies
// single-use email tokens, exchanges them for sessions, signs HS256 access
// tokens, and notifies listeners of authentication state changes.
//
// Sessions are rows in the sessions table; the access token's jti claim is
// the row id, so signing out revokes a token before it expires.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/facecloud/internal/domain"
)

// TokenType is the kind of single-use token carried by an emailed link.
type TokenType string

const (
	TokenMagicLink TokenType = domain.TokenMagicLink
	TokenRecovery  TokenType = domain.TokenRecovery
	TokenInvite    TokenType = domain.TokenInvite
)

// Valid reports whether t may appear in a link's type parameter.
func (t TokenType) Valid() bool {
	switch t {
	case TokenMagicLink, TokenRecovery, TokenInvite:
		return true
	}
	return false
}

// Event names an authentication state change.
type Event string

const (
	EventSignedIn         Event = "SIGNED_IN"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
	EventSignedOut        Event = "SIGNED_OUT"
	EventUserUpdated      Event = "USER_UPDATED"
)

// Session is an established session and its signed access token.
type Session struct {
	ID          string      `json:"-"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        domain.User `json:"user"`
	// Via is the kind of token the session was established from, if any.
	Via TokenType `json:"-"`
	// RedirectTo is the destination recorded when the link was issued.
	RedirectTo string `json:"-"`
}

// Listener receives state changes. s is nil for USER_UPDATED.
type Listener func(ev Event, s *Session)

// Provider is the contract the rest of the service depends on.
type Provider interface {
	VerifyToken(ctx context.Context, tokenHash string, typ TokenType) (*Session, error)
	ExchangeCodeForSession(ctx context.Context, code string) (*Session, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*domain.User, error)
	OnAuthStateChange(fn Listener) (unsubscribe func())
}

var (
	// ErrInvalidToken covers unknown, expired, consumed, and mistyped tokens.
	ErrInvalidToken = errors.New("token is invalid or has expired")
	// ErrInvalidCredentials is returned for a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthenticated is returned for missing, malformed, expired, or
	// revoked access tokens.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrUnknownUser is returned by lookups for an unregistered email.
	ErrUnknownUser = errors.New("unknown user")
	// ErrWeakPassword rejects passwords shorter than MinPasswordLen.
	ErrWeakPassword = errors.New("password too short")
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 10
