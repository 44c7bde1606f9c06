// Package services – AuthService
//
// This file implements the account flows exposed over HTTP: requesting
// magic-link and recovery emails, confirming links through the one-shot
// authflow state machine, code exchange, password sign-in, sign-out, and
// onboarding. Sign-out also discards the wizard drafts written under the
// ending session.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/facecloud/internal/authflow"
	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/identity"
)

// ErrInvalidEmail is returned for a malformed email address.
var ErrInvalidEmail = errors.New("invalid email address")

// Identity is the identity provider surface used by AuthService.
// identity.Service satisfies it.
type Identity interface {
	identity.Provider
	Inviter
	IssueCode(ctx context.Context, email, fullName, redirectTo string) (string, *domain.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SetPassword(ctx context.Context, userID, password string) error
	MarkOnboarded(ctx context.Context, userID string) error
	SignOut(ctx context.Context, accessToken string) error
	Authenticate(ctx context.Context, accessToken string) (*identity.Session, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SessionDrafts drops every draft of a session.
type SessionDrafts interface {
	ClearSession(ctx context.Context, sessionID string) error
}

// AuthService coordinates identity flows.
type AuthService struct {
	IDP           Identity
	SiteURL       string
	VerifyTimeout time.Duration
	Log           zerolog.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(idp Identity, siteURL string, verifyTimeout time.Duration) *AuthService {
	return &AuthService{IDP: idp, SiteURL: strings.TrimRight(siteURL, "/"), VerifyTimeout: verifyTimeout, Log: zerolog.Nop()}
}

// LinkRequest asks for an emailed link.
type LinkRequest struct {
	Email    string `json:"email" example:"owner@bondiclinic.com.au"`
	FullName string `json:"full_name,omitempty"`
	// Type is magiclink (default) or recovery.
	Type       string `json:"type,omitempty" example:"magiclink"`
	RedirectTo string `json:"redirect_to,omitempty" example:"/clinics"`
	// Flow "code" issues a ?code= link for the code-exchange flow.
	Flow string `json:"flow,omitempty"`
}

var emailRule = forms.Rule{Kind: forms.RuleEmail}

// RequestLink issues a link token and returns the link to email. Recovery
// links for unknown addresses are not issued; the returned link is empty
// and the error nil, so callers cannot probe for accounts.
func (s *AuthService) RequestLink(ctx context.Context, req LinkRequest) (string, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || emailRule.Check(email) != "" {
		return "", ErrInvalidEmail
	}
	typ := identity.TokenType(req.Type)
	if typ == "" {
		typ = identity.TokenMagicLink
	}
	if typ != identity.TokenMagicLink && typ != identity.TokenRecovery {
		return "", fmt.Errorf("%w: %q", identity.ErrInvalidToken, req.Type)
	}
	redirect, _ := authflow.SafeRedirect(req.RedirectTo)

	q := url.Values{}
	var u *domain.User
	if req.Flow == "code" && typ == identity.TokenMagicLink {
		code, user, err := s.IDP.IssueCode(ctx, email, req.FullName, redirect)
		if err != nil {
			return "", err
		}
		q.Set("code", code)
		u = user
	} else {
		raw, user, err := s.issue(ctx, email, req.FullName, typ, redirect)
		if err != nil || raw == "" {
			return "", err
		}
		q.Set("token_hash", raw)
		q.Set("type", string(typ))
		if redirect != "" {
			q.Set("redirectTo", redirect)
		}
		u = user
	}
	s.Log.Info().Str("user_id", u.ID).Str("type", string(typ)).Msg("auth link issued")
	return s.SiteURL + "/auth/confirm?" + q.Encode(), nil
}

func (s *AuthService) issue(ctx context.Context, email, fullName string, typ identity.TokenType, redirect string) (string, *domain.User, error) {
	if typ == identity.TokenRecovery {
		if ok, err := s.userExists(ctx, email); err != nil || !ok {
			return "", nil, err
		}
	}
	return s.IDP.IssueToken(ctx, email, fullName, typ, redirect)
}

func (s *AuthService) userExists(ctx context.Context, email string) (bool, error) {
	_, err := s.IDP.UserByEmail(ctx, email)
	if errors.Is(err, identity.ErrUnknownUser) {
		return false, nil
	}
	return err == nil, err
}

// Confirm runs the one-shot link flow for rawURL. sink receives the session
// before Confirm returns; it is never called on failure.
func (s *AuthService) Confirm(ctx context.Context, rawURL string, sink authflow.SessionSink) (*authflow.Result, error) {
	flow := authflow.New(s.IDP, sink, s.VerifyTimeout)
	st, err := flow.Detect(rawURL)
	if err != nil {
		return nil, err
	}
	if st != authflow.TokenDetected {
		return nil, authflow.ErrNoToken
	}
	res, err := flow.Verify(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Str("state", flow.State().String()).Msg("auth link rejected")
		return nil, err
	}
	return res, nil
}

// Exchange swaps a one-time code for a session.
func (s *AuthService) Exchange(ctx context.Context, code string) (*identity.Session, error) {
	return s.IDP.ExchangeCodeForSession(ctx, code)
}

// SignIn authenticates with email and password.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	return s.IDP.SignInWithPassword(ctx, email, password)
}

// SignOut revokes the session behind accessToken.
func (s *AuthService) SignOut(ctx context.Context, accessToken string) error {
	return s.IDP.SignOut(ctx, accessToken)
}

// Authenticate resolves an access token to its live session.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*identity.Session, error) {
	return s.IDP.Authenticate(ctx, accessToken)
}

// SetPassword sets the password of userID (after recovery or onboarding).
func (s *AuthService) SetPassword(ctx context.Context, userID, password string) error {
	return s.IDP.SetPassword(ctx, userID, password)
}

// CompleteOnboarding marks userID onboarded.
func (s *AuthService) CompleteOnboarding(ctx context.Context, userID string) error {
	return s.IDP.MarkOnboarded(ctx, userID)
}

// ClearDraftsOnSignOut subscribes to the provider and discards the drafts
// of every session that signs out. The returned function unsubscribes.
func ClearDraftsOnSignOut(idp identity.Provider, drafts SessionDrafts, log zerolog.Logger) func() {
	return idp.OnAuthStateChange(func(ev identity.Event, sess *identity.Session) {
		if ev != identity.EventSignedOut || sess == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := drafts.ClearSession(ctx, sess.ID); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("draft cleanup on sign-out failed")
		}
	})
}
