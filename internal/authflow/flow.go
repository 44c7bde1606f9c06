// Package authflow turns an emailed link into a session. A Flow is a
// one-shot state machine:
//
//	Idle -> TokenDetected -> Verifying -> SessionEstablished | VerificationFailed
//
// Detect reads the token from a URL. Verify exchanges it exactly once with
// the identity provider; on success the session is handed to a sink and the
// caller receives a scrubbed URL and a safe place to go next. Failures are
// terminal: the flow never retries.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/facecloud/internal/identity"
)

// State is a Flow's position in the state machine.
type State int

const (
	Idle State = iota
	TokenDetected
	Verifying
	SessionEstablished
	VerificationFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TokenDetected:
		return "token_detected"
	case Verifying:
		return "verifying"
	case SessionEstablished:
		return "session_established"
	case VerificationFailed:
		return "verification_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Redirect targets.
const (
	PathResetPassword = "/auth/reset-password"
	PathOnboarding    = "/onboarding"
	PathDashboard     = "/dashboard"
)

// DefaultTimeout bounds the provider call when New is given zero.
const DefaultTimeout = 10 * time.Second

var (
	// ErrAlreadyUsed is returned when a flow is driven past its single use.
	ErrAlreadyUsed = errors.New("authflow: flow already used")
	// ErrNoToken is returned by Verify when Detect found nothing.
	ErrNoToken = errors.New("authflow: no token detected")
)

// AuthExchangeError reports a failed exchange. It is shown to the user as
// an invitation to request a new link or contact support.
type AuthExchangeError struct {
	Type    identity.TokenType
	Timeout bool
	Err     error
}

// UserMessage is the text clients display for any AuthExchangeError.
const UserMessage = "This link is invalid or has expired. Request a new link, or contact support if the problem continues."

func (e *AuthExchangeError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("auth exchange (%s) timed out: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("auth exchange (%s) failed: %v", e.Type, e.Err)
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// Exchanger is the part of identity.Provider a Flow needs.
type Exchanger interface {
	VerifyToken(ctx context.Context, tokenHash string, typ identity.TokenType) (*identity.Session, error)
	ExchangeCodeForSession(ctx context.Context, code string) (*identity.Session, error)
}

// SessionSink persists an established session (a cookie, a store).
type SessionSink interface {
	Store(ctx context.Context, s *identity.Session) error
}

// SinkFunc adapts a function to SessionSink.
type SinkFunc func(ctx context.Context, s *identity.Session) error

func (f SinkFunc) Store(ctx context.Context, s *identity.Session) error { return f(ctx, s) }

// Result is the outcome of a successful Verify.
type Result struct {
	Session *identity.Session
	// CleanURL is the link with token parameters and fragment removed.
	CleanURL string
	// Redirect is a same-origin path to continue to.
	Redirect string
}

// Flow is safe for concurrent use; concurrent Verify calls on one Flow
// result in a single provider call.
type Flow struct {
	ex      Exchanger
	sink    SessionSink
	timeout time.Duration

	mu     sync.Mutex
	state  State
	params Params
	link   *url.URL
	result *Result
	err    error
}

// New returns an Idle flow.
func New(ex Exchanger, sink SessionSink, timeout time.Duration) *Flow {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Flow{ex: ex, sink: sink, timeout: timeout}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Params returns what Detect parsed.
func (f *Flow) Params() Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

// Err returns the failure recorded by Verify, if any.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Detect inspects rawURL. With a token present the flow moves to
// TokenDetected; without one it stays Idle. Detect is legal only from Idle.
func (f *Flow) Detect(rawURL string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return f.state, ErrAlreadyUsed
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return f.state, fmt.Errorf("authflow: parse url: %w", err)
	}
	p := ParseURL(u)
	if !p.HasToken() {
		return Idle, nil
	}
	f.params = p
	f.link = u
	f.state = TokenDetected
	return f.state, nil
}

// Verify exchanges the detected token. It may be called once: later calls,
// including concurrent ones, return ErrAlreadyUsed without touching the
// provider or the sink.
func (f *Flow) Verify(ctx context.Context) (*Result, error) {
	f.mu.Lock()
	switch f.state {
	case Idle:
		f.mu.Unlock()
		return nil, ErrNoToken
	case TokenDetected:
	default:
		f.mu.Unlock()
		return nil, ErrAlreadyUsed
	}
	f.state = Verifying
	p := f.params
	link := f.link
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var (
		sess *identity.Session
		err  error
	)
	if p.Code != "" {
		sess, err = f.ex.ExchangeCodeForSession(ctx, p.Code)
	} else {
		sess, err = f.ex.VerifyToken(ctx, p.TokenHash, p.Type)
	}
	if err == nil && sess == nil {
		err = identity.ErrInvalidToken
	}
	if err == nil && f.sink != nil {
		err = f.sink.Store(ctx, sess)
	}
	if err != nil {
		return nil, f.fail(&AuthExchangeError{
			Type:    p.Type,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		})
	}

	res := &Result{
		Session:  sess,
		CleanURL: Scrub(link).String(),
		Redirect: RedirectFor(p, sess),
	}
	f.mu.Lock()
	f.state = SessionEstablished
	f.result = res
	f.mu.Unlock()
	return res, nil
}

func (f *Flow) fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = VerificationFailed
	f.err = err
	return err
}

// RedirectFor picks where to send the user after a successful exchange.
// Recovery always lands on the reset-password page; invites and onboarding
// links land on onboarding; otherwise a same-origin redirectTo (from the
// link, then from the issued token) is honoured, falling back to the
// dashboard.
func RedirectFor(p Params, s *identity.Session) string {
	switch {
	case p.Type == identity.TokenRecovery:
		return PathResetPassword
	case p.Type == identity.TokenInvite || p.Onboard:
		return PathOnboarding
	}
	if r, ok := SafeRedirect(p.RedirectTo); ok {
		return r
	}
	if s != nil {
		if r, ok := SafeRedirect(s.RedirectTo); ok {
			return r
		}
	}
	return PathDashboard
}

// SafeRedirect accepts only same-origin absolute paths. Scheme-relative
// ("//host") and backslash tricks are rejected.
func SafeRedirect(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") ||
		strings.ContainsAny(target, "\r\n\t") {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	return u.RequestURI(), true
}
