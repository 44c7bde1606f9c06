package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/repo"
)

const issuer = "facecloud"

// Service implements Provider over the relational store.
type Service struct {
	DB         *gorm.DB
	Secret     []byte
	SessionTTL time.Duration
	TokenTTL   time.Duration
	Clock      clockwork.Clock
	Log        zerolog.Logger

	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
}

var _ Provider = (*Service)(nil)

// NewService returns a Service using real time and a no-op logger.
func NewService(db *gorm.DB, secret string, sessionTTL, tokenTTL time.Duration) *Service {
	return &Service{
		DB:         db,
		Secret:     []byte(secret),
		SessionTTL: sessionTTL,
		TokenTTL:   tokenTTL,
		Clock:      clockwork.NewRealClock(),
		Log:        zerolog.Nop(),
	}
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Digest returns the stored form of a raw token.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Service) now() time.Time { return s.Clock.Now().UTC() }

// IssueToken creates a single-use token of typ for email, creating the user
// if needed, and returns the raw value for the link's token_hash parameter.
func (s *Service) IssueToken(ctx context.Context, email, fullName string, typ TokenType, redirectTo string) (string, *domain.User, error) {
	if !typ.Valid() {
		return "", nil, fmt.Errorf("issue token: unsupported type %q", typ)
	}
	u, err := repo.FindOrCreateUser(ctx, s.DB, email, fullName)
	if err != nil {
		return "", nil, err
	}
	raw, err := s.storeToken(ctx, u.ID, string(typ), redirectTo)
	if err != nil {
		return "", nil, err
	}
	return raw, u, nil
}

// IssueCode creates a one-time code for the code-exchange flow, creating
// the user if needed.
func (s *Service) IssueCode(ctx context.Context, email, fullName, redirectTo string) (string, *domain.User, error) {
	u, err := repo.FindOrCreateUser(ctx, s.DB, email, fullName)
	if err != nil {
		return "", nil, err
	}
	raw, err := s.storeToken(ctx, u.ID, domain.TokenCode, redirectTo)
	if err != nil {
		return "", nil, err
	}
	return raw, u, nil
}

func (s *Service) storeToken(ctx context.Context, userID, typ, redirectTo string) (string, error) {
	raw, err := randomToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	tok := &domain.AuthToken{
		Digest:     Digest(raw),
		Type:       typ,
		UserID:     userID,
		RedirectTo: redirectTo,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.TokenTTL),
	}
	if err := repo.CreateToken(ctx, s.DB, tok); err != nil {
		return "", err
	}
	return raw, nil
}

// VerifyToken consumes a link token and establishes a session. A token can
// be verified once; every later attempt fails with ErrInvalidToken.
func (s *Service) VerifyToken(ctx context.Context, tokenHash string, typ TokenType) (*Session, error) {
	ctx, span := otel.Tracer("identity/Service").Start(ctx, "VerifyToken",
		trace.WithAttributes(attribute.String("token.type", string(typ))))
	defer span.End()

	if tokenHash == "" || !typ.Valid() {
		return nil, ErrInvalidToken
	}
	return s.consume(ctx, tokenHash, string(typ), typ)
}

// ExchangeCodeForSession consumes a one-time code and establishes a session.
func (s *Service) ExchangeCodeForSession(ctx context.Context, code string) (*Session, error) {
	ctx, span := otel.Tracer("identity/Service").Start(ctx, "ExchangeCodeForSession")
	defer span.End()

	if code == "" {
		return nil, ErrInvalidToken
	}
	return s.consume(ctx, code, domain.TokenCode, TokenMagicLink)
}

func (s *Service) consume(ctx context.Context, raw, storedType string, via TokenType) (*Session, error) {
	tok, err := repo.ConsumeToken(ctx, s.DB, Digest(raw), storedType, s.now())
	if errors.Is(err, repo.ErrTokenUnusable) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, tok.UserID)
	if err != nil {
		return nil, err
	}
	sess, err := s.newSession(ctx, u)
	if err != nil {
		return nil, err
	}
	sess.Via = via
	sess.RedirectTo = tok.RedirectTo

	ev := EventSignedIn
	if via == TokenRecovery {
		ev = EventPasswordRecovery
	}
	s.Log.Info().Str("user_id", u.ID).Str("via", string(via)).Msg("session established")
	s.emit(ev, sess)
	return sess, nil
}

// SignInWithPassword authenticates with email and password.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Burn comparable time so unknown emails are not distinguishable.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	sess, err := s.newSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.emit(EventSignedIn, sess)
	return sess, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("facecloud-dummy-password"), bcrypt.MinCost)

// SetPassword replaces the password of userID.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if len(password) < MinPasswordLen {
		return ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := repo.UpdateUser(ctx, s.DB, userID, map[string]any{"password_hash": string(h)}); err != nil {
		return err
	}
	s.emit(EventUserUpdated, nil)
	return nil
}

// MarkOnboarded records that userID finished onboarding.
func (s *Service) MarkOnboarded(ctx context.Context, userID string) error {
	if err := repo.UpdateUser(ctx, s.DB, userID, map[string]any{"onboarded": true}); err != nil {
		return err
	}
	s.emit(EventUserUpdated, nil)
	return nil
}

// SignOut revokes the session behind accessToken.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	sess, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := repo.RevokeSession(ctx, s.DB, sess.ID, s.now()); err != nil {
		return err
	}
	s.emit(EventSignedOut, sess)
	return nil
}

// GetCurrentUser returns the user behind a valid access token.
func (s *Service) GetCurrentUser(ctx context.Context, accessToken string) (*domain.User, error) {
	sess, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &sess.User, nil
}

// Authenticate validates an access token's signature, expiry, and session
// row, and returns the live session.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}
	var c claims
	_, err := jwt.ParseWithClaims(accessToken, &c,
		func(*jwt.Token) (any, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.Clock.Now),
	)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	row, err := repo.GetActiveSession(ctx, s.DB, c.ID, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, row.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return &Session{
		ID:          row.ID,
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresAt:   row.ExpiresAt,
		User:        *u,
	}, nil
}

func (s *Service) newSession(ctx context.Context, u *domain.User) (*Session, error) {
	now := s.now()
	row := &domain.Session{
		ID:        ksuid.New().String(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.SessionTTL),
	}
	if err := repo.CreateSession(ctx, s.DB, row); err != nil {
		return nil, err
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			ID:        row.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
		},
	})
	signed, err := tok.SignedString(s.Secret)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:          row.ID,
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresAt:   row.ExpiresAt,
		User:        *u,
	}, nil
}

// OnAuthStateChange registers fn for every subsequent event. The returned
// function unregisters it and is safe to call more than once.
func (s *Service) OnAuthStateChange(fn Listener) func() {
	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = make(map[uint64]Listener)
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) emit(ev Event, sess *Session) {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev, sess)
	}
}

// UserByEmail returns the account registered under email.
func (s *Service) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	return u, err
}

// PurgeExpired deletes expired link tokens.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return repo.DeleteExpiredTokens(ctx, s.DB, s.now())
}
