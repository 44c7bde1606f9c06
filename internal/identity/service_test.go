package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/facecloud/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

func newTestService(t *testing.T) (*Service, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	s := NewService(newTestDB(t), "0123456789abcdef0123456789abcdef", 12*time.Hour, time.Hour)
	s.Clock = clk
	return s, clk
}

func TestIssueAndVerify_MagicLink(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	var events []Event
	unsub := s.OnAuthStateChange(func(ev Event, _ *Session) { events = append(events, ev) })
	defer unsub()

	raw, u, err := s.IssueToken(ctx, "Owner@Example.com", "Olivia Owner", TokenMagicLink, "/clinics")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", u.Email)

	sess, err := s.VerifyToken(ctx, raw, TokenMagicLink)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.Equal(t, "/clinics", sess.RedirectTo)
	assert.Equal(t, TokenMagicLink, sess.Via)
	assert.Equal(t, []Event{EventSignedIn}, events)

	got, err := s.GetCurrentUser(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestVerifyToken_SingleUse(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	raw, _, err := s.IssueToken(ctx, "a@example.com", "", TokenRecovery, "")
	require.NoError(t, err)

	first, err := s.VerifyToken(ctx, raw, TokenRecovery)
	require.NoError(t, err)

	_, err = s.VerifyToken(ctx, raw, TokenRecovery)
	require.ErrorIs(t, err, ErrInvalidToken)

	// The session from the first exchange is unaffected.
	_, err = s.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)
}

func TestVerifyToken_ConcurrentExchangesYieldOneSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	raw, _, err := s.IssueToken(ctx, "a@example.com", "", TokenMagicLink, "")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.VerifyToken(ctx, raw, TokenMagicLink); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestVerifyToken_Rejections(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestService(t)

	raw, _, err := s.IssueToken(ctx, "a@example.com", "", TokenInvite, "")
	require.NoError(t, err)

	_, err = s.VerifyToken(ctx, raw, TokenMagicLink)
	require.ErrorIs(t, err, ErrInvalidToken, "type mismatch")

	_, err = s.VerifyToken(ctx, raw, TokenType("signup"))
	require.ErrorIs(t, err, ErrInvalidToken, "unsupported type")

	_, err = s.VerifyToken(ctx, "", TokenInvite)
	require.ErrorIs(t, err, ErrInvalidToken)

	clk.Advance(time.Hour + time.Second)
	_, err = s.VerifyToken(ctx, raw, TokenInvite)
	require.ErrorIs(t, err, ErrInvalidToken, "expired")

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestVerifyToken_RecoveryEmitsPasswordRecovery(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	got := make(chan Event, 1)
	unsub := s.OnAuthStateChange(func(ev Event, _ *Session) { got <- ev })
	defer unsub()

	raw, _, err := s.IssueToken(ctx, "a@example.com", "", TokenRecovery, "")
	require.NoError(t, err)
	_, err = s.VerifyToken(ctx, raw, TokenRecovery)
	require.NoError(t, err)
	assert.Equal(t, EventPasswordRecovery, <-got)
}

func TestExchangeCodeForSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	code, u, err := s.IssueCode(ctx, "a@example.com", "", "/dashboard")
	require.NoError(t, err)

	_, err = s.VerifyToken(ctx, code, TokenMagicLink)
	require.ErrorIs(t, err, ErrInvalidToken, "codes are not link tokens")

	sess, err := s.ExchangeCodeForSession(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.Equal(t, "/dashboard", sess.RedirectTo)

	_, err = s.ExchangeCodeForSession(ctx, code)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordSignIn_AndSetPassword(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	_, u, err := s.IssueToken(ctx, "a@example.com", "", TokenMagicLink, "")
	require.NoError(t, err)

	_, err = s.SignInWithPassword(ctx, "a@example.com", "whatever-long")
	require.ErrorIs(t, err, ErrInvalidCredentials, "no password set yet")

	require.ErrorIs(t, s.SetPassword(ctx, u.ID, "short"), ErrWeakPassword)
	require.NoError(t, s.SetPassword(ctx, u.ID, "correct horse battery"))

	_, err = s.SignInWithPassword(ctx, "a@example.com", "wrong password!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.SignInWithPassword(ctx, "nobody@example.com", "correct horse battery")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := s.SignInWithPassword(ctx, "A@example.com", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
}

func TestSignOut_RevokesSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	raw, _, err := s.IssueToken(ctx, "a@example.com", "", TokenMagicLink, "")
	require.NoError(t, err)
	sess, err := s.VerifyToken(ctx, raw, TokenMagicLink)
	require.NoError(t, err)

	var signedOut *Session
	unsub := s.OnAuthStateChange(func(ev Event, s *Session) {
		if ev == EventSignedOut {
			signedOut = s
		}
	})
	defer unsub()

	require.NoError(t, s.SignOut(ctx, sess.AccessToken))
	require.NotNil(t, signedOut)
	assert.Equal(t, sess.ID, signedOut.ID)

	_, err = s.Authenticate(ctx, sess.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.ErrorIs(t, s.SignOut(ctx, sess.AccessToken), ErrUnauthenticated)
}

func TestAuthenticate_RejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestService(t)
	raw, _, err := s.IssueToken(ctx, "a@example.com", "", TokenMagicLink, "")
	require.NoError(t, err)
	sess, err := s.VerifyToken(ctx, raw, TokenMagicLink)
	require.NoError(t, err)

	other := NewService(s.DB, "another-secret-another-secret-xx", time.Hour, time.Hour)
	other.Clock = clk
	_, err = other.Authenticate(ctx, sess.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated, "wrong signing key")

	_, err = s.Authenticate(ctx, "not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthenticated)

	clk.Advance(12*time.Hour + time.Second)
	_, err = s.Authenticate(ctx, sess.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOnAuthStateChange_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	calls := 0
	unsub := s.OnAuthStateChange(func(Event, *Session) { calls++ })
	unsub()
	unsub()

	_, u, err := s.IssueToken(ctx, "a@example.com", "", TokenMagicLink, "")
	require.NoError(t, err)
	require.NoError(t, s.MarkOnboarded(ctx, u.ID))
	assert.Equal(t, 0, calls)
}
