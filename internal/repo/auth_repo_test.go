package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/draft"
)

func TestFindOrCreateUser_CaseInsensitive(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	u, err := FindOrCreateUser(ctx, db, "  Owner@BondiClinic.com.au ", "Sam Owner")
	if err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}
	if u.Email != "owner@bondiclinic.com.au" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	again, err := FindOrCreateUser(ctx, db, "OWNER@bondiclinic.com.au", "ignored")
	if err != nil || again.ID != u.ID || again.FullName != "Sam Owner" {
		t.Fatalf("second call = %+v, %v", again, err)
	}

	if err := UpdateUser(ctx, db, u.ID, map[string]any{"onboarded": true}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, _ := GetUser(ctx, db, u.ID)
	if !got.Onboarded {
		t.Fatal("onboarded not persisted")
	}
	if err := UpdateUser(ctx, db, "missing", map[string]any{"onboarded": true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateUser missing err = %v", err)
	}
}

func TestConsumeToken_SingleUse(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tok := &domain.AuthToken{Digest: "d-live", Type: domain.TokenMagicLink, UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := CreateToken(ctx, db, tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	expired := &domain.AuthToken{Digest: "d-old", Type: domain.TokenMagicLink, UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}
	if err := CreateToken(ctx, db, expired); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	if _, err := ConsumeToken(ctx, db, "d-live", domain.TokenRecovery, now); !errors.Is(err, ErrTokenUnusable) {
		t.Fatalf("wrong type err = %v", err)
	}
	got, err := ConsumeToken(ctx, db, "d-live", domain.TokenMagicLink, now)
	if err != nil || got.UserID != "u1" || got.ConsumedAt == nil {
		t.Fatalf("ConsumeToken = %+v, %v", got, err)
	}
	if _, err := ConsumeToken(ctx, db, "d-live", domain.TokenMagicLink, now); !errors.Is(err, ErrTokenUnusable) {
		t.Fatalf("reuse err = %v", err)
	}
	if _, err := ConsumeToken(ctx, db, "d-old", domain.TokenMagicLink, now); !errors.Is(err, ErrTokenUnusable) {
		t.Fatalf("expired err = %v", err)
	}

	n, err := DeleteExpiredTokens(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredTokens = %d, %v", n, err)
	}
}

func TestSessions_ActiveAndRevoked(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s := &domain.Session{ID: "sess-1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := CreateSession(ctx, db, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "sess-1", now); err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "sess-1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session err = %v", err)
	}

	if err := RevokeSession(ctx, db, "sess-1", now); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if err := RevokeSession(ctx, db, "sess-1", now); err != nil {
		t.Fatalf("second RevokeSession: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "sess-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked session err = %v", err)
	}
}

func TestDraftRepo_TTLAndSessions(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	r := &DraftRepo{DB: db, TTL: time.Hour, Clock: clock}

	if _, err := r.Get(ctx, "s1:clinic:new"); !errors.Is(err, draft.ErrNoDraft) {
		t.Fatalf("missing draft err = %v", err)
	}

	if err := r.Put(ctx, "s1:clinic:new", []byte(`{"step":"details"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(ctx, "s1:clinic:new", []byte(`{"step":"hours"}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if err := r.Put(ctx, "s1:staff:later", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := r.Put(ctx, "s2:clinic:new", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get(ctx, "s1:clinic:new")
	if err != nil || string(got) != `{"step":"hours"}` {
		t.Fatalf("Get = %s, %v", got, err)
	}

	var row domain.FormDraft
	db.Where("key = ?", "s1:staff:later").First(&row)
	if row.SessionID != "s1" {
		t.Fatalf("session id = %q", row.SessionID)
	}

	if err := r.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := r.Get(ctx, "s1:clinic:new"); !errors.Is(err, draft.ErrNoDraft) {
		t.Fatalf("after DeleteSession err = %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := r.Get(ctx, "s2:clinic:new"); !errors.Is(err, draft.ErrNoDraft) {
		t.Fatalf("expired draft err = %v", err)
	}
	n, err := r.PurgeExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired = %d, %v", n, err)
	}
	if err := r.Delete(ctx, "s2:clinic:new"); err != nil {
		t.Fatalf("Delete of missing draft: %v", err)
	}
}

func TestPreferences_DefaultsAndUpsert(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	p, err := GetPreferences(ctx, db, "u1")
	if err != nil || p.Timeframe != domain.TimeframeWeek || p.SidebarCollapsed {
		t.Fatalf("defaults = %+v, %v", p, err)
	}

	p.SidebarCollapsed = true
	p.Timeframe = domain.TimeframeMonth
	if err := SavePreferences(ctx, db, p); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	p.Timeframe = domain.TimeframeYear
	if err := SavePreferences(ctx, db, p); err != nil {
		t.Fatalf("SavePreferences upsert: %v", err)
	}

	got, err := GetPreferences(ctx, db, "u1")
	if err != nil || !got.SidebarCollapsed || got.Timeframe != domain.TimeframeYear {
		t.Fatalf("stored = %+v, %v", got, err)
	}
	var n int64
	db.Model(&domain.Preferences{}).Count(&n)
	if n != 1 {
		t.Fatalf("rows = %d", n)
	}
}
