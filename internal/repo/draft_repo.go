// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the database backend of the wizard
// draft store and the per-user UI preference rows.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/draft"
)

// DraftRepo stores serialized drafts in form_drafts. Rows expire after TTL,
// mirroring the lifetime of a browser session; expired rows read as absent.
// It satisfies draft.Backend.
type DraftRepo struct {
	DB    *gorm.DB
	TTL   time.Duration
	Clock clockwork.Clock
}

// NewDraftRepo returns a DraftRepo using the real clock.
func NewDraftRepo(db *gorm.DB, ttl time.Duration) *DraftRepo {
	return &DraftRepo{DB: db, TTL: ttl, Clock: clockwork.NewRealClock()}
}

// Get returns the payload for key or draft.ErrNoDraft.
func (r *DraftRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var row domain.FormDraft
	err := r.DB.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, r.Clock.Now().UTC()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, draft.ErrNoDraft
	}
	if err != nil {
		return nil, err
	}
	return row.Payload, nil
}

// Put upserts the payload for key and pushes its expiry forward.
func (r *DraftRepo) Put(ctx context.Context, key string, payload []byte) error {
	now := r.Clock.Now().UTC()
	row := domain.FormDraft{
		Key:       key,
		SessionID: draft.SessionOf(key),
		Payload:   payload,
		UpdatedAt: now,
		ExpiresAt: now.Add(r.TTL),
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at", "expires_at"}),
		}).
		Create(&row).Error
}

// Delete removes the draft for key; a missing draft is not an error.
func (r *DraftRepo) Delete(ctx context.Context, key string) error {
	return r.DB.WithContext(ctx).Where("key = ?", key).Delete(&domain.FormDraft{}).Error
}

// DeleteSession removes every draft written under sessionID.
func (r *DraftRepo) DeleteSession(ctx context.Context, sessionID string) error {
	return r.DB.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&domain.FormDraft{}).Error
}

// PurgeExpired deletes rows past their expiry and reports how many went.
func (r *DraftRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at <= ?", r.Clock.Now().UTC()).Delete(&domain.FormDraft{})
	return res.RowsAffected, res.Error
}

// GetPreferences returns the stored preferences for userID, or defaults
// (sidebar expanded, weekly timeframe) when none were saved.
func GetPreferences(ctx context.Context, db *gorm.DB, userID string) (domain.Preferences, error) {
	p := domain.Preferences{UserID: userID, Timeframe: domain.TimeframeWeek}
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, nil
	}
	return p, err
}

// SavePreferences upserts a preference row.
func SavePreferences(ctx context.Context, db *gorm.DB, p domain.Preferences) error {
	p.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sidebar_collapsed", "timeframe", "updated_at"}),
		}).
		Create(&p).Error
}
