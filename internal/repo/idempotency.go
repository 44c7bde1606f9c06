// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores the outcome of wizard submissions made
// with an Idempotency-Key so a retried submission replays instead of
// creating a second clinic or staff member.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
)

// IdempotencyRepo reads and writes the idempotency table. Records are keyed
// by (user, scope, key) and expire after the TTL given at write time.
type IdempotencyRepo struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

// NewIdempotencyRepo returns an IdempotencyRepo using the real clock.
func NewIdempotencyRepo(db *gorm.DB) *IdempotencyRepo {
	return &IdempotencyRepo{DB: db, Clock: clockwork.NewRealClock()}
}

// Find returns the live record for (userID, scope, key) or ErrNotFound.
func (r *IdempotencyRepo) Find(ctx context.Context, userID, scope, key string) (*domain.Idempotency, error) {
	if scope == "" || key == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := r.DB.WithContext(ctx).
		Where(&domain.Idempotency{UserID: userID, Scope: scope, Key: key}).
		Where("expires_at > ?", r.Clock.Now().UTC()).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Remember records that the submission (userID, scope, key) produced
// resourceID with status. A second write for the same key keeps the first
// outcome and returns ErrDuplicate.
func (r *IdempotencyRepo) Remember(ctx context.Context, userID, scope, key, resourceID string, status int, ttl time.Duration) error {
	now := r.Clock.Now().UTC()
	err := r.DB.WithContext(ctx).Create(&domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// PurgeExpired deletes records past their expiry.
func (r *IdempotencyRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at <= ?", r.Clock.Now().UTC()).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
