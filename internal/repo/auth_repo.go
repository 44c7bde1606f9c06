// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users,
// single-use auth tokens, and sessions used by the identity provider.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
)

// ErrTokenUnusable is returned by ConsumeToken when the digest is unknown,
// of another type, expired, or already consumed. Callers must not be able
// to tell these cases apart.
var ErrTokenUnusable = errors.New("token invalid or already used")

// FindOrCreateUser returns the user with the given email, creating it when
// absent. Emails are compared case-insensitively.
func FindOrCreateUser(ctx context.Context, db *gorm.DB, email, fullName string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := GetUserByEmail(ctx, db, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u = &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  fullName,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent sign-up; read the winner.
			return GetUserByEmail(ctx, db, email)
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by normalized email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser applies column updates to a user.
func UpdateUser(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateToken stores a token digest.
func CreateToken(ctx context.Context, db *gorm.DB, tok *domain.AuthToken) error {
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(tok).Error
}

// ConsumeToken marks the token identified by digest and type as consumed and
// returns it. The conditional UPDATE makes consumption atomic: of any number
// of concurrent callers presenting the same token, exactly one succeeds.
func ConsumeToken(ctx context.Context, db *gorm.DB, digest, typ string, now time.Time) (*domain.AuthToken, error) {
	var tok domain.AuthToken
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.AuthToken{}).
			Where("digest = ? AND type = ? AND consumed_at IS NULL AND expires_at > ?", digest, typ, now).
			Update("consumed_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenUnusable
		}
		return tx.Where("digest = ?", digest).First(&tok).Error
	})
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// DeleteExpiredTokens removes tokens that expired before now.
func DeleteExpiredTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.AuthToken{})
	return res.RowsAffected, res.Error
}

// CreateSession stores a session row.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetActiveSession returns a session that is neither revoked nor expired.
func GetActiveSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("id = ? AND revoked_at IS NULL AND expires_at > ?", id, now).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RevokeSession marks a session revoked. Revoking twice is not an error.
func RevokeSession(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", now).Error
}
