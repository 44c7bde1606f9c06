// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for staff members
// and for rooms with their equipment.
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

// ErrDuplicate indicates a unique constraint violation (an idempotency key
// already recorded, or a staff email already present in the clinic).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation detects unique-constraint failures across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations;
	// Postgres reports "duplicate key value violates unique constraint".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// CreateStaff inserts a staff member. A second member with the same email in
// the same clinic yields ErrDuplicate.
func CreateStaff(ctx context.Context, db *gorm.DB, s *domain.StaffMember) error {
	s.ID = uuid.NewString()
	s.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Omit("Clinic").Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListStaff returns the members of a clinic ordered by last then first name.
func ListStaff(ctx context.Context, db *gorm.DB, clinicID string) ([]domain.StaffMember, error) {
	var out []domain.StaffMember
	err := db.WithContext(ctx).
		Where("clinic_id = ?", clinicID).
		Order("last_name asc, first_name asc, id asc").
		Find(&out).Error
	return out, err
}

// LinkStaffUser records the account id of an invited staff member.
func LinkStaffUser(ctx context.Context, db *gorm.DB, staffID, userID string) error {
	return db.WithContext(ctx).
		Model(&domain.StaffMember{}).
		Where("id = ?", staffID).
		Update("user_id", userID).Error
}

// DeleteStaff soft-deletes a staff member whose clinic belongs to ownerID.
func DeleteStaff(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND clinic_id IN (?)", id,
			db.Model(&domain.Clinic{}).Select("id").Where("owner_id = ?", ownerID)).
		Delete(&domain.StaffMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRoom inserts a room and its equipment in one transaction.
func CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	now := time.Now().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	for i := range r.Equipment {
		r.Equipment[i].ID = uuid.NewString()
		r.Equipment[i].RoomID = r.ID
		r.Equipment[i].CreatedAt = now
	}
	equipment := r.Equipment
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Equipment", "Location").Create(r).Error; err != nil {
			return err
		}
		if len(equipment) > 0 {
			return tx.Create(&equipment).Error
		}
		return nil
	})
}

// ListRooms returns the rooms of a location with their equipment.
func ListRooms(ctx context.Context, db *gorm.DB, locationID string) ([]domain.Room, error) {
	var out []domain.Room
	err := db.WithContext(ctx).
		Preload("Equipment", func(q *gorm.DB) *gorm.DB { return q.Order("name asc") }).
		Where("location_id = ?", locationID).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// DeleteRoom removes a room whose location's clinic belongs to ownerID.
func DeleteRoom(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	owned := db.Model(&domain.Location{}).
		Select("locations.id").
		Joins("JOIN clinics ON clinics.id = locations.clinic_id").
		Where("clinics.owner_id = ?", ownerID)
	res := db.WithContext(ctx).
		Where("id = ? AND location_id IN (?)", id, owned).
		Delete(&domain.Room{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
