// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for clinics and
// their locations.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// Every read and write is scoped by the owning user, which is how row-level
// access is enforced in this backend.
//
// Error semantics:
//   - When a clinic or location is not found (or not owned by the caller),
//     functions return ErrNotFound (an alias of gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateClinic inserts a clinic, its first location, and that location's
// operating hours in one transaction. IDs and timestamps are assigned here;
// the passed structs are updated in place.
func CreateClinic(ctx context.Context, db *gorm.DB, c *domain.Clinic, loc *domain.Location, hours []domain.OperatingHour) error {
	now := time.Now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt = now
	loc.ID = uuid.NewString()
	loc.ClinicID = c.ID
	loc.CreatedAt = now
	for i := range hours {
		hours[i].ID = uuid.NewString()
		hours[i].LocationID = loc.ID
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Locations").Create(c).Error; err != nil {
			return err
		}
		if err := tx.Omit("Hours").Create(loc).Error; err != nil {
			return err
		}
		if len(hours) > 0 {
			if err := tx.Create(&hours).Error; err != nil {
				return err
			}
		}
		loc.Hours = hours
		c.Locations = []domain.Location{*loc}
		return nil
	})
}

// ListClinics returns the owner's clinics, newest first.
func ListClinics(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Clinic, error) {
	var out []domain.Clinic
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListClinicIDs returns only the ids of the owner's clinics. Wizards use it
// to resolve skip predicates without loading full rows.
func ListClinicIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Clinic{}).
		Where("owner_id = ?", ownerID).
		Order("created_at asc").
		Pluck("id", &ids).Error
	return ids, err
}

// GetClinic fetches a clinic with its locations and hours, scoped to owner.
func GetClinic(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Clinic, error) {
	var c domain.Clinic
	err := db.WithContext(ctx).
		Preload("Locations", func(q *gorm.DB) *gorm.DB { return q.Order("created_at asc") }).
		Preload("Locations.Hours", func(q *gorm.DB) *gorm.DB { return q.Order("weekday asc") }).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateClinic applies the given column updates to a clinic owned by ownerID.
// It returns ErrNotFound if no row matched.
func UpdateClinic(ctx context.Context, db *gorm.DB, id, ownerID string, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Clinic{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClinic soft-deletes a clinic owned by ownerID.
func DeleteClinic(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&domain.Clinic{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLocation fetches a location whose clinic belongs to ownerID.
func GetLocation(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Location, error) {
	var loc domain.Location
	err := db.WithContext(ctx).
		Joins("JOIN clinics ON clinics.id = locations.clinic_id AND clinics.deleted_at IS NULL").
		Where("locations.id = ? AND clinics.owner_id = ?", id, ownerID).
		First(&loc).Error
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// ListLocationIDs returns the ids of every location of the owner's clinics.
func ListLocationIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Location{}).
		Joins("JOIN clinics ON clinics.id = locations.clinic_id AND clinics.deleted_at IS NULL").
		Where("clinics.owner_id = ?", ownerID).
		Order("locations.created_at asc").
		Pluck("locations.id", &ids).Error
	return ids, err
}
