// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries: list statistics for
// conditional responses (ETag generation) in the HTTP layer, and the counts
// behind dashboard metrics. Each function is context-aware and safe to call
// from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
)

// ClinicsStats returns aggregate metadata for an owner's clinics: the total
// number of rows and the maximum UpdatedAt timestamp among those rows.
//
// When the owner has no clinics, the returned count is 0 and maxUpdatedAt
// is nil.
func ClinicsStats(ctx context.Context, db *gorm.DB, ownerID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Clinic{}).Where("owner_id = ?", ownerID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// ClinicMetrics counts the locations, rooms and staff of a clinic, how many
// staff and rooms were added since the given time, and how many weekdays
// the clinic's locations are open in total.
func ClinicMetrics(ctx context.Context, db *gorm.DB, clinicID string, since time.Time) (domain.Metrics, error) {
	m := domain.Metrics{ClinicID: clinicID}
	q := db.WithContext(ctx)

	locIDs := q.Model(&domain.Location{}).Select("id").Where("clinic_id = ?", clinicID)

	if err := q.Model(&domain.Location{}).Where("clinic_id = ?", clinicID).Count(&m.Locations).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.Room{}).Where("location_id IN (?)", locIDs).Count(&m.Rooms).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.Room{}).Where("location_id IN (?) AND created_at >= ?", locIDs, since).Count(&m.NewRooms).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.StaffMember{}).Where("clinic_id = ?", clinicID).Count(&m.Staff).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.StaffMember{}).Where("clinic_id = ? AND created_at >= ?", clinicID, since).Count(&m.NewStaff).Error; err != nil {
		return m, err
	}
	if err := q.Model(&domain.OperatingHour{}).Where("location_id IN (?) AND open = ?", locIDs, true).Count(&m.OpenDays).Error; err != nil {
		return m, err
	}
	return m, nil
}
