package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection so the FK pragma applies to every statement.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]interface{ TableName() string }{
		"clinics":         Clinic{},
		"locations":       Location{},
		"operating_hours": OperatingHour{},
		"staff_members":   StaffMember{},
		"rooms":           Room{},
		"equipment":       Equipment{},
		"users":           User{},
		"auth_tokens":     AuthToken{},
		"sessions":        Session{},
		"form_drafts":     FormDraft{},
		"ui_preferences":  Preferences{},
		"idempotency":     Idempotency{},
	}
	for want, m := range cases {
		if got := m.TableName(); got != want {
			t.Errorf("%T.TableName() = %q; want %q", m, got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Clinic{}, &Location{}, &OperatingHour{}, &StaffMember{}, &Room{}, &Equipment{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasIndex(&Clinic{}, "idx_owner_clinics") {
		t.Fatalf("expected index idx_owner_clinics on clinics")
	}
	if !m.HasIndex(&StaffMember{}, "ux_staff_clinic_email") {
		t.Fatalf("expected unique index ux_staff_clinic_email on staff_members")
	}
	if !m.HasIndex(&OperatingHour{}, "ux_location_weekday") {
		t.Fatalf("expected unique index ux_location_weekday on operating_hours")
	}

	now := time.Now().UTC()
	c := Clinic{ID: "11111111-1111-1111-1111-111111111111", OwnerID: "owner", Name: "Bondi Clinic", Email: "bondi@example.com", Phone: "+61 2 9000 0000", CreatedAt: now}
	loc := Location{ID: "22222222-2222-2222-2222-222222222222", ClinicID: c.ID, Address: "1 Beach Rd", Suburb: "Bondi", State: "NSW", Postcode: "2026"}
	room := Room{ID: "33333333-3333-3333-3333-333333333333", LocationID: loc.ID, Name: "Room 1", Kind: RoomTreatment, Capacity: 1}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create clinic: %v", err)
	}
	if err := db.Create(&loc).Error; err != nil {
		t.Fatalf("create location: %v", err)
	}
	if err := db.Create(&room).Error; err != nil {
		t.Fatalf("create room: %v", err)
	}

	// Hard-delete the location; rooms cascade.
	if err := db.Unscoped().Delete(&Location{}, "id = ?", loc.ID).Error; err != nil {
		t.Fatalf("delete location: %v", err)
	}
	var n int64
	db.Model(&Room{}).Where("location_id = ?", loc.ID).Count(&n)
	if n != 0 {
		t.Fatalf("expected rooms to cascade, still have %d", n)
	}
}

func TestStaffUniquePerClinic(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Clinic{}, &StaffMember{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	c := Clinic{ID: "c1", OwnerID: "o", Name: "n", Email: "e@x.com", Phone: "p"}
	db.Create(&c)
	s1 := StaffMember{ID: "s1", ClinicID: c.ID, FirstName: "A", LastName: "B", Email: "a@x.com", Role: RoleNurse}
	s2 := StaffMember{ID: "s2", ClinicID: c.ID, FirstName: "C", LastName: "D", Email: "a@x.com", Role: RoleDoctor}
	if err := db.Create(&s1).Error; err != nil {
		t.Fatalf("create s1: %v", err)
	}
	if err := db.Create(&s2).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate email in clinic")
	}
}

func TestParseTimeframe(t *testing.T) {
	for _, s := range []string{"day", "week", "month", "year"} {
		if tf, err := ParseTimeframe(s); err != nil || string(tf) != s {
			t.Errorf("ParseTimeframe(%q) = %q, %v", s, tf, err)
		}
	}
	for _, s := range []string{"", "Week", "quarter"} {
		if _, err := ParseTimeframe(s); err == nil {
			t.Errorf("ParseTimeframe(%q) should fail", s)
		}
	}
}

func TestTimeframeSince(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	cases := map[Timeframe]time.Time{
		TimeframeDay:   time.Date(2026, 3, 30, 12, 0, 0, 0, time.UTC),
		TimeframeWeek:  time.Date(2026, 3, 24, 12, 0, 0, 0, time.UTC),
		TimeframeMonth: now.AddDate(0, -1, 0),
		TimeframeYear:  time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC),
	}
	for tf, want := range cases {
		if got := tf.Since(now); !got.Equal(want) {
			t.Errorf("%s.Since = %v; want %v", tf, got, want)
		}
	}
}
