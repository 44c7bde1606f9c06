package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
)


func weekHours() []domain.OperatingHour {
	hours := make([]domain.OperatingHour, 7)
	for d := range hours {
		hours[d] = domain.OperatingHour{Weekday: d, Open: d >= 1 && d <= 5, OpensAt: "09:00", ClosesAt: "17:00"}
	}
	return hours
}

func seedClinic(t *testing.T, db *gorm.DB, ownerID, name string) (*domain.Clinic, *domain.Location) {
	t.Helper()
	c := &domain.Clinic{OwnerID: ownerID, Name: name, Email: "hello@clinic.test", Phone: "0291234567"}
	loc := &domain.Location{Address: "1 Campbell Pde", Suburb: "Bondi Beach", State: "NSW", Postcode: "2026"}
	if err := CreateClinic(context.Background(), db, c, loc, weekHours()); err != nil {
		t.Fatalf("CreateClinic: %v", err)
	}
	return c, loc
}

func TestCreateClinic_AssignsIDsAndNestsLocation(t *testing.T) {
	db := newRepoDB(t)
	c, loc := seedClinic(t, db, "owner-1", "Bondi Skin")

	if c.ID == "" || loc.ID == "" {
		t.Fatalf("ids not assigned: clinic=%q location=%q", c.ID, loc.ID)
	}
	if loc.ClinicID != c.ID {
		t.Fatalf("location.ClinicID = %q, want %q", loc.ClinicID, c.ID)
	}
	if len(c.Locations) != 1 || len(c.Locations[0].Hours) != 7 {
		t.Fatalf("nested location/hours not set: %+v", c.Locations)
	}

	got, err := GetClinic(context.Background(), db, c.ID, "owner-1")
	if err != nil {
		t.Fatalf("GetClinic: %v", err)
	}
	if len(got.Locations) != 1 {
		t.Fatalf("locations = %d", len(got.Locations))
	}
	hours := got.Locations[0].Hours
	if len(hours) != 7 || hours[0].Weekday != 0 || hours[6].Weekday != 6 {
		t.Fatalf("hours not ordered by weekday: %+v", hours)
	}
}

func TestCreateClinic_DuplicateWeekdayRollsBack(t *testing.T) {
	db := newRepoDB(t)
	hours := []domain.OperatingHour{{Weekday: 1, Open: true}, {Weekday: 1, Open: false}}
	c := &domain.Clinic{OwnerID: "owner-1", Name: "Dup", Email: "a@b.test", Phone: "1"}
	loc := &domain.Location{Address: "x", Suburb: "y", State: "NSW", Postcode: "2000"}

	if err := CreateClinic(context.Background(), db, c, loc, hours); err == nil {
		t.Fatal("expected unique violation on weekday")
	}
	var n int64
	db.Model(&domain.Clinic{}).Count(&n)
	if n != 0 {
		t.Fatalf("clinic row survived rollback: %d", n)
	}
}

func TestClinicQueries_AreOwnerScoped(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a, locA := seedClinic(t, db, "owner-1", "A")
	time.Sleep(5 * time.Millisecond)
	b, locB := seedClinic(t, db, "owner-1", "B")
	other, _ := seedClinic(t, db, "owner-2", "Other")

	list, err := ListClinics(ctx, db, "owner-1")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListClinics = %d, %v", len(list), err)
	}
	if list[0].ID != b.ID {
		t.Fatalf("want newest first, got %q", list[0].Name)
	}

	ids, err := ListClinicIDs(ctx, db, "owner-1")
	if err != nil || len(ids) != 2 || ids[0] != a.ID {
		t.Fatalf("ListClinicIDs = %v, %v", ids, err)
	}
	locs, err := ListLocationIDs(ctx, db, "owner-1")
	if err != nil || len(locs) != 2 || locs[0] != locA.ID || locs[1] != locB.ID {
		t.Fatalf("ListLocationIDs = %v, %v", locs, err)
	}

	if _, err := GetClinic(ctx, db, other.ID, "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign GetClinic err = %v", err)
	}
	if _, err := GetLocation(ctx, db, locA.ID, "owner-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign GetLocation err = %v", err)
	}
	if loc, err := GetLocation(ctx, db, locA.ID, "owner-1"); err != nil || loc.ClinicID != a.ID {
		t.Fatalf("GetLocation = %+v, %v", loc, err)
	}
}

func TestUpdateAndDeleteClinic(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	c, loc := seedClinic(t, db, "owner-1", "Before")

	if err := UpdateClinic(ctx, db, c.ID, "owner-2", map[string]any{"name": "Hijack"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign update err = %v", err)
	}
	if err := UpdateClinic(ctx, db, c.ID, "owner-1", map[string]any{"name": "After"}); err != nil {
		t.Fatalf("UpdateClinic: %v", err)
	}
	got, _ := GetClinic(ctx, db, c.ID, "owner-1")
	if got.Name != "After" {
		t.Fatalf("name = %q", got.Name)
	}

	if err := DeleteClinic(ctx, db, c.ID, "owner-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete err = %v", err)
	}
	if err := DeleteClinic(ctx, db, c.ID, "owner-1"); err != nil {
		t.Fatalf("DeleteClinic: %v", err)
	}
	if err := DeleteClinic(ctx, db, c.ID, "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	// Locations of a soft-deleted clinic are no longer reachable.
	if _, err := GetLocation(ctx, db, loc.ID, "owner-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("location of deleted clinic err = %v", err)
	}
	if ids, _ := ListLocationIDs(ctx, db, "owner-1"); len(ids) != 0 {
		t.Fatalf("location ids after delete = %v", ids)
	}
}
