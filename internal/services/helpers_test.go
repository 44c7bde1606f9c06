package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/draft"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// dbRepo forwards to the repo package, like the router's shims.
type dbRepo struct{}

func (dbRepo) CreateClinic(ctx context.Context, db *gorm.DB, c *domain.Clinic, loc *domain.Location, hours []domain.OperatingHour) error {
	return repo.CreateClinic(ctx, db, c, loc, hours)
}
func (dbRepo) ListClinics(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Clinic, error) {
	return repo.ListClinics(ctx, db, ownerID)
}
func (dbRepo) ListClinicIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error) {
	return repo.ListClinicIDs(ctx, db, ownerID)
}
func (dbRepo) ListLocationIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error) {
	return repo.ListLocationIDs(ctx, db, ownerID)
}
func (dbRepo) GetClinic(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Clinic, error) {
	return repo.GetClinic(ctx, db, id, ownerID)
}
func (dbRepo) UpdateClinic(ctx context.Context, db *gorm.DB, id, ownerID string, updates map[string]any) error {
	return repo.UpdateClinic(ctx, db, id, ownerID, updates)
}
func (dbRepo) DeleteClinic(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	return repo.DeleteClinic(ctx, db, id, ownerID)
}
func (dbRepo) GetLocation(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Location, error) {
	return repo.GetLocation(ctx, db, id, ownerID)
}
func (dbRepo) CreateStaff(ctx context.Context, db *gorm.DB, s *domain.StaffMember) error {
	return repo.CreateStaff(ctx, db, s)
}
func (dbRepo) ListStaff(ctx context.Context, db *gorm.DB, clinicID string) ([]domain.StaffMember, error) {
	return repo.ListStaff(ctx, db, clinicID)
}
func (dbRepo) LinkStaffUser(ctx context.Context, db *gorm.DB, staffID, userID string) error {
	return repo.LinkStaffUser(ctx, db, staffID, userID)
}
func (dbRepo) DeleteStaff(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	return repo.DeleteStaff(ctx, db, id, ownerID)
}
func (dbRepo) CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	return repo.CreateRoom(ctx, db, r)
}
func (dbRepo) ListRooms(ctx context.Context, db *gorm.DB, locationID string) ([]domain.Room, error) {
	return repo.ListRooms(ctx, db, locationID)
}
func (dbRepo) DeleteRoom(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	return repo.DeleteRoom(ctx, db, id, ownerID)
}

// recordingInvalidator remembers Invalidate calls.
type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingInvalidator) Invalidate(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ids)
}

func newDrafts() *draft.Store {
	return draft.New(draft.NewMemoryBackend(time.Hour, nil), draft.Options{Debounce: 0})
}

func newIdentity(db *gorm.DB) *identity.Service {
	s := identity.NewService(db, "0123456789abcdef0123456789abcdef", time.Hour, time.Hour)
	s.Clock = clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return s
}

// bondiFields is a complete clinic wizard submission.
func bondiFields() map[string]any {
	return map[string]any{
		"name":     "Bondi  Clinic",
		"email":    "Hello@BondiClinic.com.au",
		"phone":    "02 9300 1234",
		"abn":      "51 824 753 556",
		"address":  "1 Campbell Parade",
		"suburb":   "BONDI BEACH",
		"state":    "nsw",
		"postcode": "2026",
		"hours":    forms.DefaultHours(),
	}
}

func mustClinic(t *testing.T, db *gorm.DB, ownerID string) *domain.Clinic {
	t.Helper()
	s := NewClinicService(db, dbRepo{}, nil, nil)
	f := bondiFields()
	f["name"] = "Clinic " + uuid.NewString()[:8]
	c, err := s.Create(context.Background(), ownerID, f, "")
	if err != nil {
		t.Fatalf("create clinic: %v", err)
	}
	return c
}
