package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/draft"
	"github.com/tbourn/facecloud/internal/forms"
)

func TestClinicService_Create_BondiScenario(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)
	drafts := newDrafts()
	inv := &recordingInvalidator{}
	s := NewClinicService(db, dbRepo{}, drafts, inv)

	key := draft.Key("sess1", forms.WizardClinic, "new")
	if err := drafts.Save(ctx, key, draft.Draft{Step: "review", StepIndex: 4, Fields: bondiFields()}); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	c, err := s.Create(ctx, "owner-1", bondiFields(), key)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == "" || len(c.Locations) != 1 || c.Locations[0].ID == "" {
		t.Fatalf("expected clinic and location ids, got %+v", c)
	}
	if c.Name != "Bondi Clinic" || c.Email != "hello@bondiclinic.com.au" || c.Phone != "0293001234" || c.ABN != "51824753556" {
		t.Fatalf("normalization mismatch: %+v", c)
	}
	loc := c.Locations[0]
	if loc.Suburb != "Bondi Beach" || loc.State != "NSW" || loc.Postcode != "2026" {
		t.Fatalf("location mismatch: %+v", loc)
	}
	if len(loc.Hours) != 7 {
		t.Fatalf("expected 7 hour rows, got %d", len(loc.Hours))
	}

	got := drafts.Load(ctx, key, draft.Draft{Step: "default"})
	if got.Step != "default" {
		t.Fatalf("draft not cleared: %+v", got)
	}
	if len(inv.calls) != 1 || len(inv.calls[0]) != 1 || inv.calls[0][0] != c.ID {
		t.Fatalf("expected invalidation of %s, got %v", c.ID, inv.calls)
	}

	stored, err := s.Get(ctx, "owner-1", c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	open := 0
	for _, h := range stored.Locations[0].Hours {
		if h.Open {
			open++
			if h.OpensAt != "09:00" || h.ClosesAt != "17:00" {
				t.Fatalf("hours mismatch: %+v", h)
			}
		}
	}
	if open != 5 {
		t.Fatalf("expected 5 open days, got %d", open)
	}
}

func TestClinicService_Create_NoOpenDay(t *testing.T) {
	db := newSvcDB(t)
	s := NewClinicService(db, dbRepo{}, nil, nil)
	f := bondiFields()
	days := forms.DefaultHours()
	for i := range days {
		days[i].Open = false
	}
	f["hours"] = days

	_, err := s.Create(context.Background(), "owner-1", f, "")
	var ve *forms.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Step != "hours" || ve.Fields["hours"] != forms.MsgNoOpenDay {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
	if n, _ := s.List(context.Background(), "owner-1"); len(n) != 0 {
		t.Fatalf("nothing should be stored, got %d clinics", len(n))
	}
}

func TestClinicService_Create_FirstFailingStepWins(t *testing.T) {
	s := NewClinicService(newSvcDB(t), dbRepo{}, nil, nil)
	f := bondiFields()
	f["email"] = "not-an-email"
	f["postcode"] = "20"

	_, err := s.Create(context.Background(), "owner-1", f, "")
	var ve *forms.ValidationError
	if !errors.As(err, &ve) || ve.Step != "details" {
		t.Fatalf("expected details step failure, got %v", err)
	}
	if _, ok := ve.Fields["email"]; !ok {
		t.Fatalf("expected email error, got %v", ve.Fields)
	}
}

type failingClinicRepo struct{ dbRepo }

func (failingClinicRepo) CreateClinic(context.Context, *gorm.DB, *domain.Clinic, *domain.Location, []domain.OperatingHour) error {
	return errors.New("disk full")
}

func TestClinicService_Create_StoreFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	drafts := newDrafts()
	inv := &recordingInvalidator{}
	s := NewClinicService(newSvcDB(t), failingClinicRepo{}, drafts, inv)
	key := draft.Key("sess1", forms.WizardClinic, "new")
	_ = drafts.Save(ctx, key, draft.Draft{Step: "review", Fields: map[string]any{"name": "x"}})

	if _, err := s.Create(ctx, "owner-1", bondiFields(), key); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	if got := drafts.Load(ctx, key, draft.Draft{}); got.Step != "review" {
		t.Fatalf("draft must survive a failed submission, got %+v", got)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("no invalidation expected, got %v", inv.calls)
	}
}

func TestClinicService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)
	inv := &recordingInvalidator{}
	s := NewClinicService(db, dbRepo{}, nil, inv)
	c := mustClinic(t, db, "owner-1")

	name := "  Bondi   Skin  "
	got, err := s.Update(ctx, "owner-1", c.ID, ClinicPatch{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Bondi Skin" {
		t.Fatalf("expected normalized name, got %q", got.Name)
	}

	bad := "0000"
	_, err = s.Update(ctx, "owner-1", c.ID, ClinicPatch{Phone: &bad})
	var ve *forms.ValidationError
	if !errors.As(err, &ve) || ve.Fields["phone"] == "" {
		t.Fatalf("expected phone validation error, got %v", err)
	}

	if _, err := s.Update(ctx, "someone-else", c.ID, ClinicPatch{Name: &name}); !errors.Is(err, ErrClinicNotFound) {
		t.Fatalf("expected ErrClinicNotFound for foreign owner, got %v", err)
	}

	if err := s.Delete(ctx, "someone-else", c.ID); !errors.Is(err, ErrClinicNotFound) {
		t.Fatalf("expected ErrClinicNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "owner-1", c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "owner-1", c.ID); !errors.Is(err, ErrClinicNotFound) {
		t.Fatalf("expected deleted clinic to be gone, got %v", err)
	}
	if len(inv.calls) != 2 {
		t.Fatalf("expected invalidation on update and delete, got %v", inv.calls)
	}
}
