package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/repo"
)

func staffFields() map[string]any {
	return map[string]any{
		"first_name":   "Nina",
		"last_name":    "Nguyen",
		"email":        "Nina@Example.com",
		"role":         "nurse",
		"ahpra_number": "nmw 0001234567",
	}
}

func TestStaffService_Create_SingleClinicAutoAssignsAndInvites(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)
	idp := newIdentity(db)
	inv := &recordingInvalidator{}
	c := mustClinic(t, db, "owner-1")
	s := NewStaffService(db, dbRepo{}, dbRepo{}, idp, nil, inv)

	out, err := s.Create(ctx, "owner-1", "", staffFields(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Staff.ClinicID != c.ID {
		t.Fatalf("expected clinic %s, got %s", c.ID, out.Staff.ClinicID)
	}
	if out.Staff.Email != "nina@example.com" || out.Staff.AHPRANumber != "NMW0001234567" {
		t.Fatalf("normalization mismatch: %+v", out.Staff)
	}
	if out.InviteToken == "" || out.Staff.UserID == nil {
		t.Fatalf("expected invite token and linked user, got %+v", out)
	}

	sess, err := idp.VerifyToken(ctx, out.InviteToken, identity.TokenInvite)
	if err != nil {
		t.Fatalf("invite token must verify: %v", err)
	}
	if sess.User.ID != *out.Staff.UserID {
		t.Fatalf("invite resolves to %s, staff linked to %s", sess.User.ID, *out.Staff.UserID)
	}
	if len(inv.calls) != 1 || inv.calls[0][0] != c.ID {
		t.Fatalf("expected invalidation of %s, got %v", c.ID, inv.calls)
	}
}

func TestStaffService_Create_MultipleClinicsRequireChoice(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)
	mustClinic(t, db, "owner-1")
	second := mustClinic(t, db, "owner-1")
	s := NewStaffService(db, dbRepo{}, dbRepo{}, nil, nil, nil)

	_, err := s.Create(ctx, "owner-1", "", staffFields(), "")
	var ve *forms.ValidationError
	if !errors.As(err, &ve) || ve.Step != "clinic" || ve.Fields["clinic_id"] != "Choose a clinic" {
		t.Fatalf("expected clinic step validation, got %v", err)
	}

	f := staffFields()
	f["clinic_id"] = second.ID
	out, err := s.Create(ctx, "owner-1", "", f, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Staff.ClinicID != second.ID {
		t.Fatalf("expected clinic %s, got %s", second.ID, out.Staff.ClinicID)
	}
	if out.InviteToken != "" {
		t.Fatalf("no inviter configured, expected no token")
	}
}

func TestStaffService_Create_Errors(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)
	s := NewStaffService(db, dbRepo{}, dbRepo{}, nil, nil, nil)

	if _, err := s.Create(ctx, "owner-1", "", staffFields(), ""); !errors.Is(err, ErrNoClinic) {
		t.Fatalf("expected ErrNoClinic, got %v", err)
	}

	c := mustClinic(t, db, "owner-1")
	other := mustClinic(t, db, "owner-2")
	if _, err := s.Create(ctx, "owner-1", other.ID, staffFields(), ""); !errors.Is(err, ErrClinicNotFound) {
		t.Fatalf("expected ErrClinicNotFound for foreign clinic, got %v", err)
	}

	if _, err := s.Create(ctx, "owner-1", c.ID, staffFields(), ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.Create(ctx, "owner-1", c.ID, staffFields(), ""); !errors.Is(err, ErrDuplicateStaff) {
		t.Fatalf("expected ErrDuplicateStaff, got %v", err)
	}

	f := staffFields()
	f["role"] = "surgeon"
	_, err := s.Create(ctx, "owner-1", c.ID, f, "")
	var ve *forms.ValidationError
	if !errors.As(err, &ve) || ve.Step != "credentials" {
		t.Fatalf("expected credentials validation error, got %v", err)
	}
}

func TestStaffService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)
	c := mustClinic(t, db, "owner-1")
	s := NewStaffService(db, dbRepo{}, dbRepo{}, nil, nil, &recordingInvalidator{})

	out, err := s.Create(ctx, "owner-1", c.ID, staffFields(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	list, err := s.List(ctx, "owner-1", c.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %v", list, err)
	}
	if _, err := s.List(ctx, "owner-2", c.ID); !errors.Is(err, ErrClinicNotFound) {
		t.Fatalf("expected ErrClinicNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "owner-2", out.Staff.ID); !errors.Is(err, ErrStaffNotFound) {
		t.Fatalf("expected ErrStaffNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "owner-1", out.Staff.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if list, _ := repo.ListStaff(ctx, db, c.ID); len(list) != 0 {
		t.Fatalf("expected no staff, got %d", len(list))
	}
}

type failingInviter struct{ err error }

func (f failingInviter) IssueToken(context.Context, string, string, identity.TokenType, string) (string, *domain.User, error) {
	return "", nil, f.err
}

func TestStaffService_Create_InviteFailureLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	db := newSvcDB(t)
	c := mustClinic(t, db, "owner-1")
	boom := errors.New("mailer down")

	s := NewStaffService(db, dbRepo{}, dbRepo{}, failingInviter{err: boom}, nil, nil)
	if _, err := s.Create(ctx, "owner-1", "", staffFields(), ""); !errors.Is(err, boom) {
		t.Fatalf("expected invite error, got %v", err)
	}
	list, err := s.List(ctx, "owner-1", c.ID)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no staff after failed invite, got %d %v", len(list), err)
	}

	s.Inviter = newIdentity(db)
	out, err := s.Create(ctx, "owner-1", "", staffFields(), "")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if out.InviteToken == "" || out.Staff.UserID == nil {
		t.Fatalf("retry must invite and link, got %+v", out)
	}
}
