// Package services – StaffService
//
// This file implements the staff wizard submission. The clinic-assignment
// step is hidden when the owner has exactly one clinic; in that case the
// clinic is filled in automatically. Every new staff member receives an
// invite token from the identity provider and is linked to the account the
// invite resolves to.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/repo"
)

// StaffRepo defines the persistence needed by StaffService.
type StaffRepo interface {
	CreateStaff(ctx context.Context, db *gorm.DB, s *domain.StaffMember) error
	ListStaff(ctx context.Context, db *gorm.DB, clinicID string) ([]domain.StaffMember, error)
	LinkStaffUser(ctx context.Context, db *gorm.DB, staffID, userID string) error
	DeleteStaff(ctx context.Context, db *gorm.DB, id, ownerID string) error
}

// Inviter issues invite tokens. identity.Service satisfies it.
type Inviter interface {
	IssueToken(ctx context.Context, email, fullName string, typ identity.TokenType, redirectTo string) (string, *domain.User, error)
}

// StaffService adds and removes clinic staff.
type StaffService struct {
	DB      *gorm.DB
	Repo    StaffRepo
	Clinics ClinicRepo
	Inviter Inviter
	Drafts  DraftClearer
	Metrics Invalidator
}

// NewStaffService constructs a StaffService.
func NewStaffService(db *gorm.DB, r StaffRepo, clinics ClinicRepo, inviter Inviter, drafts DraftClearer, metrics Invalidator) *StaffService {
	return &StaffService{DB: db, Repo: r, Clinics: clinics, Inviter: inviter, Drafts: drafts, Metrics: metrics}
}

// StaffInvite is the outcome of a staff submission. InviteToken is the raw
// token for the invite link; handlers decide whether to expose it.
type StaffInvite struct {
	Staff       *domain.StaffMember `json:"staff"`
	InviteToken string              `json:"-"`
}

// Create validates and stores a staff wizard submission. clinicID, when not
// empty, pins the clinic (for routes nested under a clinic) and must be
// owned by ownerID.
func (s *StaffService) Create(ctx context.Context, ownerID, clinicID string, fields map[string]any, draftKey string) (*StaffInvite, error) {
	ctx, span := otel.Tracer("services/StaffService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	ids, err := s.Clinics.ListClinicIDs(ctx, s.DB, ownerID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoClinic
	}

	fields = prepareFields(forms.WizardStaff, fields)
	switch {
	case clinicID != "":
		fields["clinic_id"] = clinicID
	case len(ids) == 1 && str(fields, "clinic_id") == "":
		fields["clinic_id"] = ids[0]
	}

	schema, err := forms.Lookup(forms.WizardStaff)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateAll(forms.State{Fields: fields, Facts: forms.Facts{ClinicIDs: ids}}); err != nil {
		return nil, err
	}
	target := str(fields, "clinic_id")
	if !slices.Contains(ids, target) {
		return nil, ErrClinicNotFound
	}

	m := &domain.StaffMember{
		ClinicID:    target,
		FirstName:   str(fields, "first_name"),
		LastName:    str(fields, "last_name"),
		Email:       strings.ToLower(str(fields, "email")),
		Role:        str(fields, "role"),
		AHPRANumber: str(fields, "ahpra_number"),
	}
	if err := s.Repo.CreateStaff(ctx, s.DB, m); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateStaff
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("staff.id", m.ID))

	out := &StaffInvite{Staff: m}
	if s.Inviter != nil {
		raw, u, err := s.Inviter.IssueToken(ctx, m.Email, m.FirstName+" "+m.LastName, identity.TokenInvite, "")
		if err != nil {
			return nil, s.undoCreate(ctx, ownerID, m, fmt.Errorf("invite staff: %w", err))
		}
		if err := s.Repo.LinkStaffUser(ctx, s.DB, m.ID, u.ID); err != nil {
			return nil, s.undoCreate(ctx, ownerID, m, fmt.Errorf("link staff user: %w", err))
		}
		m.UserID = &u.ID
		out.InviteToken = raw
	}

	clearDraft(ctx, s.Drafts, draftKey)
	invalidate(s.Metrics, target)
	return out, nil
}

// List returns the staff of an owned clinic.
func (s *StaffService) List(ctx context.Context, ownerID, clinicID string) ([]domain.StaffMember, error) {
	if _, err := s.Clinics.GetClinic(ctx, s.DB, clinicID, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return s.Repo.ListStaff(ctx, s.DB, clinicID)
}

// Delete removes a staff member from an owned clinic.
func (s *StaffService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.Repo.DeleteStaff(ctx, s.DB, id, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStaffNotFound
		}
		return err
	}
	invalidate(s.Metrics)
	return nil
}

// undoCreate removes a staff row whose invite could not be completed, so the
// submission can be retried. cause is returned, joined with any delete error.
func (s *StaffService) undoCreate(ctx context.Context, ownerID string, m *domain.StaffMember, cause error) error {
	if err := s.Repo.DeleteStaff(context.WithoutCancel(ctx), s.DB, m.ID, ownerID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("staff_id", m.ID).Msg("staff rollback failed")
		return errors.Join(cause, err)
	}
	return cause
}
