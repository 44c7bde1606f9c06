// Package services – ClinicService
//
// This file implements the ClinicService, which turns a completed clinic
// wizard into a clinic, its first location, and that location's operating
// hours. Submissions are validated against the clinic wizard schema (every
// visible step), normalized, and stored in one transaction; afterwards the
// wizard draft is cleared and cached dashboard metrics are invalidated.
//
// Service-level errors (e.g., ErrClinicNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/repo"
)

// ClinicRepo defines the repository contract required by ClinicService and
// by the services that check clinic or location ownership.
type ClinicRepo interface {
	// CreateClinic inserts a clinic with one location and its hours.
	CreateClinic(ctx context.Context, db *gorm.DB, c *domain.Clinic, loc *domain.Location, hours []domain.OperatingHour) error

	// ListClinics returns the owner's clinics.
	ListClinics(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Clinic, error)

	// ListClinicIDs returns the ids of the owner's clinics.
	ListClinicIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error)

	// ListLocationIDs returns the ids of every location the owner has.
	ListLocationIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error)

	// GetClinic fetches a clinic with locations and hours, scoped to owner.
	GetClinic(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Clinic, error)

	// UpdateClinic applies column updates to an owned clinic.
	UpdateClinic(ctx context.Context, db *gorm.DB, id, ownerID string, updates map[string]any) error

	// DeleteClinic soft-deletes an owned clinic.
	DeleteClinic(ctx context.Context, db *gorm.DB, id, ownerID string) error

	// GetLocation fetches a location whose clinic is owned by ownerID.
	GetLocation(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Location, error)
}

// ClinicService creates and manages clinics.
type ClinicService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the clinic repository used by this service.
	Repo ClinicRepo
	// Drafts clears the wizard draft after a successful submission.
	Drafts DraftClearer
	// Metrics is invalidated whenever clinic data changes.
	Metrics Invalidator

	// Locale drives title-casing of suburbs.
	Locale language.Tag
}

// NewClinicService constructs a ClinicService for Australian English.
func NewClinicService(db *gorm.DB, r ClinicRepo, drafts DraftClearer, metrics Invalidator) *ClinicService {
	return &ClinicService{
		DB:      db,
		Repo:    r,
		Drafts:  drafts,
		Metrics: metrics,
		Locale:  language.MustParse("en-AU"),
	}
}

// Create validates a clinic wizard submission and stores it. draftKey names
// the wizard draft to discard on success; it may be empty. A failing field
// yields *forms.ValidationError.
func (s *ClinicService) Create(ctx context.Context, ownerID string, fields map[string]any, draftKey string) (*domain.Clinic, error) {
	ctx, span := otel.Tracer("services/ClinicService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	schema, err := forms.Lookup(forms.WizardClinic)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateAll(forms.State{Fields: fields}); err != nil {
		return nil, err
	}
	days, err := forms.ParseHours(fields["hours"])
	if err != nil {
		return nil, &forms.ValidationError{Step: "hours", Fields: map[string]string{"hours": err.Error()}}
	}

	c := &domain.Clinic{
		OwnerID: ownerID,
		Name:    str(fields, "name"),
		Email:   strings.ToLower(str(fields, "email")),
		Phone:   digits(str(fields, "phone")),
		ABN:     digits(str(fields, "abn")),
	}
	if logo, ok := fields["logo"].(string); ok && !strings.HasPrefix(logo, "data:") {
		c.LogoPath = strings.TrimSpace(logo)
	}
	loc := &domain.Location{
		Address:  str(fields, "address"),
		Suburb:   cases.Title(s.Locale).String(strings.ToLower(str(fields, "suburb"))),
		State:    strings.ToUpper(str(fields, "state")),
		Postcode: str(fields, "postcode"),
	}
	hours := make([]domain.OperatingHour, 0, len(days))
	for _, d := range days {
		h := domain.OperatingHour{Weekday: int(d.Weekday), Open: d.Open}
		if d.Open {
			h.OpensAt, h.ClosesAt = d.OpensAt, d.ClosesAt
		}
		hours = append(hours, h)
	}

	if err := s.Repo.CreateClinic(ctx, s.DB, c, loc, hours); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.id", c.ID))

	clearDraft(ctx, s.Drafts, draftKey)
	invalidate(s.Metrics, c.ID)
	return c, nil
}

// List returns the owner's clinics.
func (s *ClinicService) List(ctx context.Context, ownerID string) ([]domain.Clinic, error) {
	return s.Repo.ListClinics(ctx, s.DB, ownerID)
}

// Stats returns the owner's clinic count and latest update time, the inputs
// of the clinic list ETag.
func (s *ClinicService) Stats(ctx context.Context, ownerID string) (int64, *time.Time, error) {
	return repo.ClinicsStats(ctx, s.DB, ownerID)
}

// Get returns one clinic with its locations and hours.
func (s *ClinicService) Get(ctx context.Context, ownerID, id string) (*domain.Clinic, error) {
	c, err := s.Repo.GetClinic(ctx, s.DB, id, ownerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClinicNotFound
	}
	return c, err
}

// ClinicPatch holds the editable contact details; nil fields are kept.
type ClinicPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
	ABN   *string `json:"abn,omitempty"`
}

// Update applies p to an owned clinic. The merged details are validated with
// the same rules as the wizard's details step.
func (s *ClinicService) Update(ctx context.Context, ownerID, id string, p ClinicPatch) (*domain.Clinic, error) {
	cur, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	merged := map[string]any{"name": cur.Name, "email": cur.Email, "phone": cur.Phone, "abn": cur.ABN}
	updates := map[string]any{}
	set := func(col string, v *string, clean func(string) string) {
		if v == nil {
			return
		}
		merged[col] = *v
		updates[col] = clean(normalize(*v))
	}
	set("name", p.Name, func(v string) string { return v })
	set("email", p.Email, strings.ToLower)
	set("phone", p.Phone, digits)
	set("abn", p.ABN, digits)
	if len(updates) == 0 {
		return cur, nil
	}

	schema, err := forms.Lookup(forms.WizardClinic)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateStep("details", forms.State{Fields: merged}); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateClinic(ctx, s.DB, id, ownerID, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	invalidate(s.Metrics, id)
	return s.Get(ctx, ownerID, id)
}

// Delete soft-deletes an owned clinic.
func (s *ClinicService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.Repo.DeleteClinic(ctx, s.DB, id, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClinicNotFound
		}
		return err
	}
	invalidate(s.Metrics, id)
	return nil
}
