// Package services – RoomService
//
// This file implements the room wizard submission: a room in one of the
// owner's locations, with an optional equipment list.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/forms"
)

// RoomRepo defines the persistence needed by RoomService.
type RoomRepo interface {
	CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error
	ListRooms(ctx context.Context, db *gorm.DB, locationID string) ([]domain.Room, error)
	DeleteRoom(ctx context.Context, db *gorm.DB, id, ownerID string) error
}

// RoomService adds and removes rooms.
type RoomService struct {
	DB      *gorm.DB
	Repo    RoomRepo
	Clinics ClinicRepo
	Drafts  DraftClearer
	Metrics Invalidator
}

// NewRoomService constructs a RoomService.
func NewRoomService(db *gorm.DB, r RoomRepo, clinics ClinicRepo, drafts DraftClearer, metrics Invalidator) *RoomService {
	return &RoomService{DB: db, Repo: r, Clinics: clinics, Drafts: drafts, Metrics: metrics}
}

// equipmentItem accepts either a bare name or {name, serial}.
type equipmentItem struct {
	Name   string `json:"name"`
	Serial string `json:"serial"`
}

func parseEquipment(v any) ([]domain.Equipment, error) {
	items, _ := v.([]any)
	if v != nil && items == nil {
		if err := decode(v, &items); err != nil {
			return nil, err
		}
	}
	out := make([]domain.Equipment, 0, len(items))
	for _, it := range items {
		var e equipmentItem
		switch t := it.(type) {
		case string:
			e.Name = t
		default:
			if err := decode(t, &e); err != nil {
				return nil, err
			}
		}
		if e.Name = normalize(e.Name); e.Name == "" {
			continue
		}
		out = append(out, domain.Equipment{Name: e.Name, Serial: normalize(e.Serial)})
	}
	return out, nil
}

// Create validates a room wizard submission for locationID and stores it.
func (s *RoomService) Create(ctx context.Context, ownerID, locationID string, fields map[string]any, draftKey string) (*domain.Room, error) {
	loc, err := s.Clinics.GetLocation(ctx, s.DB, locationID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	fields = cloneFields(fields)
	fields["location_id"] = loc.ID
	if _, ok := fields["capacity"]; !ok {
		fields["capacity"] = 1
	}

	schema, err := forms.Lookup(forms.WizardRoom)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateAll(forms.State{Fields: fields, Facts: forms.Facts{LocationIDs: []string{loc.ID}}}); err != nil {
		return nil, err
	}
	capacity, _ := forms.Int(fields["capacity"])
	equipment, err := parseEquipment(fields["equipment"])
	if err != nil {
		return nil, &forms.ValidationError{Step: "equipment", Fields: map[string]string{"equipment": "Equipment must be a list"}}
	}

	r := &domain.Room{
		LocationID: loc.ID,
		Name:       str(fields, "name"),
		Kind:       str(fields, "kind"),
		Capacity:   capacity,
		Equipment:  equipment,
	}
	if err := s.Repo.CreateRoom(ctx, s.DB, r); err != nil {
		return nil, err
	}
	clearDraft(ctx, s.Drafts, draftKey)
	invalidate(s.Metrics, loc.ClinicID)
	return r, nil
}

// List returns the rooms of an owned location.
func (s *RoomService) List(ctx context.Context, ownerID, locationID string) ([]domain.Room, error) {
	if _, err := s.Clinics.GetLocation(ctx, s.DB, locationID, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return s.Repo.ListRooms(ctx, s.DB, locationID)
}

// Delete removes an owned room.
func (s *RoomService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.Repo.DeleteRoom(ctx, s.DB, id, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	invalidate(s.Metrics)
	return nil
}
