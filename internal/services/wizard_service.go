// Package services – WizardService
//
// This file serves wizard schemas, server-side step navigation, and the
// autosaved drafts behind each wizard. Navigation is stateless: the client
// sends the step it is on, the fields entered so far, and an action; the
// service rebuilds a sequencer over the owner's resolved facts (their clinic
// and location ids) and answers with the new position or the validation
// errors that blocked it.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/draft"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/observability"
	"github.com/tbourn/facecloud/internal/workflow"
)

// Navigation actions.
const (
	ActionCurrent = "current"
	ActionAdvance = "advance"
	ActionRetreat = "retreat"
	ActionJump    = "jump"
)

// ErrInvalidDraftName rejects draft names outside [A-Za-z0-9_-]{1,64}.
var ErrInvalidDraftName = errors.New("invalid draft name")

var draftNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DraftStore is the part of draft.Store used by wizards.
type DraftStore interface {
	Save(ctx context.Context, key string, d draft.Draft) error
	Load(ctx context.Context, key string, def draft.Draft) draft.Draft
	Clear(ctx context.Context, key string) error
}

// WizardService drives wizards.
type WizardService struct {
	DB      *gorm.DB
	Clinics ClinicRepo
	Drafts  DraftStore
}

// NewWizardService constructs a WizardService.
func NewWizardService(db *gorm.DB, clinics ClinicRepo, drafts DraftStore) *WizardService {
	return &WizardService{DB: db, Clinics: clinics, Drafts: drafts}
}

// NavigateRequest describes one navigation call.
type NavigateRequest struct {
	Action string         `json:"action" example:"advance"`
	From   string         `json:"from,omitempty" example:"details"`
	To     string         `json:"to,omitempty"`
	Fields map[string]any `json:"fields"`
}

// NavigateResult is the position after navigation. Errors is set when
// Advance was refused by validation.
type NavigateResult struct {
	Step    string                 `json:"step"`
	Index   int                    `json:"index"`
	Total   int                    `json:"total"`
	Visible []string               `json:"visible"`
	Last    bool                   `json:"last"`
	Errors  *forms.ValidationError `json:"errors,omitempty"`
}

// Schema returns the schema of a wizard kind.
func (s *WizardService) Schema(kind string) (*forms.Schema, error) {
	return forms.Lookup(kind)
}

// DraftKey builds the storage key of a wizard draft.
func (s *WizardService) DraftKey(sessionID, kind, name string) (string, error) {
	if _, err := forms.Lookup(kind); err != nil {
		return "", err
	}
	if !draftNameRE.MatchString(name) {
		return "", ErrInvalidDraftName
	}
	return draft.Key(sessionID, kind, name), nil
}

func (s *WizardService) facts(ctx context.Context, ownerID string) (forms.Facts, error) {
	clinics, err := s.Clinics.ListClinicIDs(ctx, s.DB, ownerID)
	if err != nil {
		return forms.Facts{}, err
	}
	locations, err := s.Clinics.ListLocationIDs(ctx, s.DB, ownerID)
	if err != nil {
		return forms.Facts{}, err
	}
	return forms.Facts{ClinicIDs: clinics, LocationIDs: locations}, nil
}

// Navigate applies req to the wizard kind. When draftKey is not empty the
// resulting position and fields are autosaved.
func (s *WizardService) Navigate(ctx context.Context, ownerID, kind string, req NavigateRequest, draftKey string) (*NavigateResult, error) {
	schema, err := forms.Lookup(kind)
	if err != nil {
		return nil, err
	}
	facts, err := s.facts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if req.Fields == nil {
		req.Fields = map[string]any{}
	}
	st := forms.State{Fields: prepareFields(kind, req.Fields), Facts: facts}
	seq, err := schema.Sequencer(func() forms.State { return st })
	if err != nil {
		return nil, err
	}

	if req.From != "" {
		var ise *workflow.InvalidStepError
		if err := seq.JumpTo(workflow.StepID(req.From)); err != nil && !(errors.As(err, &ise) && ise.Skipped) {
			return nil, err
		}
	}

	res := &NavigateResult{}
	switch req.Action {
	case "", ActionCurrent:
	case ActionAdvance:
		if _, err := seq.Advance(); err != nil {
			var ve *forms.ValidationError
			if !errors.As(err, &ve) {
				return nil, err
			}
			res.Errors = ve
		}
	case ActionRetreat:
		seq.Retreat()
	case ActionJump:
		if err := seq.JumpTo(workflow.StepID(req.To)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}

	res.Step = string(seq.Current())
	res.Index, res.Total = seq.Position()
	for _, id := range seq.Visible() {
		res.Visible = append(res.Visible, string(id))
	}
	res.Last = seq.IsLast()
	observability.Annotate(ctx,
		attribute.String("wizard.kind", kind),
		attribute.String("wizard.action", req.Action),
		attribute.String("wizard.step", res.Step),
	)

	if draftKey != "" && s.Drafts != nil {
		if err := s.Drafts.Save(ctx, draftKey, draft.Draft{Step: res.Step, StepIndex: res.Index, Fields: req.Fields}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// LoadDraft returns the saved draft for key, or an empty draft positioned at
// the first step.
func (s *WizardService) LoadDraft(ctx context.Context, key string) draft.Draft {
	return s.Drafts.Load(ctx, key, draft.Draft{Fields: map[string]any{}})
}

// SaveDraft autosaves d under key.
func (s *WizardService) SaveDraft(ctx context.Context, key string, d draft.Draft) error {
	return s.Drafts.Save(ctx, key, d)
}

// DiscardDraft removes the draft under key.
func (s *WizardService) DiscardDraft(ctx context.Context, key string) error {
	return s.Drafts.Clear(ctx, key)
}
