package forms

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/facecloud/internal/workflow"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

// Wizard kinds shipped with the binary.
const (
	WizardClinic = "clinic"
	WizardStaff  = "staff"
	WizardRoom   = "room"
)

// ErrUnknownWizard is returned by Lookup for a kind with no schema.
var ErrUnknownWizard = errors.New("unknown wizard")

// Facts carries data resolved outside the form (typically loaded from the
// database) that skip predicates may consult.
type Facts struct {
	ClinicIDs   []string `json:"clinic_ids,omitempty"`
	LocationIDs []string `json:"location_ids,omitempty"`
}

// State is the fully resolved snapshot a wizard is evaluated against.
type State struct {
	Fields map[string]any `json:"fields"`
	Facts  Facts          `json:"facts"`
}

// Predicate decides whether a step is hidden for a snapshot.
type Predicate func(State) bool

var predicates = map[string]Predicate{
	"single_clinic":   func(s State) bool { return len(s.Facts.ClinicIDs) == 1 },
	"single_location": func(s State) bool { return len(s.Facts.LocationIDs) == 1 },
}

// Field is one input of a step.
type Field struct {
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label" json:"label"`
	Type  string `yaml:"type,omitempty" json:"type,omitempty"`
	// Binary fields carry uploads and never survive a draft round-trip.
	Binary bool   `yaml:"binary,omitempty" json:"binary,omitempty"`
	Rules  []Rule `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Step groups the fields shown on one page.
type Step struct {
	ID       string  `yaml:"id" json:"id"`
	Title    string  `yaml:"title" json:"title"`
	SkipWhen string  `yaml:"skip_when,omitempty" json:"skip_when,omitempty"`
	Fields   []Field `yaml:"fields,omitempty" json:"fields,omitempty"`

	skip Predicate
}

// Schema is a compiled wizard definition.
type Schema struct {
	Kind  string `yaml:"wizard" json:"kind"`
	Steps []Step `yaml:"steps" json:"steps"`

	index map[string]int
}

// Parse decodes and compiles a YAML schema.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("forms: decode schema: %w", err)
	}
	if err := s.compile(); err != nil {
		return nil, fmt.Errorf("forms: schema %q: %w", s.Kind, err)
	}
	return &s, nil
}

func (s *Schema) compile() error {
	if s.Kind == "" {
		return errors.New("missing wizard name")
	}
	if len(s.Steps) == 0 {
		return errors.New("no steps")
	}
	s.index = make(map[string]int, len(s.Steps))
	for i := range s.Steps {
		st := &s.Steps[i]
		if _, dup := s.index[st.ID]; dup || st.ID == "" {
			return fmt.Errorf("step %d: missing or duplicate id %q", i, st.ID)
		}
		s.index[st.ID] = i
		if st.SkipWhen != "" {
			p, ok := predicates[st.SkipWhen]
			if !ok {
				return fmt.Errorf("step %q: unknown predicate %q", st.ID, st.SkipWhen)
			}
			st.skip = p
		}
		for j := range st.Fields {
			f := &st.Fields[j]
			for k := range f.Rules {
				if err := f.Rules[k].compile(); err != nil {
					return fmt.Errorf("step %q field %q: %w", st.ID, f.Name, err)
				}
			}
		}
	}
	return nil
}

var (
	loadOnce sync.Once
	loaded   map[string]*Schema
	loadErr  error
)

// Schemas returns every embedded schema keyed by wizard kind.
func Schemas() (map[string]*Schema, error) {
	loadOnce.Do(func() {
		loaded, loadErr = loadFS(schemaFS, "schemas")
	})
	return loaded, loadErr
}

func loadFS(fsys fs.FS, dir string) (map[string]*Schema, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Schema, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		s, err := Parse(data)
		if err != nil {
			return nil, err
		}
		out[s.Kind] = s
	}
	return out, nil
}

// Lookup returns the schema for kind.
func Lookup(kind string) (*Schema, error) {
	all, err := Schemas()
	if err != nil {
		return nil, err
	}
	s, ok := all[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWizard, kind)
	}
	return s, nil
}

// ValidationError lists the failing fields of one step.
type ValidationError struct {
	Step   string            `json:"step"`
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for n := range e.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ": " + e.Fields[n]
	}
	return fmt.Sprintf("step %q: %s", e.Step, strings.Join(parts, "; "))
}

// ValidateStep checks every field of stepID and returns a *ValidationError
// holding the first failing rule per field.
func (s *Schema) ValidateStep(stepID string, st State) error {
	i, ok := s.index[stepID]
	if !ok {
		return &workflow.InvalidStepError{Step: workflow.StepID(stepID)}
	}
	return s.Steps[i].validate(st)
}

func (st *Step) validate(state State) error {
	var failed map[string]string
	for _, f := range st.Fields {
		v := state.Fields[f.Name]
		for i := range f.Rules {
			if msg := f.Rules[i].Check(v); msg != "" {
				if failed == nil {
					failed = make(map[string]string)
				}
				failed[f.Name] = msg
				break
			}
		}
	}
	if failed != nil {
		return &ValidationError{Step: st.ID, Fields: failed}
	}
	return nil
}

// ValidateAll validates every step that is visible for st, in order, and
// returns the first failure. Hidden steps are never checked.
func (s *Schema) ValidateAll(st State) error {
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.skip != nil && step.skip(st) {
			continue
		}
		if err := step.validate(st); err != nil {
			return err
		}
	}
	return nil
}

// Skipped reports whether stepID is hidden for st.
func (s *Schema) Skipped(stepID string, st State) bool {
	i, ok := s.index[stepID]
	if !ok {
		return false
	}
	p := s.Steps[i].skip
	return p != nil && p(st)
}

// BinaryFields names the fields that hold uploads.
func (s *Schema) BinaryFields() []string {
	var out []string
	for _, st := range s.Steps {
		for _, f := range st.Fields {
			if f.Binary {
				out = append(out, f.Name)
			}
		}
	}
	return out
}

// Sequencer builds a step sequencer over this schema. src is consulted
// before every navigation call.
func (s *Schema) Sequencer(src workflow.Source[State]) (*workflow.Sequencer[State], error) {
	steps := make([]workflow.Step[State], len(s.Steps))
	for i := range s.Steps {
		st := &s.Steps[i]
		steps[i] = workflow.Step[State]{ID: workflow.StepID(st.ID), Validate: st.validate}
		if st.skip != nil {
			steps[i].Skip = st.skip
		}
	}
	return workflow.New(src, steps...)
}
