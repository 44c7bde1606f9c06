// Package workflow implements a step sequencer for multi-step forms
// (wizards). A Sequencer walks an ordered list of steps, validating the
// current step before moving forward and hiding steps whose skip predicate
// holds for the current state.
//
// Predicates and validators are pure functions over a snapshot of type S
// that the sequencer pulls from its Source before every call. Nothing is
// cached between calls, so data that resolves after construction (for
// example the list of clinics a user can assign staff to) is always seen.
//
// A Sequencer is safe for concurrent use.
package workflow

import (
	"errors"
	"fmt"
	"sync"
)

// StepID names a step. IDs are unique within a sequence.
type StepID string

// Step is one page of a wizard.
type Step[S any] struct {
	ID StepID
	// Validate checks the fields owned by this step. nil means always valid.
	Validate func(S) error
	// Skip hides the step when it returns true. nil means never skipped.
	Skip func(S) bool
}

// Source returns the current, fully resolved snapshot.
type Source[S any] func() S

// ErrInvalidStep is matched by errors.Is for every *InvalidStepError.
var ErrInvalidStep = errors.New("invalid step")

// ErrNoSteps is returned by New when every step would be hidden or none
// were given.
var ErrNoSteps = errors.New("workflow has no visible steps")

// InvalidStepError reports a JumpTo target that is unknown or skipped.
type InvalidStepError struct {
	Step    StepID
	Skipped bool
}

func (e *InvalidStepError) Error() string {
	if e.Skipped {
		return fmt.Sprintf("step %q is skipped", e.Step)
	}
	return fmt.Sprintf("unknown step %q", e.Step)
}

// Is makes errors.Is(err, ErrInvalidStep) true.
func (e *InvalidStepError) Is(target error) bool { return target == ErrInvalidStep }

// Sequencer tracks the current position in an ordered list of steps.
type Sequencer[S any] struct {
	mu    sync.Mutex
	steps []Step[S]
	index map[StepID]int
	src   Source[S]
	cur   int
}

// New builds a sequencer positioned at the first non-skipped step.
// Duplicate step IDs are rejected.
func New[S any](src Source[S], steps ...Step[S]) (*Sequencer[S], error) {
	if src == nil {
		return nil, errors.New("workflow: nil snapshot source")
	}
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	idx := make(map[StepID]int, len(steps))
	for i, st := range steps {
		if _, dup := idx[st.ID]; dup {
			return nil, fmt.Errorf("workflow: duplicate step %q", st.ID)
		}
		idx[st.ID] = i
	}
	s := &Sequencer[S]{steps: steps, index: idx, src: src}
	first := s.nextVisible(src(), -1)
	if first < 0 {
		return nil, ErrNoSteps
	}
	s.cur = first
	return s, nil
}

// Current returns the current step, re-resolving it first: if the step the
// sequencer sits on became skipped, the position moves to the next visible
// step (or the previous one when none follows).
func (s *Sequencer[S]) Current() StepID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolve(s.src())
	return s.steps[s.cur].ID
}

// Position returns the 0-based index of the current step within the visible
// sequence and the number of visible steps.
func (s *Sequencer[S]) Position() (index, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.src()
	s.resolve(snap)
	for i, st := range s.steps {
		if s.skipped(st, snap) {
			continue
		}
		if i == s.cur {
			index = total
		}
		total++
	}
	return index, total
}

// Visible lists the steps that are not skipped for the current snapshot.
func (s *Sequencer[S]) Visible() []StepID {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.src()
	out := make([]StepID, 0, len(s.steps))
	for _, st := range s.steps {
		if !s.skipped(st, snap) {
			out = append(out, st.ID)
		}
	}
	return out
}

// Advance validates the current step and moves to the next non-skipped one.
// At the last step it is a no-op. When validation fails the position is
// unchanged and the validation error is returned for display.
func (s *Sequencer[S]) Advance() (StepID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.src()
	s.resolve(snap)
	if v := s.steps[s.cur].Validate; v != nil {
		if err := v(snap); err != nil {
			return s.steps[s.cur].ID, err
		}
	}
	if next := s.nextVisible(snap, s.cur); next >= 0 {
		s.cur = next
	}
	return s.steps[s.cur].ID, nil
}

// Retreat moves to the previous non-skipped step; no-op at the first step.
// Leaving a step never requires it to be valid.
func (s *Sequencer[S]) Retreat() StepID {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.src()
	s.resolve(snap)
	if prev := s.prevVisible(snap, s.cur); prev >= 0 {
		s.cur = prev
	}
	return s.steps[s.cur].ID
}

// JumpTo moves directly to id. It fails with *InvalidStepError when the step
// does not exist or is currently skipped.
func (s *Sequencer[S]) JumpTo(id StepID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return &InvalidStepError{Step: id}
	}
	if s.skipped(s.steps[i], s.src()) {
		return &InvalidStepError{Step: id, Skipped: true}
	}
	s.cur = i
	return nil
}

// IsSkipped evaluates the predicate registered for id against the current
// snapshot. Unknown steps report false.
func (s *Sequencer[S]) IsSkipped(id StepID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	return s.skipped(s.steps[i], s.src())
}

// IsLast reports whether no visible step follows the current one.
func (s *Sequencer[S]) IsLast() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.src()
	s.resolve(snap)
	return s.nextVisible(snap, s.cur) < 0
}

// ValidateVisible runs every visible step's validator in order and returns
// the first failure. Submission paths use it so a skipped step can never
// block a submit and a visible one can never be bypassed.
func (s *Sequencer[S]) ValidateVisible() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.src()
	for _, st := range s.steps {
		if s.skipped(st, snap) || st.Validate == nil {
			continue
		}
		if err := st.Validate(snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer[S]) skipped(st Step[S], snap S) bool {
	return st.Skip != nil && st.Skip(snap)
}

// resolve keeps the current index on a visible step.
func (s *Sequencer[S]) resolve(snap S) {
	if !s.skipped(s.steps[s.cur], snap) {
		return
	}
	if next := s.nextVisible(snap, s.cur); next >= 0 {
		s.cur = next
		return
	}
	if prev := s.prevVisible(snap, s.cur); prev >= 0 {
		s.cur = prev
	}
}

func (s *Sequencer[S]) nextVisible(snap S, from int) int {
	for i := from + 1; i < len(s.steps); i++ {
		if !s.skipped(s.steps[i], snap) {
			return i
		}
	}
	return -1
}

func (s *Sequencer[S]) prevVisible(snap S, from int) int {
	for i := from - 1; i >= 0; i-- {
		if !s.skipped(s.steps[i], snap) {
			return i
		}
	}
	return -1
}
