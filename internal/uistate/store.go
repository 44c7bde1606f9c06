// Package uistate holds per-user UI preferences (sidebar collapse and the
// selected dashboard timeframe) behind an explicit store that handlers
// receive by injection. Changes are persisted through the repo layer and
// broadcast to subscribers.
package uistate

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/repo"
)

// ErrInvalidTimeframe is returned by Update when the mutation leaves an
// unsupported timeframe.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Listener observes committed preference changes.
type Listener func(userID string, p domain.Preferences)

// Store reads and writes preferences. Updates for all users are serialized,
// so concurrent read-modify-write cycles do not lose changes.
type Store struct {
	DB *gorm.DB

	mu        sync.Mutex
	subMu     sync.RWMutex
	listeners map[int]Listener
	next      int
}

// New returns a Store over db.
func New(db *gorm.DB) *Store {
	return &Store{DB: db, listeners: make(map[int]Listener)}
}

// Get returns the preferences of userID, defaults when none were saved.
func (s *Store) Get(ctx context.Context, userID string) (domain.Preferences, error) {
	return repo.GetPreferences(ctx, s.DB, userID)
}

// Update loads the preferences of userID, applies mutate, validates, saves,
// and notifies subscribers. The saved value is returned.
func (s *Store) Update(ctx context.Context, userID string, mutate func(*domain.Preferences)) (domain.Preferences, error) {
	s.mu.Lock()
	p, err := repo.GetPreferences(ctx, s.DB, userID)
	if err != nil {
		s.mu.Unlock()
		return p, err
	}
	mutate(&p)
	p.UserID = userID
	if _, err := domain.ParseTimeframe(string(p.Timeframe)); err != nil {
		s.mu.Unlock()
		return p, ErrInvalidTimeframe
	}
	if err := repo.SavePreferences(ctx, s.DB, p); err != nil {
		s.mu.Unlock()
		return p, err
	}
	s.mu.Unlock()

	s.notify(userID, p)
	return p, nil
}

// Subscribe registers fn for subsequent updates. The returned function
// removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(userID string, p domain.Preferences) {
	s.subMu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range fns {
		fn(userID, p)
	}
}
