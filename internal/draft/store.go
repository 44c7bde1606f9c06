// Package draft keeps in-progress wizard state between requests. Writes are
// debounced: repeated saves of one key inside the window collapse into a
// single backend write carrying the latest state. File uploads are never
// persisted; they are replaced by placeholders and reported back as missing
// on load so the client can ask for them again.
//
// Drafts are a convenience. Encoding and decoding failures are logged at
// debug level and read as "no draft"; they never reach the caller.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the write coalescing window used when Options leaves
// it unset.
const DefaultDebounce = 2 * time.Second

// ErrClosed is returned by Save after Close.
var ErrClosed = errors.New("draft: store closed")

// Draft is the state of one wizard instance.
type Draft struct {
	Step      string         `json:"step,omitempty"`
	StepIndex int            `json:"step_index"`
	Fields    map[string]any `json:"fields"`
	// Missing lists the fields that held uploads when the draft was saved.
	// It is filled by Load and ignored by Save.
	Missing []string  `json:"missing,omitempty"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}

// Options configures a Store.
type Options struct {
	// Debounce is the coalescing window. Zero writes synchronously; negative
	// values select DefaultDebounce.
	Debounce time.Duration
	// WriteTimeout bounds each deferred backend write. Defaults to 5s.
	WriteTimeout time.Duration
	Clock        clockwork.Clock
	Logger       *zerolog.Logger
}

// Store debounces draft writes in front of a Backend.
type Store struct {
	backend  Backend
	debounce time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingWrite
	// wmu orders backend mutations so a delete never precedes a stale put.
	wmu     sync.Mutex
	gen     uint64
	closed  bool
	wg      sync.WaitGroup
}

type pendingWrite struct {
	payload []byte
	timer   clockwork.Timer
	gen     uint64
}

// New returns a Store writing to b.
func New(b Backend, opts Options) *Store {
	s := &Store{
		backend:  b,
		debounce: opts.Debounce,
		timeout:  opts.WriteTimeout,
		clock:    opts.Clock,
		log:      zerolog.Nop(),
		pending:  make(map[string]*pendingWrite),
	}
	if s.debounce < 0 {
		s.debounce = DefaultDebounce
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "draft").Logger()
	}
	return s
}

// Save schedules d to be written under key once the debounce window passes
// without another Save for the same key. With a zero window the write
// happens before Save returns and backend errors are returned.
func (s *Store) Save(ctx context.Context, key string, d Draft) error {
	d.Fields = strip(d.Fields)
	d.Missing = nil
	d.SavedAt = s.clock.Now().UTC()
	payload, err := json.Marshal(d)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("draft encode failed; dropping")
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	if s.debounce == 0 {
		s.mu.Unlock()
		s.wmu.Lock()
		defer s.wmu.Unlock()
		return s.backend.Put(ctx, key, payload)
	}
	s.gen++
	gen := s.gen
	p := &pendingWrite{payload: payload, gen: gen}
	p.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(key, gen) })
	s.pending[key] = p
	s.mu.Unlock()
	return nil
}

// fire writes the pending state for key unless it was superseded,
// cancelled, or already flushed. The entry stays visible to Load until the
// write lands.
func (s *Store) fire(key string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if !s.isPending(key, p) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Put(ctx, key, p.payload); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("draft write failed")
	}
	s.mu.Lock()
	if s.pending[key] == p {
		delete(s.pending, key)
	}
	s.mu.Unlock()
}

func (s *Store) isPending(key string, p *pendingWrite) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[key] == p
}

// Load returns the newest state for key, including a write still waiting
// out its debounce window. def is returned when there is no draft or it
// cannot be decoded.
func (s *Store) Load(ctx context.Context, key string, def Draft) Draft {
	s.mu.Lock()
	var payload []byte
	if p, ok := s.pending[key]; ok {
		payload = p.payload
	}
	s.mu.Unlock()

	if payload == nil {
		var err error
		payload, err = s.backend.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNoDraft) {
				s.log.Warn().Err(err).Str("key", key).Msg("draft read failed")
			}
			return def
		}
	}

	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("draft decode failed; ignoring")
		return def
	}
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	d.Missing = restore(d.Fields)
	return d
}

// Clear drops any pending write for key and deletes the stored draft. Call
// it once a submission is confirmed.
func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.backend.Delete(ctx, key)
}

// ClearSession drops every draft of a session, pending or stored.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	prefix := sessionID + keySep
	s.mu.Lock()
	for k, p := range s.pending {
		if strings.HasPrefix(k, prefix) {
			p.timer.Stop()
			delete(s.pending, k)
		}
	}
	s.mu.Unlock()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.backend.DeleteSession(ctx, sessionID)
}

// Pending reports how many writes are waiting out their window.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes every pending draft now.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]*pendingWrite)
	for _, p := range batch {
		p.timer.Stop()
	}
	s.mu.Unlock()

	s.wmu.Lock()
	defer s.wmu.Unlock()
	var errs []error
	for k, p := range batch {
		if err := s.backend.Put(ctx, k, p.payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close refuses further saves, flushes pending writes, and waits for
// in-flight timer writes to finish. Flush errors are logged and returned;
// the drafts concerned are lost.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.Flush(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("draft flush on close failed")
	}
	s.wg.Wait()
	return err
}
