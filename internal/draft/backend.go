package draft

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrNoDraft is returned by a Backend when no live draft exists for a key.
var ErrNoDraft = errors.New("draft: not found")

// Backend is the session-scoped key/value storage drafts are written to.
// Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

const keySep = ":"

// Key builds the storage key of a draft: "<session>:<wizard>:<name>".
// name distinguishes concurrent drafts of one wizard (for example a clinic
// id when adding staff); "new" is conventional for creation flows.
func Key(sessionID, wizard, name string) string {
	return sessionID + keySep + wizard + keySep + name
}

// SessionOf returns the session part of a key built by Key.
func SessionOf(key string) string {
	sid, _, _ := strings.Cut(key, keySep)
	return sid
}

// MemoryBackend keeps drafts in process memory with a fixed lifetime.
type MemoryBackend struct {
	mu    sync.Mutex
	items map[string]memEntry
	ttl   time.Duration
	clock clockwork.Clock
}

type memEntry struct {
	payload []byte
	expires time.Time
}

// NewMemoryBackend returns an empty in-memory backend. A nil clock uses
// real time.
func NewMemoryBackend(ttl time.Duration, clock clockwork.Clock) *MemoryBackend {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryBackend{items: make(map[string]memEntry), ttl: ttl, clock: clock}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, ErrNoDraft
	}
	if m.ttl > 0 && !m.clock.Now().Before(e.expires) {
		delete(m.items, key)
		return nil, ErrNoDraft
	}
	return append([]byte(nil), e.payload...), nil
}

func (m *MemoryBackend) Put(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memEntry{
		payload: append([]byte(nil), payload...),
		expires: m.clock.Now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryBackend) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if SessionOf(k) == sessionID {
			delete(m.items, k)
		}
	}
	return nil
}

// Len reports the number of stored drafts, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
