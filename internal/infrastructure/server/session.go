package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultSessionCapacity bounds the number of tracked sessions.
const DefaultSessionCapacity = 100

// Session tracks per-client state correlated by the Mcp-Session-Id header.
type Session struct {
	ID           string
	Initialized  bool
	LastActivity time.Time
}

// SessionRegistry is a bounded in-memory map of sessions. When the capacity
// is exceeded the oldest-inserted session is evicted; eviction is by
// insertion order, not LRU, matching the behavior this server replaces.
type SessionRegistry struct {
	mu       sync.Mutex
	capacity int
	clock    clockwork.Clock
	sessions map[string]*Session
	order    []string
}

// NewSessionRegistry creates a registry holding at most capacity sessions.
func NewSessionRegistry(capacity int, clock clockwork.Clock) *SessionRegistry {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	return &SessionRegistry{
		capacity: capacity,
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session with the given id, creating it if missing.
// An empty id allocates a new opaque identifier. The returned value is a
// snapshot copy.
func (r *SessionRegistry) GetOrCreate(id string) (string, Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if s, ok := r.sessions[id]; ok {
			s.LastActivity = r.clock.Now()
			return id, *s
		}
	} else {
		id = r.newSessionID()
	}

	s := &Session{
		ID:           id,
		LastActivity: r.clock.Now(),
	}
	r.sessions[id] = s
	r.order = append(r.order, id)
	r.evictLocked()
	return id, *s
}

// Get returns a snapshot of the session with the given id.
func (r *SessionRegistry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return *s, true
	}
	return Session{}, false
}

// Touch updates the last-activity timestamp of a session if it exists.
func (r *SessionRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.LastActivity = r.clock.Now()
	}
}

// MarkInitialized flags a session as having completed the initialize handshake.
func (r *SessionRegistry) MarkInitialized(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.Initialized = true
	}
}

// Len returns the number of tracked sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) evictLocked() {
	for len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.sessions, oldest)
	}
}

// newSessionID builds a timestamp-plus-random identifier. Opaque and
// practically collision-free, but not a credential.
func (r *SessionRegistry) newSessionID() string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%d-%s", r.clock.Now().UnixMilli(), suffix)
}
