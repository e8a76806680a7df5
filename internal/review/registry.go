package review

import (
	"sync"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

type entry struct {
	session *Session
	touched time.Time
}

// Registry tracks open review sessions for the HTTP layer. Sessions idle
// longer than the TTL, and closed sessions, are evicted.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates a registry. A zero ttl keeps sessions until closed.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{sessions: make(map[string]*entry), ttl: ttl, now: time.Now}
}

// Create starts and registers a session over questions.
func (r *Registry) Create(questions []model.ExtractedQuestion) *Session {
	s := NewSession(questions)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.sessions[s.ID()] = &entry{session: s, touched: r.now()}
	return s
}

// Get returns an open session and refreshes its idle timer.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if r.expired(e) || e.session.Closed() {
		delete(r.sessions, id)
		return nil, false
	}
	e.touched = r.now()
	return e.session, true
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts idle and closed sessions and returns how many it removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

func (r *Registry) sweepLocked() int {
	n := 0
	for id, e := range r.sessions {
		if r.expired(e) || e.session.Closed() {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) expired(e *entry) bool {
	return r.ttl > 0 && r.now().Sub(e.touched) > r.ttl
}
