package editor

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("editor session not found")

type entry struct {
	mu         sync.Mutex
	campaignID int64
	editor     *Editor
	lastUsed   time.Time
}

// Registry keeps open editors keyed by session id. Operations on one
// session run one at a time.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry), now: time.Now}
}

// Open registers ed for campaignID and returns its session id.
func (r *Registry) Open(campaignID int64, ed *Editor) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = &entry{campaignID: campaignID, editor: ed, lastUsed: r.now()}
	r.mu.Unlock()
	return id
}

// With runs fn against the editor of session sid while holding its lock.
func (r *Registry) With(sid string, fn func(campaignID int64, ed *Editor) error) error {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = r.now()
	return fn(e.campaignID, e.editor)
}

func (r *Registry) Close(sid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sid]
	delete(r.sessions, sid)
	return ok
}

// CloseCampaign drops every session open on campaignID.
func (r *Registry) CloseCampaign(campaignID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for sid, e := range r.sessions {
		if e.campaignID == campaignID {
			delete(r.sessions, sid)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than ttl and returns how many.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for sid, e := range r.sessions {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.lastUsed.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(r.sessions, sid)
			n++
		}
	}
	return n
}
