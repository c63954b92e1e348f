package session

import (
	"sort"
	"sync"
	"time"
)

// Info is a point-in-time view of one live session, for the status endpoint.
type Info struct {
	ID      string    `json:"id"`
	Idname  string    `json:"idname"`
	Mode    string    `json:"mode"`
	Started time.Time `json:"started"`
}

// Registry tracks live sessions for observability. Sessions never reach into
// each other through it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID.String()] = s
}

func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID.String())
}

// Snapshot lists live sessions ordered by start time.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, Info{
			ID:      s.ID.String(),
			Idname:  s.Idname(),
			Mode:    s.Mode().String(),
			Started: s.Started(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
