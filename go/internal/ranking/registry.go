package ranking

import "sync"

// Registry holds the active session per conversation. Every component gets
// its session through an explicit lookup here; there is no ambient "current
// session" state anywhere else.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// retired holds the generation each conversation's last discarded
	// session ended on, so a successor can seed strictly above it.
	retired map[string]uint64
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		retired:  make(map[string]uint64),
	}
}

// Get returns the active session for a conversation, if any.
func (r *Registry) Get(conversation string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conversation]
	return s, ok
}

// Put installs the session for a conversation, returning the previous one so
// the caller can tear it down.
func (r *Registry) Put(conversation string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[conversation]
	r.sessions[conversation] = s
	return prev
}

// Retire discards the session for a conversation, recording the generation
// it ended on. Generations stay monotonic per conversation across session
// lifetimes: a new session must seed above RetiredGeneration so an in-flight
// timer fire from any predecessor always fails the generation check.
func (r *Registry) Retire(conversation string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, conversation)
	if gen > r.retired[conversation] {
		r.retired[conversation] = gen
	}
}

// RetiredGeneration returns the generation the last discarded session for a
// conversation ended on, or zero if none was ever retired.
func (r *Registry) RetiredGeneration(conversation string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retired[conversation]
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
