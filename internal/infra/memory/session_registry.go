package memory

import (
	"sync"

	"quizroom/internal/app"
)

// SessionRegistry is the in-memory implementation of app.SessionRegistry.
// Its lock only guards the map; per-session state has its own lock.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*app.Session),
	}
}

// Insert adds the session under code. It reports false when the code is
// already taken, letting the caller retry with a fresh code.
func (r *SessionRegistry) Insert(code string, session *app.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[code]; exists {
		return false
	}
	r.sessions[code] = session
	return true
}

func (r *SessionRegistry) Get(code string) (*app.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[code]
	return session, ok
}

// Remove reaps a session. Removing an unknown code is a no-op.
func (r *SessionRegistry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}

// Len reports how many sessions are live.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
