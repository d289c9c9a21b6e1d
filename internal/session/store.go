package session

import (
	"sync"
	"time"

	"retouch-ai/internal/editor"
)

type Options struct {
	// New builds a fresh edit session for an unknown id.
	New func() *editor.Session

	// TTL after which an untouched session is dropped by Prune.
	TTL time.Duration
}

// Store maps session ids (web cookie ids, Telegram chat ids) to edit
// sessions. Sessions live in memory only and disappear on prune or restart.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*entry
	newSession func() *editor.Session
	ttl        time.Duration
}

type entry struct {
	session      *editor.Session
	lastActivity time.Time
}

func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	newSession := opts.New
	if newSession == nil {
		newSession = func() *editor.Session { return editor.NewSession(editor.Options{}) }
	}

	return &Store{
		sessions:   make(map[string]*entry),
		newSession: newSession,
		ttl:        ttl,
	}
}

// Get returns the session for id, creating it on first touch.
func (s *Store) Get(id string) *editor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		e = &entry{session: s.newSession()}
		s.sessions[id] = e
	}
	e.lastActivity = time.Now()
	return e.session
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops sessions idle longer than the TTL and reports how many were
// removed.
func (s *Store) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastActivity) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
