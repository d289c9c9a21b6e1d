package session

import (
	"testing"
	"time"

	"retouch-ai/internal/editor"
)

func TestStore_GetCreatesOnce(t *testing.T) {
	created := 0
	s := NewStore(Options{
		New: func() *editor.Session {
			created++
			return editor.NewSession(editor.Options{})
		},
	})

	a := s.Get("chat-1")
	b := s.Get("chat-1")
	if a != b {
		t.Error("same id returned different sessions")
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}

	if s.Get("chat-2") == a {
		t.Error("different ids share one session")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStore_Remove(t *testing.T) {
	s := NewStore(Options{})
	first := s.Get("chat-1")
	s.Remove("chat-1")

	if s.Len() != 0 {
		t.Errorf("Len() = %d after remove", s.Len())
	}
	if s.Get("chat-1") == first {
		t.Error("removed session came back")
	}
}

func TestStore_Prune(t *testing.T) {
	s := NewStore(Options{TTL: time.Minute})
	s.Get("old")
	s.Get("fresh")

	// Age only the first entry.
	s.mu.Lock()
	s.sessions["old"].lastActivity = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	if removed := s.Prune(time.Now()); removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d after prune, want 1", s.Len())
	}
}
