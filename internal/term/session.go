package term

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a live PTY bound to one identity. Output is mirrored
// into the identity's transcript and fanned out to any attached
// subscribers.
type Session struct {
	ID        string
	Identity  string
	Shell     string
	StartedAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	mu          sync.RWMutex
	closed      bool
	lastActive  time.Time
	subscribers map[string]chan []byte

	cleanupOnce sync.Once
}

// Info is the public representation of a session.
type Info struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Shell     string    `json:"shell"`
	StartedAt time.Time `json:"started_at"`
	Active    bool      `json:"active"`
}

func (s *Session) info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:        s.ID,
		Identity:  s.Identity,
		Shell:     s.Shell,
		StartedAt: s.StartedAt,
		Active:    !s.closed,
	}
}

// Subscribe registers a new output listener and returns its ID and
// channel. The channel is closed when the session ends. Subscribing
// to a closed session yields an already-closed channel.
func (s *Session) Subscribe() (string, <-chan []byte) {
	clientID := uuid.New().String()
	ch := make(chan []byte, 64)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return clientID, ch
	}
	s.subscribers[clientID] = ch
	s.lastActive = time.Now()
	return clientID, ch
}

// Unsubscribe removes a listener. Safe to call after the session has
// closed.
func (s *Session) Unsubscribe(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[clientID]; ok {
		delete(s.subscribers, clientID)
		close(ch)
	}
}

// broadcast delivers an output chunk to every subscriber. Slow
// consumers are skipped rather than blocking the PTY reader.
func (s *Session) broadcast(data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- data:
		default:
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActive)
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// markClosed flips the session to closed and hands back the
// subscriber channels for the caller to close outside the lock.
func (s *Session) markClosed() []chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	chans := make([]chan []byte, 0, len(s.subscribers))
	for id, ch := range s.subscribers {
		chans = append(chans, ch)
		delete(s.subscribers, id)
	}
	return chans
}
