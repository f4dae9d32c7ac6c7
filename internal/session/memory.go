package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps all state in a mutex-guarded map. It serves tests and
// single-instance deployments where durability across restarts does not
// matter.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
}

type memSession struct {
	identity   string
	workingDir string
	transcript []byte
	updatedAt  time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memSession)}
}

// get returns the session for an identity, creating it when asked.
func (s *MemoryStore) get(identity string, create bool) *memSession {
	key := Key(identity)
	sess := s.sessions[key]
	if sess == nil && create {
		sess = &memSession{identity: identity}
		s.sessions[key] = sess
	}
	return sess
}

func (s *MemoryStore) WorkingDir(ctx context.Context, identity string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess := s.get(identity, false); sess != nil {
		return sess.workingDir, nil
	}
	return "", nil
}

func (s *MemoryStore) SetWorkingDir(ctx context.Context, identity, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(identity, true)
	sess.workingDir = dir
	sess.updatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AppendOutput(ctx context.Context, identity string, block []byte) error {
	if len(block) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(identity, true)
	sess.transcript = append(sess.transcript, block...)
	sess.updatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ClearOutput(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess := s.get(identity, false); sess != nil {
		sess.transcript = nil
		sess.updatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) ReadOutput(ctx context.Context, identity string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.get(identity, false)
	if sess == nil || len(sess.transcript) == 0 {
		return nil, nil
	}
	out := make([]byte, len(sess.transcript))
	copy(out, sess.transcript)
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.sessions))
	for _, sess := range s.sessions {
		entries = append(entries, Entry{
			Identity:   sess.identity,
			WorkingDir: sess.workingDir,
			Size:       int64(len(sess.transcript)),
			UpdatedAt:  sess.updatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Identity < entries[j].Identity })
	return entries, nil
}

func (s *MemoryStore) Remove(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, Key(identity))
	return nil
}

func (s *MemoryStore) TrimOutput(ctx context.Context, identity string, max int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(identity, false)
	if sess == nil || int64(len(sess.transcript)) <= max {
		return nil, nil
	}

	cut := int64(len(sess.transcript)) - max
	removed := make([]byte, cut)
	copy(removed, sess.transcript[:cut])

	kept := make([]byte, max)
	copy(kept, sess.transcript[cut:])
	sess.transcript = kept
	return removed, nil
}
