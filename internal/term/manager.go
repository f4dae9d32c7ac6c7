package term

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/monitoring"
	"github.com/glebobos/LambdaTerminal/internal/session"
	"github.com/glebobos/LambdaTerminal/internal/shared/id"
)

const (
	defaultCols = 80
	defaultRows = 24

	reapInterval = 30 * time.Second
	readBufSize  = 4096
)

// Manager owns at most one live PTY per identity. Attaching to an
// identity that already has a running shell joins it instead of
// spawning a second one.
type Manager struct {
	store   session.Store
	shell   string
	idle    time.Duration
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager(store session.Store, shell string, idleTimeout time.Duration, logger *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Manager{
		store:    store,
		shell:    shell,
		idle:     idleTimeout,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the idle reaper. With no idle timeout configured
// sessions live until killed or shut down.
func (m *Manager) Start() {
	if m.idle <= 0 {
		close(m.done)
		return
	}
	go m.reap()
}

// Shutdown stops the reaper and kills every live session.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	for _, s := range live {
		m.kill(s)
	}
}

// Attach returns the identity's live session, creating one if
// needed. A new shell starts in the identity's stored working
// directory so the interactive view lines up with the request
// endpoint.
func (m *Manager) Attach(ctx context.Context, identity string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[identity]; ok && !existing.isClosed() {
		existing.touch()
		return existing, nil
	}

	wd, err := m.store.WorkingDir(ctx, identity)
	if err != nil {
		m.logger.Warn("working dir read failed, starting in ambient",
			zap.String("identity", identity),
			zap.Error(err))
		wd = ""
	}
	if wd == "" {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			wd = cwd
		} else {
			wd = "/"
		}
	}
	if info, statErr := os.Stat(wd); statErr != nil || !info.IsDir() {
		wd = "/"
	}

	cmd := exec.Command(m.shell)
	cmd.Dir = wd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: defaultRows,
		Cols: defaultCols,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	s := &Session{
		ID:          string(id.NewTermID()),
		Identity:    identity,
		Shell:       m.shell,
		StartedAt:   time.Now(),
		cmd:         cmd,
		ptmx:        ptmx,
		lastActive:  time.Now(),
		subscribers: make(map[string]chan []byte),
	}
	m.sessions[identity] = s

	if m.metrics != nil {
		m.metrics.TermSessionsActive.Inc()
	}
	m.logger.Info("terminal session started",
		zap.String("identity", identity),
		zap.String("session_id", s.ID),
		zap.String("working_dir", wd))

	go m.readOutput(s)
	go m.monitorProcess(s)

	return s, nil
}

// Get returns the live session for an identity, if any.
func (m *Manager) Get(identity string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[identity]
	if !ok || s.isClosed() {
		return nil, false
	}
	return s, true
}

// Write sends input to the identity's session.
func (m *Manager) Write(identity string, input []byte) error {
	s, ok := m.Get(identity)
	if !ok {
		return fmt.Errorf("no terminal session for identity %q", identity)
	}
	s.touch()
	_, err := s.ptmx.Write(input)
	return err
}

// Resize changes the terminal dimensions of the identity's session.
func (m *Manager) Resize(identity string, cols, rows int) error {
	s, ok := m.Get(identity)
	if !ok {
		return fmt.Errorf("no terminal session for identity %q", identity)
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", cols, rows)
	}
	s.touch()
	return pty.Setsize(s.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Kill terminates the identity's session. Killing an absent session
// is not an error.
func (m *Manager) Kill(identity string) {
	m.mu.RLock()
	s, ok := m.sessions[identity]
	m.mu.RUnlock()
	if ok {
		m.kill(s)
	}
}

// List returns every known session sorted by identity.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Identity < infos[j].Identity })
	return infos
}

// readOutput pumps PTY output into the transcript store and to all
// subscribers until the PTY closes.
func (m *Manager) readOutput(s *Session) {
	buf := make([]byte, readBufSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			if appendErr := m.store.AppendOutput(context.Background(), s.Identity, chunk); appendErr != nil {
				m.logger.Error("transcript append failed",
					zap.String("identity", s.Identity),
					zap.Error(appendErr))
				if m.metrics != nil {
					m.metrics.RecordStoreError("append")
				}
			}
			s.broadcast(chunk)
		}
		if err != nil {
			return
		}
	}
}

// monitorProcess waits for the shell to exit and finalizes the
// session.
func (m *Manager) monitorProcess(s *Session) {
	s.cmd.Wait()
	m.finalize(s)
}

// kill force-terminates a session. Finalization is shared with the
// exit monitor so it runs exactly once either way.
func (m *Manager) kill(s *Session) {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	m.finalize(s)
}

func (m *Manager) finalize(s *Session) {
	s.cleanupOnce.Do(func() {
		for _, ch := range s.markClosed() {
			close(ch)
		}
		s.ptmx.Close()

		m.mu.Lock()
		if m.sessions[s.Identity] == s {
			delete(m.sessions, s.Identity)
		}
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.TermSessionsActive.Dec()
		}
		m.logger.Info("terminal session ended",
			zap.String("identity", s.Identity),
			zap.String("session_id", s.ID))
	})
}

// reap kills sessions that have seen no input or attachment past the
// idle timeout.
func (m *Manager) reap() {
	defer close(m.done)

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.RLock()
			var stale []*Session
			for _, s := range m.sessions {
				if s.idleFor() > m.idle {
					stale = append(stale, s)
				}
			}
			m.mu.RUnlock()

			for _, s := range stale {
				m.logger.Info("reaping idle terminal session",
					zap.String("identity", s.Identity),
					zap.String("session_id", s.ID))
				m.kill(s)
			}
		}
	}
}
