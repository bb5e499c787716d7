package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the in-memory session mapping, the per-session context
// windows and the persistence policy. It loads once at construction and
// rewrites the whole store after every recorded turn.
type Manager struct {
	store Store

	mu       sync.RWMutex
	sessions Sessions
	windows  map[string]*Window

	// saveMu orders whole-store rewrites so a newer snapshot is never
	// overwritten by an older one.
	saveMu sync.Mutex

	windowSize  int
	promptTurns int
	restore     bool
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindowSize sets how many turns each context window retains.
func WithWindowSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.windowSize = n
		}
	}
}

// WithPromptTurns sets how many retained turns are rendered into a prompt.
func WithPromptTurns(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.promptTurns = n
		}
	}
}

// WithRestoreContext seeds a session's window from its stored history the
// first time the window is needed, e.g. after a restart.
func WithRestoreContext(restore bool) Option {
	return func(m *Manager) {
		m.restore = restore
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager loads every session from store. A load failure is logged and
// the manager starts empty.
func NewManager(ctx context.Context, store Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		windows:     make(map[string]*Window),
		windowSize:  DefaultWindowSize,
		promptTurns: DefaultPromptTurns,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	sessions, err := store.Load(ctx)
	if err != nil {
		slog.Warn("failed to load sessions, starting empty", "err", err)
		sessions = Sessions{}
	}
	m.sessions = sessions

	slog.Info("sessions loaded", "count", len(sessions))
	return m
}

// StartNewSession creates a session named after the current second.
// Two sessions started within the same second share an id; the later call
// resets it.
func (m *Manager) StartNewSession() string {
	sessionID := "session_" + m.now().Format("20060102_150405")

	m.mu.Lock()
	m.sessions[sessionID] = []Message{}
	m.windows[sessionID] = NewWindow(m.windowSize)
	m.mu.Unlock()

	slog.Info("session started", "session", sessionID)
	return sessionID
}

// AddMessage appends a turn to the session's history and context window,
// creating the session if it does not exist, then persists the store.
// Persistence failures are logged; memory stays authoritative.
func (m *Manager) AddMessage(ctx context.Context, sessionID, user, ai string) Message {
	msg := NewMessage(m.now(), user, ai)

	m.mu.Lock()
	window := m.windowLocked(sessionID)
	m.sessions[sessionID] = append(m.sessions[sessionID], msg)
	window.Append(msg)
	m.mu.Unlock()

	if err := m.save(ctx); err != nil {
		slog.Warn("failed to save sessions", "session", sessionID, "err", err)
	}
	return msg
}

// ContextForPrompt renders the session's recent turns for a prompt, or ""
// when there are none.
func (m *Manager) ContextForPrompt(sessionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := m.lookupWindowLocked(sessionID)
	if w == nil {
		return ""
	}
	return w.Render(m.promptTurns)
}

// Window returns a copy of the session's retained turns.
func (m *Manager) Window(sessionID string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := m.lookupWindowLocked(sessionID)
	if w == nil {
		return nil
	}
	return w.Messages()
}

// Messages returns a copy of a session's full history.
func (m *Manager) Messages(sessionID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SessionExists reports whether the session is known.
func (m *Manager) SessionExists(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[sessionID]
	return ok
}

// GetActiveSessionCount returns the number of known sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Ping checks that the store is reachable. Stores without a connection
// are always reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// windowLocked returns the session's window, creating it on first use.
// Callers hold m.mu for writing.
func (m *Manager) windowLocked(sessionID string) *Window {
	if w, ok := m.windows[sessionID]; ok {
		return w
	}

	w := m.seedWindowLocked(sessionID)
	m.windows[sessionID] = w
	return w
}

// lookupWindowLocked returns the session's window without registering one.
// With restore enabled, a session that has history but no window yet gets a
// transient window seeded from that history. Callers hold m.mu.
func (m *Manager) lookupWindowLocked(sessionID string) *Window {
	if w, ok := m.windows[sessionID]; ok {
		return w
	}
	if m.restore && len(m.sessions[sessionID]) > 0 {
		return m.seedWindowLocked(sessionID)
	}
	return nil
}

func (m *Manager) seedWindowLocked(sessionID string) *Window {
	w := NewWindow(m.windowSize)
	if !m.restore {
		return w
	}

	history := m.sessions[sessionID]
	if len(history) > m.windowSize {
		history = history[len(history)-m.windowSize:]
	}
	for _, msg := range history {
		w.Append(msg)
	}
	if len(history) > 0 {
		slog.Debug("context window restored", "session", sessionID, "turns", len(history))
	}
	return w
}

func (m *Manager) save(ctx context.Context) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.RLock()
	snapshot := m.sessions.Clone()
	m.mu.RUnlock()

	return m.store.Save(ctx, snapshot)
}
