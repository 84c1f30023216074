package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/sparkie/internal/conversation"
	"github.com/MrWong99/sparkie/internal/observe"
)

var (
	// ErrTooManySessions is returned by [SessionManager.Start] when the
	// concurrent session limit is reached.
	ErrTooManySessions = errors.New("app: too many active sessions")

	// ErrSessionNotFound is returned for unknown, stopped or expired sessions.
	ErrSessionNotFound = errors.New("app: session not found")

	// ErrShuttingDown is returned by [SessionManager.Start] after
	// [SessionManager.StopAll].
	ErrShuttingDown = errors.New("app: shutting down")
)

// SessionKind tells how a session receives user input.
type SessionKind string

const (
	// KindVoice sessions stream microphone audio over a WebSocket or from a
	// local device.
	KindVoice SessionKind = "voice"

	// KindText sessions submit typed answers through the HTTP API.
	KindText SessionKind = "text"
)

// SessionInfo holds metadata about an active session.
type SessionInfo struct {
	// ID is the unique identifier for this session, also used as the
	// transcript store key.
	ID string

	// Kind is the input mode.
	Kind SessionKind

	// StartedAt is when the session was started.
	StartedAt time.Time

	// Remote is the client address, empty for local sessions.
	Remote string
}

// Session is one registered interview. Ctx is cancelled when the session is
// stopped, when the manager shuts down, or when the maximum duration elapses.
type Session struct {
	Info SessionInfo
	Ctx  context.Context
	Conv *conversation.Conversation

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// SessionManagerConfig holds the limits for a [SessionManager].
type SessionManagerConfig struct {
	// MaxConcurrent caps the number of live sessions. Zero means unlimited.
	MaxConcurrent int

	// MaxDuration bounds the lifetime of a session. Zero means unbounded.
	MaxDuration time.Duration

	// Metrics records the active session gauge. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// SessionManager tracks every live interview and bounds how many may run at
// once. All exported methods are safe for concurrent use.
type SessionManager struct {
	max         int
	maxDuration time.Duration
	metrics     *observe.Metrics
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	stopping bool
}

// NewSessionManager creates a SessionManager with the given limits.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		max:         cfg.MaxConcurrent,
		maxDuration: cfg.MaxDuration,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		sessions:    make(map[string]*Session),
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	if sm.now == nil {
		sm.now = time.Now
	}
	return sm
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Start registers a session for conv. info.ID and info.StartedAt are filled
// in when empty. The returned session's context derives from parent; callers
// must call [SessionManager.Release] once the session has finished.
func (sm *SessionManager) Start(parent context.Context, info SessionInfo, conv *conversation.Conversation) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.stopping {
		return nil, ErrShuttingDown
	}
	sm.reapLocked()
	if sm.max > 0 && len(sm.sessions) >= sm.max {
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManySessions, sm.max)
	}
	if info.ID == "" {
		info.ID = NewSessionID()
	}
	if _, dup := sm.sessions[info.ID]; dup {
		return nil, fmt.Errorf("app: session %s already exists", info.ID)
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = sm.now().UTC()
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if sm.maxDuration > 0 {
		ctx, cancel = context.WithTimeout(parent, sm.maxDuration)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	s := &Session{
		Info:   info,
		Ctx:    ctx,
		Conv:   conv,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sm.sessions[info.ID] = s
	sm.metrics.ActiveSessions.Add(ctx, 1, metric.WithAttributes(observe.Attr("kind", string(info.Kind))))

	slog.Info("session started",
		"session_id", info.ID,
		"kind", info.Kind,
		"remote", info.Remote,
		"active", len(sm.sessions),
	)
	return s, nil
}

// Release removes s from the manager. It is safe to call more than once.
func (sm *SessionManager) Release(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.releaseLocked(s, "released")
}

// Stop cancels the session with the given ID and removes it.
func (sm *SessionManager) Stop(id string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sm.releaseLocked(s, "stopped")
	return nil
}

// Lookup returns the live session with the given ID. Expired sessions are
// removed and reported as not found.
func (sm *SessionManager) Lookup(id string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.Ctx.Err() != nil {
		sm.releaseLocked(s, "expired")
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Active returns the number of live sessions.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// List returns metadata about every live session.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Info)
	}
	return out
}

// StopAll refuses new sessions, cancels every live one, and waits until
// their owners have released them or ctx expires. Text sessions have no
// owner goroutine and are released immediately.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	sm.mu.Lock()
	sm.stopping = true
	var waits []*Session
	for _, s := range sm.sessions {
		s.cancel()
		if s.Info.Kind == KindText {
			sm.releaseLocked(s, "shutdown")
			continue
		}
		waits = append(waits, s)
	}
	sm.mu.Unlock()

	for _, s := range waits {
		select {
		case <-s.done:
		case <-ctx.Done():
			slog.Warn("session: stop deadline exceeded", "session_id", s.Info.ID)
			return ctx.Err()
		}
	}
	return nil
}

// reapLocked drops sessions whose context has expired. Must be called with
// sm.mu held.
func (sm *SessionManager) reapLocked() {
	for _, s := range sm.sessions {
		if s.Ctx.Err() != nil && s.Info.Kind == KindText {
			sm.releaseLocked(s, "expired")
		}
	}
}

// releaseLocked must be called with sm.mu held.
func (sm *SessionManager) releaseLocked(s *Session, reason string) {
	s.once.Do(func() {
		s.cancel()
		delete(sm.sessions, s.Info.ID)
		sm.metrics.ActiveSessions.Add(context.Background(), -1, metric.WithAttributes(observe.Attr("kind", string(s.Info.Kind))))
		close(s.done)
		slog.Info("session ended",
			"session_id", s.Info.ID,
			"kind", s.Info.Kind,
			"reason", reason,
			"duration", sm.now().Sub(s.Info.StartedAt).Round(time.Millisecond),
		)
	})
}
