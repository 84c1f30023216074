// Package app wires all Sparkie subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject test doubles via functional options (WithSessionStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/sparkie/internal/config"
	"github.com/MrWong99/sparkie/internal/conversation"
	"github.com/MrWong99/sparkie/internal/frontend"
	"github.com/MrWong99/sparkie/internal/health"
	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/internal/session"
	"github.com/MrWong99/sparkie/pkg/memory"
	"github.com/MrWong99/sparkie/pkg/memory/postgres"
	"github.com/MrWong99/sparkie/pkg/provider/keyword"
	"github.com/MrWong99/sparkie/pkg/provider/llm"
	"github.com/MrWong99/sparkie/pkg/provider/stt"
	"github.com/MrWong99/sparkie/pkg/provider/tts"
	"github.com/MrWong99/sparkie/pkg/provider/vad"
)

// readHeaderTimeout bounds how long a client may take to send request
// headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
//
// LLM and TTS are required. Voice sessions additionally need STT, VAD and
// Keyword; without them the server only accepts text turns.
type Providers struct {
	LLM     llm.Provider
	STT     stt.Provider
	TTS     tts.Provider
	VAD     vad.Engine
	Keyword keyword.Classifier
}

// VoiceReady reports whether every provider a voice session needs is set.
func (p *Providers) VoiceReady() bool {
	return p.STT != nil && p.VAD != nil && p.Keyword != nil
}

// App owns all subsystem lifetimes and serves the Sparkie HTTP API.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store    memory.SessionStore
	pinger   health.Pinger
	metrics  *observe.Metrics
	sessions *SessionManager
	health   *health.Handler
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a transcript store instead of creating one from
// config.
func WithSessionStore(s memory.SessionStore) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessionManager injects a session manager instead of building one from
// the sessions config.
func WithSessionManager(sm *SessionManager) Option {
	return func(a *App) { a.sessions = sm }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: llm and tts providers are required")
	}
	a := &App{providers: providers}
	a.cfg.Store(cfg)
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Transcript store ──────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 3. Session manager ───────────────────────────────────────────────
	if a.sessions == nil {
		a.sessions = NewSessionManager(SessionManagerConfig{
			MaxConcurrent: cfg.Sessions.MaxConcurrent,
			MaxDuration:   cfg.Sessions.MaxDuration,
			Metrics:       a.metrics,
		})
	}

	// ── 4. Health checks ─────────────────────────────────────────────────
	a.initHealth()

	// ── 5. HTTP routes ───────────────────────────────────────────────────
	a.initRoutes()

	slog.Info("app initialised",
		"voice", providers.VoiceReady(),
		"store", a.store != nil,
		"max_sessions", cfg.Sessions.MaxConcurrent,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory connects the PostgreSQL transcript store or uses the injected
// one. Without a DSN, turns are kept only in each conversation's history.
func (a *App) initMemory(ctx context.Context) error {
	if a.store != nil {
		if p, ok := a.store.(health.Pinger); ok {
			a.pinger = p
		}
		a.store = session.NewMemoryGuard(a.store)
		return nil
	}

	dsn := a.config().Memory.PostgresDSN
	if dsn == "" {
		slog.Info("memory.postgres_dsn not set, transcripts are not persisted")
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.pinger = store
	a.store = session.NewMemoryGuard(store)
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

func (a *App) initHealth() {
	checks := []health.Checker{
		health.ReporterCheck("llm", a.providers.LLM),
		health.ReporterCheck("tts", a.providers.TTS),
	}
	if a.providers.STT != nil {
		checks = append(checks, health.ReporterCheck("stt", a.providers.STT))
	}
	if a.pinger != nil {
		checks = append(checks, health.PingCheck("store", a.pinger))
	}
	a.health = health.New(checks...)
}

func (a *App) initRoutes() {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	mux.HandleFunc("GET /ws", a.handleVoice)
	mux.HandleFunc("POST /api/turn", a.handleTurn)
	mux.HandleFunc("POST /api/writer", a.handleWriter)
	mux.HandleFunc("GET /api/sessions", a.handleSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleStopSession)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", a.handleTranscript)
	mux.HandleFunc("GET /api/search", a.handleSearch)
	a.handler = observe.Middleware(a.metrics)(mux)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler with observability middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// UpdateConfig swaps in a reloaded config. Front-end and conversation
// settings apply to sessions started afterwards; running sessions keep the
// settings they started with.
func (a *App) UpdateConfig(cfg *config.Config) {
	if cfg != nil {
		a.cfg.Store(cfg)
	}
}

func (a *App) config() *config.Config { return a.cfg.Load() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured listen address until ctx is cancelled or
// the server fails. Call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config()
	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	cfg := a.config()
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", cfg.Server.TLS != nil)
		if cfg.Server.TLS != nil {
			errCh <- a.server.ServeTLS(ln, cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- a.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. Readiness fails first so no new
// sessions are routed here, then live sessions are stopped, the HTTP server
// is closed, and the closers run. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Active(), "closers", len(a.closers))

		a.health.Drain()

		if err := a.sessions.StopAll(ctx); err != nil {
			slog.Warn("stop sessions", "err", err)
			shutdownErr = err
		}

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown", "err", err)
				shutdownErr = errors.Join(shutdownErr, err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = errors.Join(shutdownErr, ctx.Err())
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// newConversation builds a conversation for sessionID from the current
// config.
func (a *App) newConversation(sessionID string) (*conversation.Conversation, error) {
	cc := a.config().Conversation
	opts := []conversation.Option{conversation.WithMetrics(a.metrics)}
	if a.store != nil {
		opts = append(opts, conversation.WithStore(a.store, sessionID))
	}
	if cc.ContextWindow > 0 {
		opts = append(opts, conversation.WithContextWindow(cc.ContextWindow))
	}
	return conversation.New(conversationConfig(cc), a.providers.STT, a.providers.LLM, a.providers.TTS, opts...)
}

// newWriter builds the post-interview writer from the current config.
func (a *App) newWriter() *conversation.Writer {
	return conversation.NewWriter(a.providers.LLM,
		conversation.WithWriterPrompt(a.config().Conversation.WriterPrompt),
		conversation.WithWriterMetrics(a.metrics),
	)
}

// frontendConfig returns the resolved front-end settings for a new session.
func (a *App) frontendConfig() frontend.Config {
	return a.config().Frontend.Resolve()
}

// conversationConfig converts the YAML conversation section.
func conversationConfig(cc config.ConversationConfig) conversation.Config {
	return conversation.Config{
		SystemPrompt:        cc.SystemPrompt,
		StopDirective:       cc.StopDirective,
		Voice:               configVoiceProfile(cc.Voice),
		Language:            cc.Language,
		TranscriptionPrompt: cc.TranscriptionPrompt,
		Temperature:         cc.Temperature,
		MaxTokens:           cc.MaxTokens,
	}
}

// configVoiceProfile converts a config.VoiceConfig to tts.VoiceProfile.
func configVoiceProfile(vc config.VoiceConfig) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          vc.VoiceID,
		Name:        vc.Name,
		SpeedFactor: vc.SpeedFactor,
	}
}
