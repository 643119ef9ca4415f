// Package app wires all Agora subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is cancelled, and Shutdown
// releases everything in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithMetrics). When an option is not provided, New creates real
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/agora/internal/api"
	"github.com/MrWong99/agora/internal/auth"
	"github.com/MrWong99/agora/internal/chat"
	"github.com/MrWong99/agora/internal/config"
	"github.com/MrWong99/agora/internal/health"
	"github.com/MrWong99/agora/internal/material"
	"github.com/MrWong99/agora/internal/observe"
	"github.com/MrWong99/agora/internal/quiz"
	"github.com/MrWong99/agora/internal/voice"
	"github.com/MrWong99/agora/pkg/objectstore"
	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/provider/stt"
	"github.com/MrWong99/agora/pkg/provider/tts"
	"github.com/MrWong99/agora/pkg/store"
	"github.com/MrWong99/agora/pkg/store/postgres"
)

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per external capability. LLM, STT and
// TTS are required; a nil Objects disables PDF uploads. Populated by main.go
// via the config registry.
type Providers struct {
	LLM     llm.Provider
	STT     stt.Provider
	TTS     tts.Provider
	Objects objectstore.Store
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New.
	store    store.Store
	metrics  *observe.Metrics
	verifier *auth.Verifier
	handler  http.Handler

	// Servers and background tasks started by Run.
	servers    []*http.Server
	background []func(context.Context) error

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of connecting to PostgreSQL.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metric instruments instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithBackground registers a task that Run executes alongside the servers,
// such as a config watcher. The task must return when its context is done.
func WithBackground(fn func(context.Context) error) Option {
	return func(a *App) { a.background = append(a.background, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: store connection and
// migration, provider instrumentation, orchestrator construction and
// HTTP routing.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: llm, stt and tts providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Auth ──────────────────────────────────────────────────────────
	verifier, err := auth.New(cfg.Auth.JWTSecret, auth.WithAudience(cfg.Auth.Audience))
	if err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}
	a.verifier = verifier

	// ── 3. Orchestrators + API ───────────────────────────────────────────
	srv, err := a.buildAPI()
	if err != nil {
		return nil, fmt.Errorf("app: init api: %w", err)
	}

	// ── 4. Routing + servers ─────────────────────────────────────────────
	a.initServers(srv)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL unless a store was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" {
		return errors.New("database.postgres_dsn is required when no store is injected")
	}
	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	slog.Info("connected to postgres")
	return nil
}

// buildAPI instruments the providers and constructs every orchestrator.
func (a *App) buildAPI() (*api.Server, error) {
	p := a.cfg.Providers
	llmP := observe.InstrumentLLM(a.providers.LLM, p.LLM.Name, a.metrics)
	sttP := observe.InstrumentSTT(a.providers.STT, p.STT.Name, a.metrics)
	ttsP := observe.InstrumentTTS(a.providers.TTS, p.TTS.Name, a.metrics)

	chatO, err := chat.New(a.store, llmP,
		chat.WithSystemPrompt(a.cfg.Chat.SystemPrompt),
		chat.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	quizO, err := quiz.New(a.store, a.store, llmP,
		quiz.WithDefaultDifficulty(a.cfg.Quiz.DefaultDifficulty),
		quiz.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	voiceO, err := voice.New(sttP, llmP, ttsP,
		voice.WithSystemPrompt(a.cfg.Voice.SystemPrompt),
		voice.WithDefaultVoice(a.cfg.Voice.Voice),
		voice.WithDefaultMimeType(a.cfg.Voice.MimeType),
		voice.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	pipeline, err := material.New(a.store, a.providers.Objects, llmP)
	if err != nil {
		return nil, err
	}
	return api.New(chatO, quizO, voiceO, pipeline)
}

// initServers builds the middleware chain and the HTTP servers. /metrics is
// served on its own listener when server.metrics_addr is set.
func (a *App) initServers(srv *api.Server) {
	mux := http.NewServeMux()
	srv.Register(mux)
	a.healthHandler().Register(mux)

	metricsOnAPI := a.cfg.Server.MetricsAddr == ""
	if metricsOnAPI {
		mux.Handle("GET /metrics", observe.MetricsHandler())
	}

	a.handler = observe.Middleware(a.metrics, mux)(a.verifier.Middleware(api.CORS(mux)))
	a.servers = append(a.servers, &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	})

	if !metricsOnAPI {
		mm := http.NewServeMux()
		mm.Handle("GET /metrics", observe.MetricsHandler())
		a.servers = append(a.servers, &http.Server{
			Addr:              a.cfg.Server.MetricsAddr,
			Handler:           mm,
			ReadHeaderTimeout: readHeaderTimeout,
		})
	}
}

// healthHandler checks the database when the store can be pinged.
func (a *App) healthHandler() *health.Handler {
	checkers := []health.Checker{
		health.Configured("storage", func() bool { return a.providers.Objects != nil || a.cfg.Storage.Name == "" }),
	}
	if p, ok := a.store.(health.Pinger); ok {
		checkers = append(checkers, health.Database(p))
	}
	return health.New(checkers...)
}

// Handler returns the fully wrapped API handler. Useful for tests.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP servers and background tasks and blocks until ctx is
// cancelled or a server fails. Servers are drained gracefully within
// server.shutdown_timeout before Run returns. When ctx is done, Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	listeners := make([]net.Listener, 0, len(a.servers))
	for _, srv := range a.servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("app: listen %s: %w", srv.Addr, err)
		}
		slog.Info("http server listening", "addr", ln.Addr().String())
		listeners = append(listeners, ln)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range a.servers {
		ln := listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	for _, fn := range a.background {
		g.Go(func() error { return fn(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range a.servers {
			if err := srv.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("app: shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	slog.Info("app running", "servers", len(a.servers))
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
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
