// Package runtime assembles the pipeline from configuration and manages
// its lifecycle. Engine can be embedded in larger applications or run
// standalone behind cmd/relay.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaykit/relay/internal/config"
	"github.com/relaykit/relay/internal/match"
	"github.com/relaykit/relay/internal/pipeline"
	"github.com/relaykit/relay/internal/registry"
	"github.com/relaykit/relay/internal/server"
	"github.com/relaykit/relay/internal/storage"
	"github.com/relaykit/relay/internal/storage/sqlite"
	"github.com/relaykit/relay/internal/telemetry"
	"github.com/relaykit/relay/internal/webhook"
)

const defaultRequestTimeout = 30 * time.Second

// Engine owns the registry, the orchestrator, and the HTTP server. All
// dependencies are injected via options; config is the only required
// one.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	register []func(*registry.Builder) error
	handler  string
	recorder storage.InteractionStore

	server         *server.Server
	tracerShutdown func(context.Context) error
	ownsRecorder   bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds an Engine from options. The built-in HTTP transport is
// always registered; participant services come from WithParticipants.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if e.cfg == nil {
		return nil, fmt.Errorf("config required (use WithConfig or WithConfigFile)")
	}
	if e.handler == "" {
		return nil, fmt.Errorf("handler service required (use WithHandlerService)")
	}

	return e, nil
}

// Start assembles the directory and serves HTTP until Shutdown. It does
// not block; Start returns once the listener goroutine is running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)

	if e.cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("relay", e.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		e.tracerShutdown = shutdown
	}

	dir, err := e.buildDirectory()
	if err != nil {
		return err
	}

	handler, ok := dir.Lookup(e.handler)
	if !ok {
		return fmt.Errorf("handler service %q not registered", e.handler)
	}

	if err := e.initRecorder(); err != nil {
		return err
	}

	policy := pipeline.PolicyOptimistic
	if e.cfg.Pipeline.NormalizePolicy == "strict" {
		policy = pipeline.PolicyStrictTwoPass
	}

	orch := pipeline.New(dir,
		pipeline.WithLogger(e.logger),
		pipeline.WithNormalizePolicy(policy),
	)
	adapter := server.NewAdapter(orch, handler, e.logger, e.recorder)

	timeout := defaultRequestTimeout
	if e.cfg.Server.RequestTimeout != "" {
		timeout, err = time.ParseDuration(e.cfg.Server.RequestTimeout)
		if err != nil {
			return fmt.Errorf("parse server.request_timeout: %w", err)
		}
	}

	e.server = server.New(e.cfg.Server.Port, timeout, e.logger, adapter)
	if err := e.server.Listen(); err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}

	go func() {
		if err := e.server.Serve(); err != nil {
			e.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	go e.watchContext(ctx)

	e.logger.Info("engine started",
		slog.String("addr", e.server.Addr()),
		slog.String("normalize_policy", e.cfg.Pipeline.NormalizePolicy),
		slog.Int("webhooks", len(e.cfg.Webhooks)),
	)
	return nil
}

// Addr reports the HTTP listener address. Empty before Start.
func (e *Engine) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server == nil {
		return ""
	}
	return e.server.Addr()
}

// watchContext ties the engine's lifetime to the context handed to
// Start: when it is cancelled, the HTTP server drains and stops. An
// explicit Shutdown cancels the same context, which makes the second
// server shutdown here a no-op.
func (e *Engine) watchContext(ctx context.Context) {
	<-ctx.Done()

	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()
	if srv == nil {
		return
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		e.logger.Warn("context-driven shutdown", slog.String("error", err.Error()))
	}
}

// buildDirectory registers the transport, the configured webhook
// refiners, and every injected participant, then freezes the registry.
func (e *Engine) buildDirectory() (*registry.Directory, error) {
	b := registry.NewBuilder()
	server.RegisterTransport(b)

	for _, fn := range e.register {
		if err := fn(b); err != nil {
			return nil, fmt.Errorf("register participant: %w", err)
		}
	}

	for _, wc := range e.cfg.Webhooks {
		if err := registerWebhook(b, wc); err != nil {
			return nil, err
		}
	}

	dir, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return dir, nil
}

// registerWebhook turns one webhook config entry into a refine-only
// participant. A matcher scopes the refiner to the paths it covers.
func registerWebhook(b *registry.Builder, wc config.WebhookConfig) error {
	timeout := 5 * time.Second
	if wc.Timeout != "" {
		d, err := time.ParseDuration(wc.Timeout)
		if err != nil {
			return fmt.Errorf("webhook %q: parse timeout: %w", wc.Name, err)
		}
		timeout = d
	}

	refiner := webhook.New(webhook.Config{
		Name:    wc.Name,
		URL:     wc.URL,
		Timeout: timeout,
		Retries: wc.Retries,
		OnError: webhook.Action(wc.OnError),
	})

	sb := b.Service("webhook:" + wc.Name)
	if wc.Matcher != "" {
		m, err := match.Glob(wc.Matcher)
		if err != nil {
			return fmt.Errorf("webhook %q: %w", wc.Name, err)
		}
		sb.Match(m)
	}
	sb.OnRefine(wc.Name, refiner.Refine)
	return nil
}

func (e *Engine) initRecorder() error {
	if e.recorder != nil {
		return nil
	}
	switch e.cfg.Storage.Type {
	case "", "none":
		return nil
	case "sqlite":
		store, err := sqlite.New(e.cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		e.recorder = store
		e.ownsRecorder = true
		return nil
	default:
		return fmt.Errorf("unknown storage.type %q", e.cfg.Storage.Type)
	}
}

// Shutdown stops the HTTP server and releases owned resources. It is
// safe to call on an engine that never started.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}

	var firstErr error
	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if e.ownsRecorder && e.recorder != nil {
		if err := e.recorder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.tracerShutdown != nil {
		if err := e.tracerShutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.logger.Info("engine stopped")
	return firstErr
}
