// Package daemon owns the process lifecycle: binding the HTTP listeners,
// waiting for a shutdown signal and unwinding registered cleanup hooks.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mashiroka/radigw/internal/log"
)

// ShutdownHook performs one piece of cleanup during graceful shutdown.
// Hooks run in reverse registration order (LIFO). Drain hooks run before
// the listeners close, shutdown hooks after.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Options holds the listener configuration.
type Options struct {
	ListenAddr      string // required, e.g. ":9000"
	MetricsAddr     string // empty disables the metrics listener
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // 0 for the API server: relay streams are unbounded
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 120 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 15 * time.Second
	}
}

// Manager binds the listeners up front, serves until the context is
// cancelled or a server fails, then unwinds the shutdown hooks.
type Manager struct {
	opts    Options
	handler http.Handler

	apiServer     *http.Server
	metricsServer *http.Server

	drainHooks []namedHook
	hooks      []namedHook
	started    bool
	stopping   bool
	mu         sync.Mutex

	logger zerolog.Logger
}

// NewManager creates a manager serving handler on opts.ListenAddr.
func NewManager(opts Options, handler http.Handler) (*Manager, error) {
	if opts.ListenAddr == "" {
		return nil, fmt.Errorf("daemon: listen address is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("daemon: handler is required")
	}
	opts.withDefaults()
	return &Manager{
		opts:    opts,
		handler: handler,
		logger:  log.WithComponent("daemon"),
	}, nil
}

// RegisterDrainHook appends a named cleanup step that runs LIFO before the
// listeners close. Long-lived relay streams hold their connections open, so
// anything that must end for the listener drain to complete belongs here.
func (m *Manager) RegisterDrainHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainHooks = append(m.drainHooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("event", "daemon.hook_registered").Str("hook", name).Msg("registered drain hook")
}

// RegisterShutdownHook appends a named cleanup step that runs LIFO after
// the listeners have closed.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("event", "daemon.hook_registered").Str("hook", name).Msg("registered shutdown hook")
}

// Start binds the listeners and blocks until ctx is cancelled or a server
// fails. Binding happens synchronously so a taken port surfaces as
// ErrPortInUse immediately instead of as a late goroutine error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("daemon: manager already started")
	}
	m.started = true
	m.mu.Unlock()

	apiLn, err := net.Listen("tcp", m.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPortInUse, m.opts.ListenAddr, err)
	}

	errChan := make(chan error, 2)

	m.apiServer = &http.Server{
		Handler:           m.handler,
		ReadTimeout:       m.opts.ReadTimeout,
		ReadHeaderTimeout: m.opts.ReadTimeout / 2,
		WriteTimeout:      m.opts.WriteTimeout,
		IdleTimeout:       m.opts.IdleTimeout,
	}
	go func() {
		m.logger.Info().
			Str("event", "daemon.api_listening").
			Str("addr", apiLn.Addr().String()).
			Msg("api server listening")
		if err := m.apiServer.Serve(apiLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api server: %w", err)
		}
	}()

	if m.opts.MetricsAddr != "" {
		metricsLn, err := net.Listen("tcp", m.opts.MetricsAddr)
		if err != nil {
			_ = apiLn.Close()
			return fmt.Errorf("%w: %s: %v", ErrPortInUse, m.opts.MetricsAddr, err)
		}
		m.metricsServer = &http.Server{
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: m.opts.ReadTimeout / 2,
		}
		go func() {
			m.logger.Info().
				Str("event", "daemon.metrics_listening").
				Str("addr", metricsLn.Addr().String()).
				Msg("metrics server listening")
			if err := m.metricsServer.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case err := <-errChan:
		m.logger.Error().Str("event", "daemon.server_failed").Err(err).Msg("server error, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.ShutdownTimeout)
		defer cancel()
		if sdErr := m.Shutdown(shutdownCtx); sdErr != nil {
			return errors.Join(err, sdErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str("event", "daemon.shutdown_signal").Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

// Shutdown unwinds in three phases: drain hooks first so active streams
// release their connections, then the listeners, then the shutdown hooks.
// Draining before the listener close is what keeps an active relay stream
// from stalling Shutdown until the timeout. Safe to call more than once;
// the second call is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.stopping = true
	drain := make([]namedHook, len(m.drainHooks))
	copy(drain, m.drainHooks)
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	m.logger.Info().Str("event", "daemon.shutdown_start").Msg("shutting down")

	errs := m.runHooks(ctx, drain)

	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	errs = append(errs, m.runHooks(ctx, hooks)...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrShutdown, errors.Join(errs...))
	}
	m.logger.Info().Str("event", "daemon.shutdown_done").Msg("stopped cleanly")
	return nil
}

// runHooks executes hooks LIFO, collecting failures without aborting.
func (m *Manager) runHooks(ctx context.Context, hooks []namedHook) []error {
	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			m.logger.Error().
				Str("event", "daemon.hook_failed").
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Err(err).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("event", "daemon.hook_done").
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}
	return errs
}
