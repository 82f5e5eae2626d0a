package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/h1server/config"
	"github.com/searchktools/h1server/core"
	"github.com/searchktools/h1server/core/fileserver"
	"github.com/searchktools/h1server/core/http"
	"github.com/searchktools/h1server/core/logging"
	"github.com/searchktools/h1server/core/middleware"
	"github.com/searchktools/h1server/core/observability"
)

const (
	// ShutdownTimeout bounds the wait for connections after a signal
	ShutdownTimeout = 10 * time.Second

	// FilePrefix is where FileRoot is mounted
	FilePrefix = "/files/"

	fileCacheEntries = 256
)

// App wires configuration, logging, metrics and the engine together
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *observability.Metrics
	engine  *core.Engine

	hooks []func()
}

// New creates an application instance
func New(cfg *config.Config) (*App, error) {
	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, err
	}
	return NewWithLogger(cfg, log)
}

// NewWithLogger creates an application instance logging to log
func NewWithLogger(cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(nil)
	engine := core.NewEngine(
		core.WithLogger(log),
		core.WithMetrics(metrics),
		core.WithLimits(cfg.Limits()),
		core.WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout),
	)
	if err := engine.Use(middleware.Recovery(log), middleware.Logger(log)); err != nil {
		return nil, err
	}

	if cfg.FileRoot != "" {
		files := fileserver.New(cfg.FileRoot, fileserver.NewFileCache(fileCacheEntries, 0))
		if err := engine.Handle(http.MethodGet, "", FilePrefix+"*", files); err != nil {
			return nil, err
		}
	}

	return &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		engine:  engine,
	}, nil
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Metrics returns the metrics exposed on the metrics port
func (a *App) Metrics() *observability.Metrics {
	return a.metrics
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.log
}

// OnShutdown registers fn to run before connections are closed, for
// handlers that only return when told to (event streams)
func (a *App) OnShutdown(fn func()) {
	a.hooks = append(a.hooks, fn)
}

// Run listens on the configured ports and serves until ctx is done or
// SIGINT/SIGTERM arrives
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		return err
	}

	var mln net.Listener
	if a.cfg.MetricsPort != 0 {
		mln, err = net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.MetricsPort))
		if err != nil {
			ln.Close()
			return err
		}
	}

	a.log.Info().
		Int("port", a.cfg.Port).
		Int("metrics_port", a.cfg.MetricsPort).
		Str("env", a.cfg.Env).
		Msg("server starting")
	return a.Serve(ctx, ln, mln)
}

// Serve runs the engine on ln and the metrics endpoint on mln (nil
// disables it). It returns after ctx is done and both have stopped, or as
// soon as either fails.
func (a *App) Serve(ctx context.Context, ln, mln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.engine.Serve(ln); !errors.Is(err, core.ErrServerClosed) {
			return err
		}
		return nil
	})

	var ms *nethttp.Server
	if mln != nil {
		mux := nethttp.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		ms = &nethttp.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := ms.Serve(mln); !errors.Is(err, nethttp.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info().Msg("shutting down")
		for _, fn := range a.hooks {
			fn()
		}

		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		var merr error
		if ms != nil {
			merr = ms.Shutdown(sctx)
		}
		return errors.Join(a.engine.Shutdown(sctx), merr)
	})

	return g.Wait()
}
