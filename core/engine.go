package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"

	"github.com/searchktools/h1server/core/http"
	"github.com/searchktools/h1server/core/middleware"
	"github.com/searchktools/h1server/core/observability"
	"github.com/searchktools/h1server/core/pools"
	"github.com/searchktools/h1server/core/router"
	"github.com/searchktools/h1server/core/stream"
)

// HandlerFunc defines the handler function type
type HandlerFunc = http.HandlerFunc

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics records connection and request metrics on m
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLimits sets the parser and body limits
func WithLimits(lim http.Limits) Option {
	return func(e *Engine) { e.limits = lim }
}

// WithTimeouts sets the idle (read) and per-response write timeouts. Zero
// leaves the default in place.
func WithTimeouts(idle, write time.Duration) Option {
	return func(e *Engine) {
		if idle > 0 {
			e.idleTimeout = idle
		}
		if write > 0 {
			e.writeTimeout = write
		}
	}
}

// WithErrorHandlers overrides the non-nil error handlers in h
func WithErrorHandlers(h ErrorHandlers) Option {
	return func(e *Engine) { e.errors.merge(h) }
}

// WithBufferSizes sets the per-connection read and write buffer sizes
func WithBufferSizes(read, write int) Option {
	return func(e *Engine) {
		e.readSize = read
		e.writeSize = write
	}
}

// Engine is an HTTP/1.1 server running one goroutine per connection
type Engine struct {
	router   *router.Router
	pipeline *middleware.Pipeline
	handler  http.Handler
	errors   ErrorHandlers

	log     zerolog.Logger
	metrics *observability.Metrics

	limits       http.Limits
	idleTimeout  time.Duration
	writeTimeout time.Duration
	readSize     int
	writeSize    int

	// Fine-grained memory pools
	bytePool *pools.BytePool
	bufPool  *bytebufferpool.Pool

	conns  *xsync.MapOf[uint64, *conn]
	nextID atomic.Uint64

	running atomic.Bool
	closed  atomic.Bool

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	wg        sync.WaitGroup
}

// NewEngine creates a new engine instance
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		router:       router.New(),
		pipeline:     middleware.NewPipeline(),
		errors:       DefaultErrorHandlers(),
		log:          zerolog.Nop(),
		limits:       http.DefaultLimits(),
		idleTimeout:  DefaultIdleTimeout,
		writeTimeout: DefaultWriteTimeout,
		readSize:     stream.DefaultReadSize,
		writeSize:    stream.DefaultWriteSize,
		bytePool:     pools.NewBytePool(),
		bufPool:      &bytebufferpool.Pool{},
		conns:        xsync.NewMapOf[uint64, *conn](),
		listeners:    make(map[net.Listener]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Router returns the root router
func (e *Engine) Router() *router.Router {
	return e.router
}

// Use appends middlewares wrapping every routed request
func (e *Engine) Use(m ...middleware.Middleware) error {
	if e.running.Load() {
		return ErrEngineRunning
	}
	e.pipeline.Use(m...)
	return nil
}

// Handle registers handler for methods on a host pattern and path pattern
func (e *Engine) Handle(methods http.Method, host, pattern string, handler http.Handler) error {
	if e.running.Load() {
		return ErrEngineRunning
	}
	return e.router.Add(methods, host, pattern, handler)
}

// Mount serves every request below pattern with sub, which sees the path
// with the prefix stripped
func (e *Engine) Mount(pattern string, sub *router.Router) error {
	if sub == nil {
		return router.ErrNilHandler
	}
	return e.Handle(http.MethodAny, "", strings.TrimSuffix(pattern, "/")+"/*", sub)
}

func (e *Engine) mustHandle(method http.Method, path string, handler HandlerFunc) {
	if err := e.Handle(method, "", path, handler); err != nil {
		panic(fmt.Sprintf("register %s %s: %v", method, path, err))
	}
}

// GET registers a GET route, which also answers HEAD
func (e *Engine) GET(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodGet, path, handler)
}

// HEAD registers a HEAD route
func (e *Engine) HEAD(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodHead, path, handler)
}

// POST registers a POST route
func (e *Engine) POST(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodPost, path, handler)
}

// PUT registers a PUT route
func (e *Engine) PUT(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodPut, path, handler)
}

// DELETE registers a DELETE route
func (e *Engine) DELETE(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodDelete, path, handler)
}

// OPTIONS registers an OPTIONS route. The path "*" answers OPTIONS *.
func (e *Engine) OPTIONS(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodOptions, path, handler)
}

// TRACE registers a TRACE route
func (e *Engine) TRACE(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodTrace, path, handler)
}

// Any registers a route for every method
func (e *Engine) Any(path string, handler HandlerFunc) {
	e.mustHandle(http.MethodAny, path, handler)
}

// ActiveConnections returns the number of open connections
func (e *Engine) ActiveConnections() int {
	return e.conns.Size()
}

// Run listens on addr and serves until Shutdown
func (e *Engine) Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return e.Serve(ln)
}

// Serve accepts connections on ln until it fails or Shutdown is called.
// The route table and middleware are frozen from the first call on.
func (e *Engine) Serve(ln net.Listener) error {
	e.mu.Lock()
	// Checked under mu so Shutdown cannot miss this listener
	if e.closed.Load() {
		e.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	if !e.running.Load() {
		e.handler = e.pipeline.Then(e.router)
		e.running.Store(true)
	}
	e.listeners[ln] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.listeners, ln)
		e.mu.Unlock()
		ln.Close()
		e.wg.Done()
	}()

	e.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if e.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) || !retryAccept(err) {
				return err
			}

			// Back off on resource exhaustion
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, time.Second)
			}
			e.log.Warn().Err(err).Dur("retry", delay).Msg("accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0

		if err := tuneSocket(nc); err != nil {
			e.log.Debug().Err(err).Msg("socket options")
		}

		c := e.newConn(nc)
		e.conns.Store(c.id, c)
		e.wg.Add(1)
		e.metrics.ConnOpened()

		// Shutdown may have ranged the registry before the store
		if e.closed.Load() {
			nc.Close()
		}

		go c.serve()
	}
}

// Shutdown stops the listeners, closes every live connection and waits for
// the connection goroutines or ctx, whichever comes first
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closed.Store(true)

	e.mu.Lock()
	for ln := range e.listeners {
		ln.Close()
	}
	e.mu.Unlock()

	e.conns.Range(func(_ uint64, c *conn) bool {
		c.nc.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info().Msg("engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
