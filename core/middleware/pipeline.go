package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/h1server/core/http"
)

// ErrPanic wraps a value recovered from a panicking handler
var ErrPanic = errors.New("handler panic")

// Middleware wraps a handler with extra behaviour
type Middleware func(next http.Handler) http.Handler

// Pipeline is an ordered middleware stack. The first middleware added is
// the outermost.
type Pipeline struct {
	handlers []Middleware
}

// NewPipeline creates a new middleware pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		handlers: make([]Middleware, 0, 8),
	}
}

// Use adds middlewares to the pipeline
func (p *Pipeline) Use(m ...Middleware) *Pipeline {
	p.handlers = append(p.handlers, m...)
	return p
}

// Len returns the number of middlewares
func (p *Pipeline) Len() int {
	return len(p.handlers)
}

// Then wraps final with every middleware
func (p *Pipeline) Then(final http.Handler) http.Handler {
	// Fast path: no middlewares
	if len(p.handlers) == 0 {
		return final
	}

	h := final
	for i := len(p.handlers) - 1; i >= 0; i-- {
		h = p.handlers[i](h)
	}
	return h
}

// Chain composes middlewares into one, outermost first
func Chain(m ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		return NewPipeline().Use(m...).Then(next)
	}
}

// Common middleware implementations

// Recovery turns a panic into an ErrPanic error so the connection answers
// with 500
func Recovery(log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx http.Context) (err error) {
			defer func() {
				if v := recover(); v != nil {
					log.Error().
						Str("method", ctx.Method().String()).
						Str("path", ctx.Path()).
						Bytes("stack", debug.Stack()).
						Msgf("panic recovered: %v", v)
					err = fmt.Errorf("%w: %v", ErrPanic, v)
				}
			}()
			return next.Handle(ctx)
		})
	}
}

// Logger writes one access log line per handled request
func Logger(log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx http.Context) error {
			start := time.Now()
			err := next.Handle(ctx)

			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Str("method", ctx.Method().String()).
				Str("path", ctx.Path()).
				Int("status", ctx.Response().Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
			return err
		})
	}
}

// RateLimiter answers 429 once more than requestsPerSecond requests arrive
// within the current one second window
func RateLimiter(requestsPerSecond int) Middleware {
	var (
		tokens     = requestsPerSecond
		lastRefill = time.Now()
		mu         sync.Mutex
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx http.Context) error {
			mu.Lock()

			now := time.Now()
			if now.Sub(lastRefill) > time.Second {
				tokens = requestsPerSecond
				lastRefill = now
			}

			if tokens > 0 {
				tokens--
				mu.Unlock()
				return next.Handle(ctx)
			}

			mu.Unlock()
			return ctx.Error(429, "Too Many Requests")
		})
	}
}
