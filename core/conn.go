package core

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/h1server/core/http"
	"github.com/searchktools/h1server/core/pools"
	"github.com/searchktools/h1server/core/stream"
)

// conn drives one accepted socket through request/response cycles. Every
// field is owned by the connection goroutine.
type conn struct {
	id  uint64
	e   *Engine
	nc  net.Conn
	log zerolog.Logger

	s     *stream.Stream
	arena *pools.Arena
	req   http.Request
	rw    *http.ResponseWriter
	ctx   *http.RequestContext

	// linger drains unread input before closing so the peer sees the
	// error response instead of a reset
	linger bool
}

func (e *Engine) newConn(nc net.Conn) *conn {
	c := &conn{
		id: e.nextID.Add(1),
		e:  e,
		nc: nc,
	}
	c.log = e.log.With().
		Uint64("conn", c.id).
		Str("peer", nc.RemoteAddr().String()).
		Logger()

	c.s = stream.New(nc, e.bytePool, e.readSize, e.writeSize)
	c.s.SetWriteTimeout(e.writeTimeout)
	c.arena = pools.NewArena(e.bufPool)
	c.req.Reset()
	c.rw = http.NewResponseWriter(c.s)
	c.ctx = http.NewRequestContext(c.rw, c.arena, nc.RemoteAddr())
	return c
}

func (c *conn) serve() {
	defer c.teardown()
	defer func() {
		if v := recover(); v != nil {
			c.log.Error().Bytes("stack", debug.Stack()).Msgf("connection panic: %v", v)
		}
	}()

	c.log.Debug().Msg("connection opened")
	for c.serveRequest() {
	}
}

// teardown runs exactly once on every exit path
func (c *conn) teardown() {
	c.s.Release()
	c.arena.Reset()
	if c.linger {
		c.lingeringClose()
	}
	c.nc.Close()

	c.e.conns.Delete(c.id)
	c.e.metrics.ConnClosed()
	c.log.Debug().Msg("connection closed")
	c.e.wg.Done()
}

// serveRequest runs one cycle and reports whether the connection persists
func (c *conn) serveRequest() bool {
	e := c.e

	// Awaiting request: an idle timeout is a normal close
	if _, err := c.s.PeekTimeout(e.idleTimeout); err != nil {
		if !quietClose(err) {
			c.log.Debug().Err(err).Msg("peek failed")
		}
		return false
	}
	c.arena.Reset()
	c.req.Reset()
	start := time.Now()

	if e.idleTimeout > 0 {
		c.s.SetReadDeadline(start.Add(e.idleTimeout))
	}
	if err := http.ReadRequestHead(c.s, c.arena, e.limits, &c.req); err != nil {
		return c.readFailed(err, start)
	}

	c.rw.Reset(&c.req, keepAlive(&c.req))
	c.ctx.Reset(&c.req)

	if c.req.ExpectsContinue() {
		// Refuse an oversized body before inviting the client to send it
		if err := http.CheckContentLength(e.limits, &c.req); err != nil {
			return c.readFailed(err, start)
		}
		c.s.WriteString(continueResponse)
		if err := c.s.Flush(); err != nil {
			return false
		}
	}
	if err := http.ReadBody(c.s, c.arena, e.limits, &c.req); err != nil {
		return c.readFailed(err, start)
	}
	if c.req.Close {
		c.rw.DisableKeepAlive()
	}
	c.s.SetReadDeadline(time.Time{})

	persist := c.finish(c.call(e.handler))
	return c.flush(start) && persist
}

// finish turns the handler result into a complete response where one is
// still possible
func (c *conn) finish(err error) bool {
	if err == nil {
		if c.rw.Complete() {
			return c.rw.KeepAlive()
		}
		err = ErrIncompleteResponse
	}

	var se *http.StatusError
	if errors.As(err, &se) && !c.rw.StatusSealed() {
		return c.dispatch(se.Code, se.Err, se.Allow)
	}

	c.log.Error().Err(err).
		Str("method", c.req.Method.String()).
		Str("path", http.JoinSegments(c.req.Target.Segments)).
		Msg("handler failed")

	if c.rw.StatusSealed() {
		// Part of a response is on the wire; the only way out is closing
		c.rw.DisableKeepAlive()
		return false
	}
	return c.dispatch(500, err, http.MethodNone)
}

// dispatch answers with the error handler registered for code
func (c *conn) dispatch(code int, err error, allow http.Method) bool {
	h, persist := c.e.errors.forStatus(code)
	if !persist {
		c.rw.DisableKeepAlive()
	}

	c.ctx.SetError(code, err, allow)
	if herr := c.call(h); herr != nil || !c.rw.Complete() {
		c.log.Error().Err(herr).Int("status", code).Msg("error handler failed")
		return false
	}
	return persist && c.rw.KeepAlive()
}

// call runs h on the current request, reporting a panic as ErrHandlerPanic
func (c *conn) call(h http.Handler) (err error) {
	defer func() {
		if v := recover(); v != nil {
			c.log.Error().
				Str("method", c.req.Method.String()).
				Str("path", http.JoinSegments(c.req.Target.Segments)).
				Bytes("stack", debug.Stack()).
				Msgf("panic recovered: %v", v)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, v)
		}
	}()
	return h.Handle(c.ctx)
}

// readFailed answers a request that could not be parsed. The connection
// always closes afterwards.
func (c *conn) readFailed(err error, start time.Time) bool {
	code, kind := classify(err)
	if code == 0 {
		if !quietClose(err) {
			c.log.Debug().Err(err).Msg("read failed")
		}
		return false
	}

	c.log.Debug().Err(err).Str("kind", kind).Int("status", code).Msg("rejected request")
	c.e.metrics.ProtocolError(kind)

	c.rw.Reset(&c.req, false)
	c.ctx.Reset(&c.req)
	c.s.SetReadDeadline(time.Time{})

	c.dispatch(code, err, http.MethodNone)
	c.flush(start)
	c.linger = true
	return false
}

// lingeringClose half-closes the socket and discards what the peer is
// still sending, bounded in time and size
func (c *conn) lingeringClose() {
	if cw, ok := c.nc.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return
		}
	}
	c.nc.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(c.nc, lingerLimit))
}

func (c *conn) flush(start time.Time) bool {
	if err := c.s.Flush(); err != nil {
		c.log.Debug().Err(err).Msg("flush failed")
		return false
	}
	if status := c.rw.Status(); status != 0 {
		c.e.metrics.ObserveRequest(c.req.Method, status, time.Since(start))
	}
	return true
}

// keepAlive negotiates persistence from the request alone
func keepAlive(req *http.Request) bool {
	if req.Header.ContainsToken("connection", "close") {
		return false
	}
	if req.Version.AtLeast(1, 1) {
		return true
	}
	return req.Header.ContainsToken("connection", "keep-alive")
}
