package http

import (
	"io"
	"net"
	"net/url"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"

	"github.com/searchktools/h1server/core/pools"
)

// Handler serves one request. Returning a *StatusError asks for a 404/405
// dispatch; any other error becomes a 500.
type Handler interface {
	Handle(ctx Context) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx Context) error

// Handle calls f(ctx)
func (f HandlerFunc) Handle(ctx Context) error {
	return f(ctx)
}

// Context defines the HTTP request context interface
type Context interface {
	// Request information
	Method() Method
	Version() Version
	Host() string
	Asterisk() bool
	Path() string
	Segments() []string
	Param(key string) string
	Query(key string) string
	RawQuery() string
	Header(key string) string
	Headers() Header
	Trailer() Header
	Body() []byte
	RemoteAddr() net.Addr
	Arena() *pools.Arena

	// Routing state
	SetParam(key, value string)
	SetSegments(rest []string)

	// Error dispatch
	StatusCode() int
	Err() error
	Allow() Method

	// Response methods
	Response() *ResponseWriter
	String(code int, s string) error
	Bytes(code int, data []byte) error
	Data(code int, contentType string, data []byte) error
	JSON(code int, v any) error
	Proto(code int, m proto.Message) error
	Stream(code int, contentType string, src io.Reader, codings ...string) error
	NoContent(code int) error
	Error(code int, message string) error

	// Binding
	Bind(v any) error
	BindProto(m proto.Message) error
}

// RequestContext is the per-cycle Context handed to handlers. It is owned
// by one connection and reset between requests.
type RequestContext struct {
	paramKeys   [4]string
	paramValues [4]string
	paramCount  int

	// Map overflow for more than 4 parameters
	paramMapOverflow map[string]string

	req      *Request
	rw       *ResponseWriter
	arena    *pools.Arena
	remote   net.Addr
	segments []string
	query    url.Values

	status int
	err    error
	allow  Method
}

// NewRequestContext creates a context bound to a connection's response
// writer and arena
func NewRequestContext(rw *ResponseWriter, arena *pools.Arena, remote net.Addr) *RequestContext {
	return &RequestContext{rw: rw, arena: arena, remote: remote}
}

// Reset binds the context to the next request
func (c *RequestContext) Reset(req *Request) {
	for i := 0; i < c.paramCount; i++ {
		c.paramKeys[i] = ""
		c.paramValues[i] = ""
	}
	c.paramCount = 0
	if c.paramMapOverflow != nil {
		clear(c.paramMapOverflow)
	}

	c.req = req
	c.segments = req.Target.Segments
	c.query = nil
	c.status = 0
	c.err = nil
	c.allow = MethodNone
}

// Request returns the request being served
func (c *RequestContext) Request() *Request {
	return c.req
}

// SetError records the failure an error handler is about to answer
func (c *RequestContext) SetError(code int, err error, allow Method) {
	c.status = code
	c.err = err
	c.allow = allow
}

// SetParam sets a path parameter
func (c *RequestContext) SetParam(key, value string) {
	for i := 0; i < c.paramCount; i++ {
		if c.paramKeys[i] == key {
			c.paramValues[i] = value
			return
		}
	}

	if c.paramCount < 4 {
		c.paramKeys[c.paramCount] = key
		c.paramValues[c.paramCount] = value
		c.paramCount++
	} else {
		if c.paramMapOverflow == nil {
			c.paramMapOverflow = make(map[string]string)
		}
		c.paramMapOverflow[key] = value
	}
}

// Param gets a path parameter
func (c *RequestContext) Param(key string) string {
	for i := 0; i < c.paramCount; i++ {
		if c.paramKeys[i] == key {
			return c.paramValues[i]
		}
	}

	if c.paramMapOverflow != nil {
		return c.paramMapOverflow[key]
	}

	return ""
}

// SetSegments narrows the path visible to the next handler
func (c *RequestContext) SetSegments(rest []string) {
	c.segments = rest
}

func (c *RequestContext) Method() Method       { return c.req.Method }
func (c *RequestContext) Version() Version     { return c.req.Version }
func (c *RequestContext) Segments() []string   { return c.segments }
func (c *RequestContext) Headers() Header      { return c.req.Header }
func (c *RequestContext) Trailer() Header      { return c.req.Trailer }
func (c *RequestContext) Body() []byte         { return c.req.Body }
func (c *RequestContext) RemoteAddr() net.Addr { return c.remote }
func (c *RequestContext) Arena() *pools.Arena  { return c.arena }
func (c *RequestContext) RawQuery() string     { return c.req.Target.Query }

func (c *RequestContext) StatusCode() int           { return c.status }
func (c *RequestContext) Err() error                { return c.err }
func (c *RequestContext) Allow() Method             { return c.allow }
func (c *RequestContext) Response() *ResponseWriter { return c.rw }

// Host returns the Host header without its port
func (c *RequestContext) Host() string {
	return c.req.Host()
}

// Asterisk reports an OPTIONS * request
func (c *RequestContext) Asterisk() bool {
	return c.req.Target.Asterisk
}

// Path returns the part of the path the current handler is mounted on
func (c *RequestContext) Path() string {
	return JoinSegments(c.segments)
}

// Query gets a query parameter
func (c *RequestContext) Query(key string) string {
	if c.query == nil {
		c.query, _ = url.ParseQuery(c.req.Target.Query)
	}
	return c.query.Get(key)
}

// Header gets a request header
func (c *RequestContext) Header(key string) string {
	return c.req.Header.Get(key)
}

// String sends a text response
func (c *RequestContext) String(code int, s string) error {
	return c.Data(code, "text/plain; charset=utf-8", []byte(s))
}

// Bytes sends a raw bytes response
func (c *RequestContext) Bytes(code int, data []byte) error {
	return c.Data(code, "application/octet-stream", data)
}

// Data sends data with a Content-Length
func (c *RequestContext) Data(code int, contentType string, data []byte) error {
	if err := c.rw.WriteStatus(code); err != nil {
		return err
	}
	if err := c.rw.WriteHeader("Content-Type", contentType); err != nil {
		return err
	}
	return c.rw.WriteBody(data)
}

// JSON sends a JSON response
func (c *RequestContext) JSON(code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Data(code, "application/json", data)
}

// Proto sends a protobuf response
func (c *RequestContext) Proto(code int, m proto.Message) error {
	data, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	return c.Data(code, "application/x-protobuf", data)
}

// Stream sends src with chunked framing, compressed with the codings the
// client accepts
func (c *RequestContext) Stream(code int, contentType string, src io.Reader, codings ...string) error {
	if err := c.rw.WriteStatus(code); err != nil {
		return err
	}
	if contentType != "" {
		if err := c.rw.WriteHeader("Content-Type", contentType); err != nil {
			return err
		}
	}
	return c.rw.Stream(src, codings...)
}

// NoContent sends a response without a body
func (c *RequestContext) NoContent(code int) error {
	if err := c.rw.WriteStatus(code); err != nil {
		return err
	}
	return c.rw.SealHeaders()
}

// Error sends an error response
func (c *RequestContext) Error(code int, message string) error {
	return c.JSON(code, map[string]any{
		"code":    code,
		"message": message,
	})
}

// Bind binds a JSON body to v
func (c *RequestContext) Bind(v any) error {
	return json.Unmarshal(c.req.Body, v)
}

// BindProto binds a protobuf body to m
func (c *RequestContext) BindProto(m proto.Message) error {
	return proto.Unmarshal(c.req.Body, m)
}
