// Package httptest builds request contexts from raw request bytes for
// handler tests.
package httptest

import (
	"bytes"
	"io"
	"strings"

	"github.com/searchktools/h1server/core/http"
	"github.com/searchktools/h1server/core/pools"
	"github.com/searchktools/h1server/core/stream"
)

type conn struct {
	r io.Reader
	w io.Writer
}

func (c conn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c conn) Write(p []byte) (int, error) { return c.w.Write(p) }

// Recorder holds the bytes a handler wrote
type Recorder struct {
	bytes.Buffer
}

// Status returns the status code of the recorded response, 0 if none
func (r *Recorder) Status() int {
	line, _, _ := strings.Cut(r.String(), "\r\n")
	if len(line) < 12 || !strings.HasPrefix(line, "HTTP/1.1 ") {
		return 0
	}
	code := 0
	for _, c := range line[9:12] {
		if c < '0' || c > '9' {
			return 0
		}
		code = code*10 + int(c-'0')
	}
	return code
}

// Header returns the first value of the named response header
func (r *Recorder) Header(name string) string {
	head, _, _ := strings.Cut(r.String(), "\r\n\r\n")
	for _, line := range strings.Split(head, "\r\n")[1:] {
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Body returns everything after the header section
func (r *Recorder) Body() string {
	_, body, _ := strings.Cut(r.String(), "\r\n\r\n")
	return body
}

// NewContext parses raw, head and body, into a context whose response is
// written to the returned recorder
func NewContext(raw string) (*http.RequestContext, *Recorder, error) {
	rec := &Recorder{}
	s := stream.New(conn{r: strings.NewReader(raw), w: rec}, nil, 0, 0)
	a := pools.NewArena(nil)

	req := &http.Request{}
	req.Reset()
	if err := http.ReadRequestHead(s, a, http.DefaultLimits(), req); err != nil {
		return nil, nil, err
	}
	if err := http.ReadBody(s, a, http.DefaultLimits(), req); err != nil {
		return nil, nil, err
	}

	rw := http.NewResponseWriter(rec)
	rw.Reset(req, !req.Close)
	ctx := http.NewRequestContext(rw, a, nil)
	ctx.Reset(req)
	return ctx, rec, nil
}
