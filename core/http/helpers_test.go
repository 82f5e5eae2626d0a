package http

import (
	"bytes"
	"io"
	"strings"

	"github.com/searchktools/h1server/core/pools"
	"github.com/searchktools/h1server/core/stream"
)

type testConn struct {
	r   io.Reader
	out bytes.Buffer
}

func (c *testConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *testConn) Write(p []byte) (int, error) { return c.out.Write(p) }

func newTestStream(input string) (*stream.Stream, *testConn) {
	conn := &testConn{r: strings.NewReader(input)}
	return stream.New(conn, nil, 64, 64), conn
}

func newTestRequest() *Request {
	req := &Request{}
	req.Reset()
	return req
}

func readRequest(input string, lim Limits) (*Request, error) {
	s, _ := newTestStream(input)
	a := pools.NewArena(nil)
	req := newTestRequest()

	if err := ReadRequestHead(s, a, lim, req); err != nil {
		return req, err
	}
	return req, ReadBody(s, a, lim, req)
}
