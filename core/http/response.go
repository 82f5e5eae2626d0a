package http

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/h1server/core/codec"
)

// Size of each read when streaming a body
const streamReadSize = 1024

// Writer is the sink a ResponseWriter emits into
type Writer interface {
	io.Writer
	io.StringWriter
}

// ResponseWriter emits one response in three sealed phases: status line,
// header fields, body. Each phase can be written once and only after the
// previous one.
type ResponseWriter struct {
	w Writer

	method  Method
	version Version
	te      string
	hasTE   bool

	keepAlive     bool
	status        int
	statusSealed  bool
	headersSealed bool
	complete      bool

	num [24]byte
}

// NewResponseWriter creates a writer emitting into w
func NewResponseWriter(w Writer) *ResponseWriter {
	return &ResponseWriter{w: w}
}

// Reset prepares the writer for the response to req. keepAlive is the
// persistence negotiated so far.
func (rw *ResponseWriter) Reset(req *Request, keepAlive bool) {
	rw.method = req.Method
	rw.version = req.Version
	rw.te, rw.hasTE = req.Header["te"]
	rw.keepAlive = keepAlive
	rw.status = 0
	rw.statusSealed = false
	rw.headersSealed = false
	rw.complete = false
}

// Status returns the written status code, 0 before WriteStatus
func (rw *ResponseWriter) Status() int { return rw.status }

// StatusSealed reports whether the status line was written
func (rw *ResponseWriter) StatusSealed() bool { return rw.statusSealed }

// HeadersSealed reports whether the header section was closed
func (rw *ResponseWriter) HeadersSealed() bool { return rw.headersSealed }

// Complete reports whether a whole response was written
func (rw *ResponseWriter) Complete() bool { return rw.complete }

// KeepAlive reports whether the connection may persist after this response
func (rw *ResponseWriter) KeepAlive() bool { return rw.keepAlive }

// DisableKeepAlive closes the connection after this response. It must be
// called before the headers are sealed to be announced to the client.
func (rw *ResponseWriter) DisableKeepAlive() {
	rw.keepAlive = false
}

// WriteStatus writes HTTP/1.1 <code> CRLF and seals the status
func (rw *ResponseWriter) WriteStatus(code int) error {
	if rw.statusSealed {
		return ErrStatusSealed
	}
	if code < 100 || code > 999 {
		return ErrInvalidStatus
	}

	line := append(rw.num[:0], "HTTP/1.1 "...)
	line = strconv.AppendInt(line, int64(code), 10)
	line = append(line, " \r\n"...)
	if _, err := rw.w.Write(line); err != nil {
		return err
	}

	rw.status = code
	rw.statusSealed = true
	return nil
}

// WriteHeader writes one Name: value field
func (rw *ResponseWriter) WriteHeader(name, value string) error {
	if err := rw.checkHeaderPhase(); err != nil {
		return err
	}

	switch strings.ToLower(name) {
	case "content-length", "transfer-encoding", "connection":
		return ErrFramingHeader
	}
	if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		return ErrInvalidHeader
	}

	return rw.writeField(name, value)
}

// SealHeaders ends a response without a body. Statuses that may carry a
// body are announced with Content-Length: 0.
func (rw *ResponseWriter) SealHeaders() error {
	if err := rw.checkHeaderPhase(); err != nil {
		return err
	}
	if !bodyless(rw.status) {
		if err := rw.writeField("Content-Length", "0"); err != nil {
			return err
		}
	}
	if err := rw.seal(); err != nil {
		return err
	}
	rw.complete = true
	return nil
}

// WriteBody writes body with a Content-Length. HEAD responses carry the
// length but no body bytes.
func (rw *ResponseWriter) WriteBody(body []byte) error {
	if err := rw.checkHeaderPhase(); err != nil {
		return err
	}
	if bodyless(rw.status) {
		if len(body) > 0 {
			return ErrInvalidStatus
		}
		return rw.SealHeaders()
	}

	length := strconv.AppendInt(rw.num[:0], int64(len(body)), 10)
	if err := rw.writeField("Content-Length", string(length)); err != nil {
		return err
	}
	if err := rw.seal(); err != nil {
		return err
	}

	if rw.method != MethodHead && len(body) > 0 {
		if _, err := rw.w.Write(body); err != nil {
			return err
		}
	}
	rw.complete = true
	return nil
}

// Stream writes src with chunked framing after the candidate codings,
// filtered by the client's TE. Clients older than HTTP/1.1 get the raw
// bytes and the connection closes afterwards, since no length can be
// announced without buffering. For statuses that carry no body, src must
// be empty and only the headers are sent.
func (rw *ResponseWriter) Stream(src io.Reader, codings ...string) error {
	if err := rw.checkHeaderPhase(); err != nil {
		return err
	}
	if bodyless(rw.status) {
		if rw.method != MethodHead {
			var first [1]byte
			if n, _ := io.ReadFull(src, first[:]); n > 0 {
				return ErrInvalidStatus
			}
		}
		return rw.SealHeaders()
	}

	if !rw.version.AtLeast(1, 1) {
		rw.keepAlive = false
		if err := rw.seal(); err != nil {
			return err
		}
		if rw.method != MethodHead {
			if err := pump(src, rw.writeRaw); err != nil {
				return err
			}
		}
		rw.complete = true
		return nil
	}

	stack, err := BuildCodingStack(codings, rw.te, rw.hasTE)
	if err != nil {
		return err
	}
	if err := rw.writeField("Transfer-Encoding", strings.Join(stack, ", ")); err != nil {
		return err
	}
	if err := rw.seal(); err != nil {
		return err
	}
	if rw.method == MethodHead {
		rw.complete = true
		return nil
	}

	body := src
	for _, c := range stack[:len(stack)-1] {
		raw, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		enc, err := codec.Compress(c, raw)
		if err != nil {
			return err
		}
		body = bytes.NewReader(enc)
	}

	cw := NewChunkedWriter(rw.w)
	err = pump(body, func(p []byte) error {
		_, err := cw.Write(p)
		return err
	})
	if err != nil {
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}

	rw.complete = true
	return nil
}

// Flush pushes buffered output to the peer when the sink buffers
func (rw *ResponseWriter) Flush() error {
	if f, ok := rw.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (rw *ResponseWriter) checkHeaderPhase() error {
	if !rw.statusSealed {
		return ErrStatusNotSealed
	}
	if rw.headersSealed {
		return ErrHeadersSealed
	}
	return nil
}

func (rw *ResponseWriter) writeField(name, value string) error {
	if _, err := rw.w.WriteString(name); err != nil {
		return err
	}
	if _, err := rw.w.WriteString(": "); err != nil {
		return err
	}
	if _, err := rw.w.WriteString(value); err != nil {
		return err
	}
	_, err := rw.w.WriteString("\r\n")
	return err
}

// seal announces persistence and closes the header section
func (rw *ResponseWriter) seal() error {
	switch {
	case !rw.keepAlive:
		if err := rw.writeField("Connection", "close"); err != nil {
			return err
		}
	case !rw.version.AtLeast(1, 1):
		if err := rw.writeField("Connection", "keep-alive"); err != nil {
			return err
		}
	}

	if _, err := rw.w.WriteString("\r\n"); err != nil {
		return err
	}
	rw.headersSealed = true
	return nil
}

// bodyless reports statuses that never carry a body or a length
func bodyless(code int) bool {
	return code < 200 || code == 204 || code == 304
}

func (rw *ResponseWriter) writeRaw(p []byte) error {
	_, err := rw.w.Write(p)
	return err
}

// pump feeds src to write in reads of at most streamReadSize bytes
func pump(src io.Reader, write func([]byte) error) error {
	buf := make([]byte, streamReadSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
