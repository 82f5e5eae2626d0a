package http

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/searchktools/h1server/core/codec"
	"github.com/searchktools/h1server/core/pools"
	"github.com/searchktools/h1server/core/stream"
)

// Longest chunk-size line accepted, extensions included
const maxChunkLine = 4096

const codingChunked = "chunked"

// HasBody reports whether the request head announces a body
func (r *Request) HasBody() bool {
	if r.Header.Has("transfer-encoding") {
		return true
	}
	cl := r.Header.Get("content-length")
	return cl != "" && cl != "0"
}

// ExpectsContinue reports whether the client waits for an interim 100
// response before sending the body.
func (r *Request) ExpectsContinue() bool {
	return r.Version.AtLeast(1, 1) && r.HasBody() &&
		r.Header.ContainsToken("expect", "100-continue")
}

// ReadBody reads the request body announced by the head into the arena.
// Transfer-Encoding takes precedence over Content-Length; when both are
// present Content-Length is ignored and req.Close is set.
func ReadBody(s *stream.Stream, a *pools.Arena, lim Limits, req *Request) error {
	te, hasTE := req.Header["transfer-encoding"]
	cl, hasCL := req.Header["content-length"]

	switch {
	case hasTE:
		codings, err := ParseTransferCoding(te)
		if err != nil {
			return err
		}
		if hasCL || !req.Version.AtLeast(1, 1) {
			req.Close = true
		}

		if req.Trailer == nil {
			req.Trailer = make(Header)
		}
		body := a.Buffer()
		if err := readChunked(s, body, a.Buffer(), lim, req.Trailer); err != nil {
			return err
		}
		req.Body = body.B

		return decodeBody(a, lim, req, codings[:len(codings)-1])

	case hasCL:
		n, err := boundedLength(cl, lim)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		body := a.Buffer()
		body.B = slices.Grow(body.B[:0], int(n))[:n]
		if err := s.ReadFull(body.B); err != nil {
			return err
		}
		req.Body = body.B
	}

	return nil
}

// CheckContentLength rejects a Content-Length above lim.Body before any
// body byte is read. Chunked bodies are bounded while they are read.
func CheckContentLength(lim Limits, req *Request) error {
	if _, hasTE := req.Header["transfer-encoding"]; hasTE {
		return nil
	}
	if cl, ok := req.Header["content-length"]; ok {
		_, err := boundedLength(cl, lim)
		return err
	}
	return nil
}

func boundedLength(cl string, lim Limits) (int64, error) {
	n, err := ParseContentLength(cl)
	if err != nil {
		return 0, err
	}
	if n > lim.Body {
		return 0, fmt.Errorf("%w: content-length %d", ErrBodyTooLarge, n)
	}
	return n, nil
}

// ParseTransferCoding validates a request Transfer-Encoding list. chunked
// must close the list and appear once; the codings ahead of it must be
// ones the codec can undo.
func ParseTransferCoding(v string) ([]string, error) {
	var codings []string
	for _, part := range strings.Split(v, ",") {
		name := part
		if i := strings.IndexByte(name, ';'); i >= 0 {
			name = name[:i]
		}
		name = strings.ToLower(strings.Trim(name, " \t"))
		if name != "" {
			codings = append(codings, name)
		}
	}

	if len(codings) == 0 {
		return nil, fmt.Errorf("%w: empty coding list", ErrBadTransferCoding)
	}
	last := len(codings) - 1
	if codings[last] != codingChunked {
		return nil, fmt.Errorf("%w: chunked must be last", ErrBadTransferCoding)
	}
	for _, c := range codings[:last] {
		if c == codingChunked {
			return nil, fmt.Errorf("%w: chunked applied twice", ErrBadTransferCoding)
		}
		if !codec.Supported(c) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransferCoding, c)
		}
	}
	return codings, nil
}

// ParseContentLength parses a Content-Length value. Repeated fields joined
// by the header map are accepted when every value agrees.
func ParseContentLength(v string) (int64, error) {
	n := int64(-1)
	for _, part := range strings.Split(v, ",") {
		part = strings.Trim(part, " \t")
		if part == "" {
			return 0, ErrBadContentLength
		}
		for i := 0; i < len(part); i++ {
			if !isDigit(part[i]) {
				return 0, fmt.Errorf("%w: %q", ErrBadContentLength, part)
			}
		}

		m, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadContentLength, err)
		}
		if n >= 0 && m != n {
			return 0, fmt.Errorf("%w: conflicting values", ErrBadContentLength)
		}
		n = m
	}
	return n, nil
}

// readChunked decodes chunked framing into body and the trailer section
// into trailer. scratch holds size and trailer lines.
func readChunked(s *stream.Stream, body, scratch *bytebufferpool.ByteBuffer, lim Limits, trailer Header) error {
	var total int64

	for {
		s.SetLimit(maxChunkLine + 2)
		line, err := s.ReadLine(scratch.B[:0])
		s.SetLimit(-1)
		scratch.B = line[:0]

		if err != nil {
			if errors.Is(err, stream.ErrLimitExceeded) || errors.Is(err, stream.ErrMissingCRLF) {
				return fmt.Errorf("%w: size line: %v", ErrMalformedChunk, err)
			}
			return err
		}

		size, err := parseChunkSize(line)
		if err != nil {
			return err
		}
		if size == 0 {
			break
		}
		if size > lim.Body-total {
			return fmt.Errorf("%w: chunked body over %d bytes", ErrBodyTooLarge, lim.Body)
		}

		n := len(body.B)
		body.B = slices.Grow(body.B, int(size))[:n+int(size)]
		if err := s.ReadFull(body.B[n:]); err != nil {
			return err
		}
		if err := expectCRLF(s); err != nil {
			return err
		}
		total += size
	}

	if err := readFields(s, scratch, lim, trailer); err != nil {
		if errors.Is(err, ErrMalformedHeader) || errors.Is(err, ErrTooManyHeaders) {
			return fmt.Errorf("%w: trailer: %v", ErrMalformedChunk, err)
		}
		return err
	}
	return nil
}

func parseChunkSize(line []byte) (int64, error) {
	if i := slices.Index(line, ';'); i >= 0 {
		line = line[:i]
	}
	for len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t') {
		line = line[:len(line)-1]
	}

	if len(line) == 0 || len(line) > 15 {
		return 0, fmt.Errorf("%w: bad size %q", ErrMalformedChunk, line)
	}

	var size int64
	for _, c := range line {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, fmt.Errorf("%w: bad size %q", ErrMalformedChunk, line)
		}
		size = size<<4 | int64(d)
	}
	return size, nil
}

func expectCRLF(s *stream.Stream) error {
	cr, err := s.Pop()
	if err != nil {
		return err
	}
	lf, err := s.Pop()
	if err != nil {
		return err
	}
	if cr != '\r' || lf != '\n' {
		return fmt.Errorf("%w: chunk data not followed by CRLF", ErrMalformedChunk)
	}
	return nil
}

// decodeBody undoes the codings applied ahead of chunked, last first
func decodeBody(a *pools.Arena, lim Limits, req *Request, codings []string) error {
	for i := len(codings) - 1; i >= 0; i-- {
		out, err := codec.Decompress(codings[i], req.Body, lim.Body)
		if err != nil {
			if errors.Is(err, codec.ErrTooLarge) {
				return fmt.Errorf("%w: decoded %s body", ErrBodyTooLarge, codings[i])
			}
			return fmt.Errorf("%w: %s: %v", ErrBadTransferCoding, codings[i], err)
		}
		req.Body = a.Copy(out)
	}
	return nil
}
