package http

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/h1server/core/pools"
	"github.com/searchktools/h1server/core/stream"
)

// Limits bounds the request head
type Limits struct {
	RequestLine int // bytes, excluding CRLF
	HeaderLine  int // bytes, excluding CRLF
	Headers     int // field count
	Body        int64
}

// DefaultLimits returns the stock request limits
func DefaultLimits() Limits {
	return Limits{
		RequestLine: 8000,
		HeaderLine:  8000,
		Headers:     100,
		Body:        8 << 20,
	}
}

// Empty lines tolerated ahead of a request line
const maxLeadingEmptyLines = 4

// ReadRequestHead reads the request line and the header section into req.
// Scratch space comes from the arena.
func ReadRequestHead(s *stream.Stream, a *pools.Arena, lim Limits, req *Request) error {
	buf := a.Buffer()

	var line []byte
	for i := 0; ; i++ {
		s.SetLimit(lim.RequestLine + 2)
		var err error
		line, err = s.ReadLine(buf.B[:0])
		s.SetLimit(-1)
		buf.B = line[:0]

		if err != nil {
			switch {
			case errors.Is(err, stream.ErrLimitExceeded):
				return ErrTargetTooLong
			case errors.Is(err, stream.ErrMissingCRLF):
				return fmt.Errorf("%w: %v", ErrMalformedLine, err)
			}
			return err
		}
		if len(line) > 0 {
			break
		}
		if i == maxLeadingEmptyLines {
			return fmt.Errorf("%w: too many empty lines", ErrMalformedLine)
		}
	}

	rl, err := ParseRequestLine(line)
	if err != nil {
		return err
	}
	req.RequestLine = rl

	if err := readFields(s, buf, lim, req.Header); err != nil {
		return err
	}

	return checkHost(req)
}

// ParseRequestLine parses METHOD SP target SP HTTP/d.d
func ParseRequestLine(line []byte) (RequestLine, error) {
	var rl RequestLine

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return rl, fmt.Errorf("%w: missing method", ErrMalformedLine)
	}

	token := line[:sp1]
	m, ok := ParseMethod(token)
	if !ok {
		if httpguts.ValidHeaderFieldName(string(token)) {
			return rl, fmt.Errorf("%w: %q", ErrUnknownMethod, token)
		}
		return rl, fmt.Errorf("%w: invalid method token", ErrMalformedLine)
	}
	rl.Method = m

	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return rl, fmt.Errorf("%w: missing target", ErrMalformedLine)
	}

	v, ok := parseVersion(rest[sp2+1:])
	if !ok {
		return rl, fmt.Errorf("%w: bad version %q", ErrMalformedLine, rest[sp2+1:])
	}
	if v.Major != 1 {
		return rl, fmt.Errorf("%w: unsupported version %s", ErrMalformedLine, v)
	}
	rl.Version = v

	t, err := ParseTarget(string(rest[:sp2]))
	if err != nil {
		return rl, err
	}
	if t.Asterisk && m != MethodOptions {
		return rl, fmt.Errorf("%w: asterisk target requires OPTIONS", ErrMalformedLine)
	}
	rl.Target = t

	return rl, nil
}

// readFields parses field lines up to and including the empty line that
// ends the section. Request headers and chunked trailers share it.
func readFields(s *stream.Stream, buf *bytebufferpool.ByteBuffer, lim Limits, h Header) error {
	for n := 0; ; n++ {
		s.SetLimit(lim.HeaderLine + 2)
		line, err := s.ReadLine(buf.B[:0])
		s.SetLimit(-1)
		buf.B = line[:0]

		if err != nil {
			switch {
			case errors.Is(err, stream.ErrLimitExceeded):
				return fmt.Errorf("%w: field line too long", ErrMalformedHeader)
			case errors.Is(err, stream.ErrMissingCRLF):
				return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
			}
			return err
		}

		if len(line) == 0 {
			return nil
		}
		if n >= lim.Headers {
			return ErrTooManyHeaders
		}

		if err := parseField(line, h); err != nil {
			return err
		}
	}
}

func parseField(line []byte, h Header) error {
	if line[0] == ' ' || line[0] == '\t' {
		return fmt.Errorf("%w: obsolete line folding", ErrMalformedHeader)
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return fmt.Errorf("%w: missing colon", ErrMalformedHeader)
	}

	name := string(line[:colon])
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("%w: invalid name %q", ErrMalformedHeader, name)
	}

	value := strings.Trim(string(line[colon+1:]), " \t")
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("%w: invalid value for %s", ErrMalformedHeader, name)
	}

	if strings.EqualFold(name, "host") && h.Has("host") {
		return fmt.Errorf("%w: duplicate host", ErrInvalidHost)
	}

	h.Add(name, value)
	return nil
}

func checkHost(req *Request) error {
	host, ok := req.Header["host"]
	if !ok {
		if req.Version.AtLeast(1, 1) {
			return ErrMissingHost
		}
		return nil
	}
	if !httpguts.ValidHostHeader(host) {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}
