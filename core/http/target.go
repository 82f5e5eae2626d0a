package http

import (
	"fmt"
	"net/url"
	"strings"
)

// Target is a parsed origin-form or asterisk-form request target
type Target struct {
	Asterisk bool
	// Path is the raw path as received, without the query
	Path string
	// Segments are the percent-decoded path segments. "/" has none and a
	// trailing slash yields a final empty segment.
	Segments []string
	Query    string
	HasQuery bool
}

// ParseTarget splits a raw request target into decoded path segments and
// an optional query string.
func ParseTarget(raw string) (Target, error) {
	if raw == "*" {
		return Target{Asterisk: true}, nil
	}
	if raw == "" || raw[0] != '/' {
		return Target{}, fmt.Errorf("%w: target must start with /", ErrMalformedLine)
	}

	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c <= ' ' || c >= 0x7f || c == '#' {
			return Target{}, fmt.Errorf("%w: invalid byte 0x%02x in target", ErrMalformedLine, c)
		}
	}

	var t Target
	path := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		path = raw[:i]
		t.Query = raw[i+1:]
		t.HasQuery = true
	}
	t.Path = path

	if path == "/" {
		return t, nil
	}

	parts := strings.Split(path[1:], "/")
	t.Segments = make([]string, len(parts))
	for i, p := range parts {
		seg, err := url.PathUnescape(p)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
		t.Segments[i] = seg
	}
	return t, nil
}

// JoinSegments renders segments back into an absolute path
func JoinSegments(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}
