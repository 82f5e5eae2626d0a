package http

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		line     string
		method   Method
		segments []string
		query    string
		version  Version
		wantErr  error
	}{
		{"GET / HTTP/1.1", MethodGet, nil, "", HTTP11, nil},
		{"POST /api/users?id=1 HTTP/1.0", MethodPost, []string{"api", "users"}, "id=1", HTTP10, nil},
		{"GET /a%20b/c/ HTTP/1.1", MethodGet, []string{"a b", "c", ""}, "", HTTP11, nil},
		{"OPTIONS * HTTP/1.1", MethodOptions, nil, "", HTTP11, nil},
		{"GET * HTTP/1.1", 0, nil, "", Version{}, ErrMalformedLine},
		{"PATCH / HTTP/1.1", 0, nil, "", Version{}, ErrUnknownMethod},
		{"get / HTTP/1.1", 0, nil, "", Version{}, ErrUnknownMethod},
		{"G(T / HTTP/1.1", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET / HTTP/1.1 ", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET  / HTTP/1.1", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET / HTTP/11", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET / HTTX/1.1", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET / HTTP/2.0", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET relative HTTP/1.1", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET http://h/ HTTP/1.1", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET /bad%zz HTTP/1.1", 0, nil, "", Version{}, ErrMalformedLine},
		{"GET", 0, nil, "", Version{}, ErrMalformedLine},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			rl, err := ParseRequestLine([]byte(tt.line))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if rl.Method != tt.method {
				t.Errorf("Expected method %v, got %v", tt.method, rl.Method)
			}
			if rl.Version != tt.version {
				t.Errorf("Expected version %v, got %v", tt.version, rl.Version)
			}
			if strings.Join(rl.Target.Segments, "|") != strings.Join(tt.segments, "|") ||
				len(rl.Target.Segments) != len(tt.segments) {
				t.Errorf("Expected segments %q, got %q", tt.segments, rl.Target.Segments)
			}
			if rl.Target.Query != tt.query {
				t.Errorf("Expected query %q, got %q", tt.query, rl.Target.Query)
			}
		})
	}
}

func TestReadRequestHead(t *testing.T) {
	req, err := readRequest("\r\nGET /x HTTP/1.1\r\nHost: example.com\r\nAccept:text/html \r\nX-Multi: a\r\nx-multi: b\r\n\r\n", DefaultLimits())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if req.Header.Get("Host") != "example.com" {
		t.Errorf("Expected host example.com, got %q", req.Header.Get("Host"))
	}
	if req.Header.Get("accept") != "text/html" {
		t.Errorf("Expected trimmed accept, got %q", req.Header.Get("accept"))
	}
	if req.Header.Get("X-Multi") != "a, b" {
		t.Errorf("Expected joined values, got %q", req.Header.Get("X-Multi"))
	}
	if req.Host() != "example.com" {
		t.Errorf("Expected Host() example.com, got %q", req.Host())
	}
}

func TestReadRequestHeadErrors(t *testing.T) {
	lim := DefaultLimits()
	lim.Headers = 3

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"target too long", "GET /" + strings.Repeat("a", 8000) + " HTTP/1.1\r\n\r\n", ErrTargetTooLong},
		{"bare LF request line", "GET / HTTP/1.1\nHost: h\r\n\r\n", ErrMalformedLine},
		{"bare LF header", "GET / HTTP/1.1\r\nHost: h\n\r\n", ErrMalformedHeader},
		{"space before colon", "GET / HTTP/1.1\r\nHost : h\r\n\r\n", ErrMalformedHeader},
		{"no colon", "GET / HTTP/1.1\r\nHost h\r\n\r\n", ErrMalformedHeader},
		{"empty name", "GET / HTTP/1.1\r\n: h\r\n\r\n", ErrMalformedHeader},
		{"obs fold", "GET / HTTP/1.1\r\nHost: h\r\n continued\r\n\r\n", ErrMalformedHeader},
		{"control in value", "GET / HTTP/1.1\r\nHost: h\r\nX: a\x01b\r\n\r\n", ErrMalformedHeader},
		{"too many", "GET / HTTP/1.1\r\nHost: h\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n", ErrTooManyHeaders},
		{"missing host", "GET / HTTP/1.1\r\n\r\n", ErrMissingHost},
		{"duplicate host", "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n", ErrInvalidHost},
		{"invalid host", "GET / HTTP/1.1\r\nHost: a b\r\n\r\n", ErrInvalidHost},
		{"unknown method", "BREW /pot HTTP/1.1\r\nHost: h\r\n\r\n", ErrUnknownMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readRequest(tt.input, lim)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequestLineAtLimit(t *testing.T) {
	// "GET " + target + " HTTP/1.1" is exactly 8000 bytes
	target := "/" + strings.Repeat("a", 8000-len("GET ")-len(" HTTP/1.1")-1)
	input := "GET " + target + " HTTP/1.1\r\nHost: h\r\n\r\n"

	if _, err := readRequest(input, DefaultLimits()); err != nil {
		t.Fatalf("Expected a request line of exactly the limit to parse, got %v", err)
	}
}

func TestHTTP10WithoutHost(t *testing.T) {
	req, err := readRequest("GET / HTTP/1.0\r\n\r\n", DefaultLimits())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.Version != HTTP10 {
		t.Errorf("Expected HTTP/1.0, got %v", req.Version)
	}
}

func TestMethodNames(t *testing.T) {
	m := MethodPost | MethodGet | MethodHead
	if got := m.String(); got != "GET, HEAD, POST" {
		t.Errorf("Expected canonical order, got %q", got)
	}
	if !MethodAny.Has(MethodTrace) {
		t.Error("MethodAny should include TRACE")
	}
	if MethodGet.Has(MethodNone) {
		t.Error("Has(MethodNone) should be false")
	}
	if len(MethodAny.Names()) != 8 {
		t.Errorf("Expected 8 methods, got %d", len(MethodAny.Names()))
	}
}

func BenchmarkReadRequestHead(b *testing.B) {
	input := "GET /api/users/123?x=1 HTTP/1.1\r\nHost: example.com\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n"
	lim := DefaultLimits()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		readRequest(input, lim)
	}
}
