package http

import (
	"errors"
	"slices"
	"testing"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		raw      string
		segments []string
		query    string
		hasQuery bool
		asterisk bool
	}{
		{raw: "/"},
		{raw: "*", asterisk: true},
		{raw: "/a/b", segments: []string{"a", "b"}},
		{raw: "/a/", segments: []string{"a", ""}},
		{raw: "/a%2Fb/c%20d", segments: []string{"a/b", "c d"}},
		{raw: "/search?q=go&page=2", segments: []string{"search"}, query: "q=go&page=2", hasQuery: true},
		{raw: "/?", query: "", hasQuery: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Asterisk != tt.asterisk {
				t.Errorf("Asterisk = %v", got.Asterisk)
			}
			if !slices.Equal(got.Segments, tt.segments) {
				t.Errorf("Expected segments %q, got %q", tt.segments, got.Segments)
			}
			if got.Query != tt.query || got.HasQuery != tt.hasQuery {
				t.Errorf("Expected query %q/%v, got %q/%v", tt.query, tt.hasQuery, got.Query, got.HasQuery)
			}
		})
	}
}

func TestParseTargetErrors(t *testing.T) {
	for _, raw := range []string{
		"",
		"a/b",
		"http://example.com/",
		"/a b",
		"/a#frag",
		"/bad%zz",
		"/\x7f",
	} {
		if _, err := ParseTarget(raw); !errors.Is(err, ErrMalformedLine) {
			t.Errorf("ParseTarget(%q): expected ErrMalformedLine, got %v", raw, err)
		}
	}
}

func TestJoinSegments(t *testing.T) {
	tests := []struct {
		segments []string
		want     string
	}{
		{nil, "/"},
		{[]string{"a"}, "/a"},
		{[]string{"a", ""}, "/a/"},
		{[]string{"users", "42"}, "/users/42"},
	}
	for _, tt := range tests {
		if got := JoinSegments(tt.segments); got != tt.want {
			t.Errorf("JoinSegments(%q) = %q, want %q", tt.segments, got, tt.want)
		}
	}
}
