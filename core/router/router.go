package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/searchktools/h1server/core/http"
)

var (
	ErrInvalidPattern   = errors.New("router: invalid pattern")
	ErrNoMethods        = errors.New("router: route without methods")
	ErrNilHandler       = errors.New("router: nil handler")
	ErrNotFound         = errors.New("router: no route")
	ErrMethodNotAllowed = errors.New("router: method not allowed")
)

// WildcardParam is the parameter name holding the segments a trailing
// wildcard consumed
const WildcardParam = "*"

type segmentType uint8

const (
	literal  segmentType = iota // default
	capture                     // {name}
	wildcard                    // trailing *
)

type segment struct {
	typ   segmentType
	value string // literal text or capture name
}

// Route is one registered handler. Routes are immutable once added.
type Route struct {
	Methods http.Method
	Host    string
	Pattern string
	Handler http.Handler

	asterisk bool
	segments []segment
}

// Outcome classifies a lookup
type Outcome uint8

const (
	NotFound Outcome = iota
	Found
	MethodNotAllowed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case MethodNotAllowed:
		return "method not allowed"
	default:
		return "not found"
	}
}

// Param is one captured path segment
type Param struct {
	Key   string
	Value string
}

// Match is the result of a lookup. Rest holds the segments left after the
// matched prefix, which is what a mounted handler sees as its path.
type Match struct {
	Outcome Outcome
	Route   *Route
	Params  []Param
	Rest    []string
	Allow   http.Method
}

// Bind exposes the captures and the remaining path to the handler
func (m *Match) Bind(ctx http.Context) {
	for _, p := range m.Params {
		ctx.SetParam(p.Key, p.Value)
	}
	ctx.SetSegments(m.Rest)
}

// Router matches requests against routes in registration order; the first
// route whose host and path match wins.
type Router struct {
	routes []*Route
}

// New creates an empty router
func New() *Router {
	return &Router{routes: make([]*Route, 0, 16)}
}

// Routes returns the registered routes in order
func (r *Router) Routes() []*Route {
	return r.routes
}

// Add registers handler for methods on host and pattern. GET also permits
// HEAD. The pattern "*" only serves OPTIONS *.
func (r *Router) Add(methods http.Method, host, pattern string, handler http.Handler) error {
	if methods == http.MethodNone {
		return ErrNoMethods
	}
	if handler == nil {
		return ErrNilHandler
	}
	if methods.Has(http.MethodGet) {
		methods |= http.MethodHead
	}

	route := &Route{
		Methods: methods,
		Host:    host,
		Pattern: pattern,
		Handler: handler,
	}

	if pattern == "*" {
		if methods != http.MethodOptions {
			return fmt.Errorf("%w: %q only accepts OPTIONS", ErrInvalidPattern, pattern)
		}
		route.asterisk = true
	} else {
		segs, err := parsePattern(pattern)
		if err != nil {
			return err
		}
		route.segments = segs
	}

	r.routes = append(r.routes, route)
	return nil
}

func parsePattern(pattern string) ([]segment, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("%w: %q must begin with '/'", ErrInvalidPattern, pattern)
	}
	if pattern == "/" {
		return nil, nil
	}

	parts := strings.Split(pattern[1:], "/")
	segs := make([]segment, 0, len(parts))
	names := make(map[string]struct{})

	for i, p := range parts {
		switch {
		case p == "*":
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w: %q wildcard must be the last segment", ErrInvalidPattern, pattern)
			}
			segs = append(segs, segment{typ: wildcard})

		case strings.HasPrefix(p, "{"):
			name, ok := strings.CutSuffix(p[1:], "}")
			if !ok || name == "" || strings.ContainsAny(name, "{}*") || name == WildcardParam {
				return nil, fmt.Errorf("%w: %q bad capture %q", ErrInvalidPattern, pattern, p)
			}
			if _, dup := names[name]; dup {
				return nil, fmt.Errorf("%w: %q repeats capture %q", ErrInvalidPattern, pattern, name)
			}
			names[name] = struct{}{}
			segs = append(segs, segment{typ: capture, value: name})

		default:
			if strings.ContainsAny(p, "{}*") {
				return nil, fmt.Errorf("%w: %q bad segment %q", ErrInvalidPattern, pattern, p)
			}
			segs = append(segs, segment{value: p})
		}
	}
	return segs, nil
}

// Match finds the route for a request. Asterisk-form requests only consider
// the "*" route and never touch path patterns.
func (r *Router) Match(method http.Method, host string, segments []string, asterisk bool) Match {
	var allow http.Method

	for _, route := range r.routes {
		if route.asterisk != asterisk || !matchHost(route.Host, host) {
			continue
		}

		var params []Param
		rest := segments[len(segments):]
		if !asterisk {
			var ok bool
			params, rest, ok = route.matchPath(segments)
			if !ok {
				continue
			}
		}

		if !route.Methods.Has(method) {
			allow |= route.Methods
			continue
		}

		return Match{Outcome: Found, Route: route, Params: params, Rest: rest}
	}

	if allow != http.MethodNone {
		return Match{Outcome: MethodNotAllowed, Allow: allow}
	}
	return Match{Outcome: NotFound}
}

func (route *Route) matchPath(segments []string) ([]Param, []string, bool) {
	var params []Param

	for i, seg := range route.segments {
		if seg.typ == wildcard {
			rest := segments[i:]
			params = append(params, Param{Key: WildcardParam, Value: strings.Join(rest, "/")})
			return params, rest, true
		}
		if i >= len(segments) {
			return nil, nil, false
		}

		switch seg.typ {
		case literal:
			if segments[i] != seg.value {
				return nil, nil, false
			}
		case capture:
			params = append(params, Param{Key: seg.value, Value: segments[i]})
		}
	}

	if len(segments) != len(route.segments) {
		return nil, nil, false
	}
	return params, segments[len(segments):], true
}

// matchHost applies a host pattern: empty or "*" matches anything,
// "*.example.com" matches any sub-domain, anything else is exact
func matchHost(pattern, host string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
		return len(host) > len(suffix) && strings.EqualFold(host[len(host)-len(suffix):], suffix)
	}
	return strings.EqualFold(pattern, host)
}

// Handle dispatches a request against the segments still visible in ctx,
// so a router mounted under a prefix only sees what follows it. Misses are
// returned as *http.StatusError.
func (r *Router) Handle(ctx http.Context) error {
	m := r.Match(ctx.Method(), ctx.Host(), ctx.Segments(), ctx.Asterisk())

	switch m.Outcome {
	case Found:
		m.Bind(ctx)
		return m.Route.Handler.Handle(ctx)
	case MethodNotAllowed:
		return &http.StatusError{Code: 405, Allow: m.Allow, Err: ErrMethodNotAllowed}
	default:
		return &http.StatusError{Code: 404, Err: ErrNotFound}
	}
}
