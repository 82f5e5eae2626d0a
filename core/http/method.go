package http

import "strings"

// Method is a bit set of request methods. A single request carries exactly
// one bit; routes register any combination.
type Method uint16

const (
	MethodGet Method = 1 << iota
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace

	MethodNone Method = 0
	MethodAny         = MethodGet | MethodHead | MethodPost | MethodPut |
		MethodDelete | MethodConnect | MethodOptions | MethodTrace
)

// canonical order used for Allow and String
var methodNames = [...]struct {
	m    Method
	name string
}{
	{MethodGet, "GET"},
	{MethodHead, "HEAD"},
	{MethodPost, "POST"},
	{MethodPut, "PUT"},
	{MethodDelete, "DELETE"},
	{MethodConnect, "CONNECT"},
	{MethodOptions, "OPTIONS"},
	{MethodTrace, "TRACE"},
}

// ParseMethod looks up a method token. Matching is case-sensitive.
func ParseMethod(token []byte) (Method, bool) {
	switch string(token) {
	case "GET":
		return MethodGet, true
	case "HEAD":
		return MethodHead, true
	case "POST":
		return MethodPost, true
	case "PUT":
		return MethodPut, true
	case "DELETE":
		return MethodDelete, true
	case "CONNECT":
		return MethodConnect, true
	case "OPTIONS":
		return MethodOptions, true
	case "TRACE":
		return MethodTrace, true
	}
	return MethodNone, false
}

// Has reports whether every bit of other is set in m
func (m Method) Has(other Method) bool {
	return other != 0 && m&other == other
}

// Names lists the set methods in canonical order
func (m Method) Names() []string {
	names := make([]string, 0, 8)
	for _, mn := range methodNames {
		if m&mn.m != 0 {
			names = append(names, mn.name)
		}
	}
	return names
}

// String joins the set methods with ", ", the form used by Allow
func (m Method) String() string {
	return strings.Join(m.Names(), ", ")
}
