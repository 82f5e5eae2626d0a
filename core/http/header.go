package http

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Header maps lower-cased field names to values. Repeated fields are
// joined with ", " as list-valued fields allow.
type Header map[string]string

// Add appends value to the field name
func (h Header) Add(name, value string) {
	name = strings.ToLower(name)
	if prev, ok := h[name]; ok {
		if prev == "" {
			h[name] = value
		} else if value != "" {
			h[name] = prev + ", " + value
		}
		return
	}
	h[name] = value
}

// Set replaces the field name
func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Get returns the field value, or "" when absent
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Has reports whether the field is present, even with an empty value
func (h Header) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// Del removes the field
func (h Header) Del(name string) {
	delete(h, strings.ToLower(name))
}

// Tokens splits a list-valued field into trimmed, lower-cased elements.
// Empty elements are dropped.
func (h Header) Tokens(name string) []string {
	v, ok := h[strings.ToLower(name)]
	if !ok {
		return nil
	}

	parts := strings.Split(v, ",")
	tokens := parts[:0]
	for _, p := range parts {
		p = strings.ToLower(strings.Trim(p, " \t"))
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// ContainsToken reports whether the list-valued field carries token,
// ignoring case.
func (h Header) ContainsToken(name, token string) bool {
	v, ok := h[strings.ToLower(name)]
	if !ok {
		return false
	}
	return httpguts.HeaderValuesContainsToken([]string{v}, token)
}
