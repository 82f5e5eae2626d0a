package http

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/searchktools/h1server/core/codec"
)

// BuildCodingStack orders the response transfer codings. Only gzip and
// deflate may precede the mandatory trailing chunked. When the client sent
// TE, codings it did not list (or listed with q=0) are dropped.
func BuildCodingStack(candidates []string, te string, hasTE bool) ([]string, error) {
	stack := make([]string, 0, len(candidates)+1)

	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != codec.Gzip && c != codec.Deflate {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCoding, c)
		}
		if slices.Contains(stack, c) {
			continue
		}
		if hasTE && !teAccepts(te, c) {
			continue
		}
		stack = append(stack, c)
	}

	return append(stack, codingChunked), nil
}

// teAccepts reports whether a TE field value lists coding with a non-zero
// weight.
func teAccepts(te, coding string) bool {
	for _, elem := range strings.Split(te, ",") {
		params := strings.Split(elem, ";")
		name := strings.ToLower(strings.Trim(params[0], " \t"))
		if name != coding {
			continue
		}

		for _, p := range params[1:] {
			k, v, ok := strings.Cut(strings.Trim(p, " \t"), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
				continue
			}
			q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || q <= 0 {
				return false
			}
		}
		return true
	}
	return false
}
