package http

import (
	"errors"
	"fmt"
)

// Parse and framing failures. The connection maps each to a status code.
var (
	ErrUnknownMethod   = errors.New("unknown method")
	ErrTargetTooLong   = errors.New("request target too long")
	ErrMalformedLine   = errors.New("malformed request line")
	ErrMalformedHeader = errors.New("malformed header field")
	ErrTooManyHeaders  = errors.New("too many header fields")
	ErrMissingHost     = errors.New("missing host header")
	ErrInvalidHost     = errors.New("invalid host header")

	ErrBadTransferCoding         = errors.New("invalid transfer-encoding")
	ErrUnsupportedTransferCoding = errors.New("unsupported transfer coding")
	ErrBadContentLength          = errors.New("invalid content-length")
	ErrBodyTooLarge              = errors.New("body exceeds limit")
	ErrMalformedChunk            = errors.New("malformed chunk")
)

// Response writer misuse
var (
	ErrStatusSealed    = errors.New("status line already written")
	ErrStatusNotSealed = errors.New("status line not written")
	ErrHeadersSealed   = errors.New("headers already sealed")
	ErrInvalidStatus   = errors.New("invalid status code")
	ErrInvalidHeader   = errors.New("invalid response header")
	ErrFramingHeader   = errors.New("framing header is managed by the response writer")
	ErrInvalidCoding   = errors.New("coding not permitted in a response stack")
)

// StatusError asks the connection to answer with a routing status instead
// of treating the failure as internal. Allow is reported for 405.
type StatusError struct {
	Code  int
	Allow Method
	Err   error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("status %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
