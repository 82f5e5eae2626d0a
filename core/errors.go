package core

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/searchktools/h1server/core/http"
)

// ErrorHandlers answer the requests the engine could not route or serve.
// The context carries StatusCode, Err and, for 405, Allow. Each handler must
// write a complete response; if it fails the connection is torn down.
type ErrorHandlers struct {
	NotFound       http.Handler // 404 and 405
	Internal       http.Handler // 500
	BadRequest     http.Handler // 400 and 414
	NotImplemented http.Handler // 501
}

// DefaultErrorHandlers answers every failure with its status text
func DefaultErrorHandlers() ErrorHandlers {
	h := http.HandlerFunc(writeStatusText)
	return ErrorHandlers{
		NotFound:       h,
		Internal:       h,
		BadRequest:     h,
		NotImplemented: h,
	}
}

func (h *ErrorHandlers) merge(o ErrorHandlers) {
	if o.NotFound != nil {
		h.NotFound = o.NotFound
	}
	if o.Internal != nil {
		h.Internal = o.Internal
	}
	if o.BadRequest != nil {
		h.BadRequest = o.BadRequest
	}
	if o.NotImplemented != nil {
		h.NotImplemented = o.NotImplemented
	}
}

// forStatus picks the handler for code and whether the connection may
// persist afterwards
func (h *ErrorHandlers) forStatus(code int) (http.Handler, bool) {
	switch {
	case code == 404 || code == 405:
		return h.NotFound, true
	case code == 501:
		return h.NotImplemented, false
	case code >= 400 && code < 500:
		return h.BadRequest, false
	default:
		return h.Internal, false
	}
}

func writeStatusText(ctx http.Context) error {
	code := ctx.StatusCode()
	rw := ctx.Response()

	if err := rw.WriteStatus(code); err != nil {
		return err
	}
	if code == 405 {
		if err := rw.WriteHeader(HeaderAllow, ctx.Allow().String()); err != nil {
			return err
		}
	}
	if err := rw.WriteHeader(HeaderContentType, "text/plain; charset=utf-8"); err != nil {
		return err
	}
	return rw.WriteBody([]byte(http.StatusText(code)))
}

// classify maps a request read failure to a response status and a metric
// label. A zero status means the peer is gone and the connection closes
// without a response.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, http.ErrTargetTooLong):
		return 414, "uri_too_long"

	case errors.Is(err, http.ErrUnknownMethod),
		errors.Is(err, http.ErrUnsupportedTransferCoding):
		return 501, "not_implemented"

	case errors.Is(err, http.ErrMalformedLine),
		errors.Is(err, http.ErrMalformedHeader),
		errors.Is(err, http.ErrTooManyHeaders),
		errors.Is(err, http.ErrMissingHost),
		errors.Is(err, http.ErrInvalidHost),
		errors.Is(err, http.ErrBadTransferCoding),
		errors.Is(err, http.ErrBadContentLength),
		errors.Is(err, http.ErrMalformedChunk):
		return 400, "bad_request"

	case errors.Is(err, http.ErrBodyTooLarge):
		return 400, "body_too_large"
	}
	return 0, ""
}

// quietClose reports read failures that are a normal end of a connection
func quietClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}
