package core

import (
	"errors"
	"time"
)

// HTTP header constants
const (
	HeaderContentType = "Content-Type"
	HeaderAllow       = "Allow"
)

// Defaults applied by NewEngine
const (
	DefaultIdleTimeout  = 60 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Bounds on draining a connection closed after a protocol error
const (
	lingerTimeout = 500 * time.Millisecond
	lingerLimit   = 256 << 10
)

// Error definitions
var (
	ErrEngineRunning      = errors.New("engine already serving")
	ErrServerClosed       = errors.New("engine closed")
	ErrIncompleteResponse = errors.New("handler returned without a complete response")
	ErrHandlerPanic       = errors.New("handler panic")
)

// continueResponse is the interim answer to Expect: 100-continue
const continueResponse = "HTTP/1.1 100 \r\n\r\n"
