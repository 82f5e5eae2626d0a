package http

import (
	"errors"
	"io"
	"strconv"
)

var errChunkedClosed = errors.New("chunked writer closed")

// ChunkedWriter frames each Write as one chunk. Close writes the last
// chunk and an empty trailer section.
type ChunkedWriter struct {
	w      io.Writer
	head   [20]byte
	closed bool
}

// NewChunkedWriter creates a chunked framer over w
func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

// Write emits p as <hex-size>CRLF<p>CRLF. Empty writes emit nothing since
// a zero-size chunk would end the body.
func (c *ChunkedWriter) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errChunkedClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	head := strconv.AppendInt(c.head[:0], int64(len(p)), 16)
	head = append(head, '\r', '\n')
	if _, err := c.w.Write(head); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := c.w.Write(crlf); err != nil {
		return n, err
	}
	return n, nil
}

// Close terminates the body with 0CRLF CRLF
func (c *ChunkedWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_, err := c.w.Write(lastChunk)
	return err
}

var (
	crlf      = []byte("\r\n")
	lastChunk = []byte("0\r\n\r\n")
)
