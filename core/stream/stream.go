// Package stream implements the buffered octet stream a connection reads
// requests from and writes responses to.
package stream

import (
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/searchktools/h1server/core/pools"
)

var (
	ErrLimitExceeded = errors.New("read limit exceeded")
	ErrMissingCRLF   = errors.New("line not terminated by CRLF")
	ErrReleased      = errors.New("stream released")
)

// Default buffer sizes
const (
	DefaultReadSize  = 4096
	DefaultWriteSize = 4096
)

const maxEmptyReads = 100

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Stream is a buffered reader/writer over a connection. Its buffers come
// from a BytePool and go back exactly once, on Release.
type Stream struct {
	rw   io.ReadWriter
	pool *pools.BytePool

	rbuf []byte
	r, w int

	// bytes the following reads may still consume, -1 when unlimited
	limit int

	wbuf []byte
	wn   int
	werr error

	// bounds every write to the connection, zero for none
	wtimeout time.Duration
}

// New creates a stream over rw. A nil pool allocates plain buffers.
func New(rw io.ReadWriter, pool *pools.BytePool, readSize, writeSize int) *Stream {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	if writeSize <= 0 {
		writeSize = DefaultWriteSize
	}

	s := &Stream{rw: rw, pool: pool, limit: -1}
	if pool != nil {
		s.rbuf = pool.Get(readSize)
		s.wbuf = pool.Get(writeSize)
	} else {
		s.rbuf = make([]byte, readSize)
		s.wbuf = make([]byte, writeSize)
	}
	return s
}

// SetLimit caps the number of bytes the following reads may consume.
// A negative n removes the cap.
func (s *Stream) SetLimit(n int) {
	if n < 0 {
		n = -1
	}
	s.limit = n
}

// Buffered returns the number of unread bytes held in the read buffer
func (s *Stream) Buffered() int {
	return s.w - s.r
}

// SetReadDeadline forwards to the underlying connection when it supports
// deadlines.
func (s *Stream) SetReadDeadline(t time.Time) error {
	if d, ok := s.rw.(deadliner); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

// SetWriteTimeout bounds each write to the connection, including the ones
// a long streamed response makes through Flush. Zero disables it.
func (s *Stream) SetWriteTimeout(d time.Duration) {
	s.wtimeout = d
}

func (s *Stream) writeConn(p []byte) (int, error) {
	if s.wtimeout > 0 {
		if d, ok := s.rw.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(s.wtimeout)); err != nil {
				return 0, err
			}
		}
	}
	return s.rw.Write(p)
}

func (s *Stream) fill() error {
	if s.rbuf == nil {
		return ErrReleased
	}

	if s.r > 0 {
		copy(s.rbuf, s.rbuf[s.r:s.w])
		s.w -= s.r
		s.r = 0
	}

	for i := 0; i < maxEmptyReads; i++ {
		n, err := s.rw.Read(s.rbuf[s.w:])
		s.w += n
		if n > 0 {
			return nil
		}
		if err != nil {
			return err
		}
	}

	return io.ErrNoProgress
}

func (s *Stream) consume(n int) {
	s.r += n
	if s.limit >= 0 {
		s.limit -= n
	}
}

// available returns the buffered bytes the limit allows reading
func (s *Stream) available() []byte {
	avail := s.rbuf[s.r:s.w]
	if s.limit >= 0 && len(avail) > s.limit {
		avail = avail[:s.limit]
	}
	return avail
}

// Peek returns the next byte without consuming it
func (s *Stream) Peek() (byte, error) {
	if s.r == s.w {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	return s.rbuf[s.r], nil
}

// PeekTimeout is Peek bounded by timeout. A zero timeout waits forever.
func (s *Stream) PeekTimeout(timeout time.Duration) (byte, error) {
	if s.r < s.w {
		return s.rbuf[s.r], nil
	}

	if timeout > 0 {
		if err := s.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
		defer s.SetReadDeadline(time.Time{})
	}

	return s.Peek()
}

// Pop consumes and returns the next byte
func (s *Stream) Pop() (byte, error) {
	if s.limit == 0 {
		return 0, ErrLimitExceeded
	}
	c, err := s.Peek()
	if err != nil {
		return 0, err
	}
	s.consume(1)
	return c, nil
}

// ReadLine appends the next line to dst and returns it without its CRLF.
// A line ending in a bare LF fails with ErrMissingCRLF; a line running past
// the read limit fails with ErrLimitExceeded.
func (s *Stream) ReadLine(dst []byte) ([]byte, error) {
	start := len(dst)

	for {
		if s.limit == 0 {
			return dst, ErrLimitExceeded
		}
		if s.r == s.w {
			if err := s.fill(); err != nil {
				if err == io.EOF && len(dst) > start {
					err = io.ErrUnexpectedEOF
				}
				return dst, err
			}
		}

		avail := s.available()
		if i := bytes.IndexByte(avail, '\n'); i >= 0 {
			dst = append(dst, avail[:i+1]...)
			s.consume(i + 1)

			n := len(dst)
			if n-start < 2 || dst[n-2] != '\r' {
				return dst[:n-1], ErrMissingCRLF
			}
			return dst[:n-2], nil
		}

		dst = append(dst, avail...)
		s.consume(len(avail))
	}
}

// ReadFull fills p entirely
func (s *Stream) ReadFull(p []byte) error {
	for len(p) > 0 {
		if s.limit == 0 {
			return ErrLimitExceeded
		}
		if s.r == s.w {
			if err := s.fill(); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return err
			}
		}

		n := copy(p, s.available())
		s.consume(n)
		p = p[n:]
	}
	return nil
}

// Write buffers p, flushing to the connection as the buffer fills
func (s *Stream) Write(p []byte) (int, error) {
	if s.wbuf == nil {
		return 0, ErrReleased
	}
	if s.werr != nil {
		return 0, s.werr
	}

	written := 0
	for len(p) > 0 {
		if s.wn == 0 && len(p) >= len(s.wbuf) {
			n, err := s.writeConn(p)
			written += n
			if err != nil {
				s.werr = err
				return written, err
			}
			return written, nil
		}

		n := copy(s.wbuf[s.wn:], p)
		s.wn += n
		written += n
		p = p[n:]

		if s.wn == len(s.wbuf) {
			if err := s.Flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// WriteString buffers str
func (s *Stream) WriteString(str string) (int, error) {
	if s.wbuf == nil {
		return 0, ErrReleased
	}
	if s.werr != nil {
		return 0, s.werr
	}

	written := 0
	for len(str) > 0 {
		n := copy(s.wbuf[s.wn:], str)
		s.wn += n
		written += n
		str = str[n:]

		if s.wn == len(s.wbuf) {
			if err := s.Flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush writes out everything buffered. A write error is sticky.
func (s *Stream) Flush() error {
	if s.werr != nil {
		return s.werr
	}
	if s.wbuf == nil {
		return ErrReleased
	}
	if s.wn == 0 {
		return nil
	}

	n, err := s.writeConn(s.wbuf[:s.wn])
	if err == nil && n < s.wn {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.werr = err
		return err
	}
	s.wn = 0
	return nil
}

// Release returns the buffers to the pool. Unflushed output is dropped.
// Calling Release more than once is a no-op.
func (s *Stream) Release() {
	if s.rbuf == nil {
		return
	}
	if s.pool != nil {
		s.pool.Put(s.rbuf)
		s.pool.Put(s.wbuf)
	}
	s.rbuf = nil
	s.wbuf = nil
	s.r, s.w, s.wn = 0, 0, 0
}
