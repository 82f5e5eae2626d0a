// Package codec compresses and decompresses whole buffers for the gzip and
// deflate content codings.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var (
	ErrUnsupported = errors.New("unsupported coding")
	ErrTooLarge    = errors.New("decoded data exceeds limit")
)

// Coding names
const (
	Gzip    = "gzip"
	XGzip   = "x-gzip"
	Deflate = "deflate"
)

// Supported reports whether name is a coding this package implements
func Supported(name string) bool {
	switch name {
	case Gzip, XGzip, Deflate:
		return true
	}
	return false
}

// Compress encodes src with the named coding. Deflate is the zlib format
// HTTP uses under that name.
func Compress(name string, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser

	switch name {
	case Gzip, XGzip:
		w = gzip.NewWriter(&buf)
	case Deflate:
		w = zlib.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}

	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes src with the named coding. A positive max bounds the
// decoded size.
func Decompress(name string, src []byte, max int64) ([]byte, error) {
	var r io.ReadCloser
	var err error

	switch name {
	case Gzip, XGzip:
		r, err = gzip.NewReader(bytes.NewReader(src))
	case Deflate:
		r, err = zlib.NewReader(bytes.NewReader(src))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var in io.Reader = r
	if max > 0 {
		in = io.LimitReader(r, max+1)
	}

	out, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	if max > 0 && int64(len(out)) > max {
		return nil, ErrTooLarge
	}
	return out, nil
}
