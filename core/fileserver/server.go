// Package fileserver serves a directory tree below a wildcard route.
package fileserver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/searchktools/h1server/core/http"
)

// TimeFormat is the HTTP date layout used by Last-Modified
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// IndexFile is served for directory requests
const IndexFile = "index.html"

var (
	ErrBadPath  = errors.New("fileserver: path escapes root")
	ErrNotFound = errors.New("fileserver: no such file")
)

// Server serves files below Root. Mounted on a wildcard route it resolves
// the segments left after the route prefix.
type Server struct {
	root  string
	cache *FileCache
}

// New creates a file server rooted at root. A nil cache keeps nothing in
// memory between requests; small files still get a Content-Length.
func New(root string, cache *FileCache) *Server {
	if cache == nil {
		cache = NewFileCache(0, 0)
	}
	return &Server{root: filepath.Clean(root), cache: cache}
}

// Handle serves GET and HEAD for the remaining path segments
func (s *Server) Handle(ctx http.Context) error {
	if m := ctx.Method(); m != http.MethodGet && m != http.MethodHead {
		return &http.StatusError{Code: 405, Allow: http.MethodGet | http.MethodHead}
	}

	name, err := s.resolve(ctx.Segments())
	if err != nil {
		return &http.StatusError{Code: 404, Err: err}
	}

	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		name = filepath.Join(name, IndexFile)
		info, err = os.Stat(name)
	}
	if err != nil || !info.Mode().IsRegular() {
		return &http.StatusError{Code: 404, Err: ErrNotFound}
	}

	if !s.cache.Fits(info.Size()) {
		return s.stream(ctx, name, info)
	}

	entry, err := s.cache.Get(name, info)
	if err != nil {
		return err
	}
	if notModified(ctx, entry.ETag, entry.ModTime) {
		return writeNotModified(ctx, entry.ETag, entry.ModTime)
	}

	rw := ctx.Response()
	if err := writeHead(rw, 200, entry.ContentType, entry.ETag, entry.ModTime); err != nil {
		return err
	}
	return rw.WriteBody(entry.Data)
}

// resolve maps segments onto a path below the root, refusing anything that
// could step outside it
func (s *Server) resolve(segments []string) (string, error) {
	for i, seg := range segments {
		if seg == "" && i == len(segments)-1 {
			continue
		}
		if seg == "" || seg == "." || seg == ".." ||
			strings.ContainsAny(seg, "/\\\x00") {
			return "", ErrBadPath
		}
	}
	return filepath.Join(s.root, filepath.Join(segments...)), nil
}

func (s *Server) stream(ctx http.Context, name string, info os.FileInfo) error {
	etag := statETag(info)
	if notModified(ctx, etag, info.ModTime()) {
		return writeNotModified(ctx, etag, info.ModTime())
	}

	f, err := os.Open(name)
	if err != nil {
		return &http.StatusError{Code: 404, Err: ErrNotFound}
	}
	defer f.Close()

	rw := ctx.Response()
	if err := writeHead(rw, 200, ContentType(name, nil), etag, info.ModTime()); err != nil {
		return err
	}
	return rw.Stream(f)
}

// notModified evaluates If-None-Match, falling back to If-Modified-Since
func notModified(ctx http.Context, etag string, mod time.Time) bool {
	if inm := ctx.Header("if-none-match"); inm != "" {
		for _, tag := range strings.Split(inm, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || strings.TrimPrefix(tag, "W/") == strings.TrimPrefix(etag, "W/") {
				return true
			}
		}
		return false
	}

	if ims := ctx.Header("if-modified-since"); ims != "" {
		t, err := time.Parse(TimeFormat, ims)
		return err == nil && !mod.Truncate(time.Second).After(t)
	}
	return false
}

func writeNotModified(ctx http.Context, etag string, mod time.Time) error {
	rw := ctx.Response()
	if err := rw.WriteStatus(304); err != nil {
		return err
	}
	if err := rw.WriteHeader("ETag", etag); err != nil {
		return err
	}
	if err := rw.WriteHeader("Last-Modified", mod.UTC().Format(TimeFormat)); err != nil {
		return err
	}
	return rw.SealHeaders()
}

func writeHead(rw *http.ResponseWriter, code int, contentType, etag string, mod time.Time) error {
	if err := rw.WriteStatus(code); err != nil {
		return err
	}
	if err := rw.WriteHeader("Content-Type", contentType); err != nil {
		return err
	}
	if err := rw.WriteHeader("ETag", etag); err != nil {
		return err
	}
	return rw.WriteHeader("Last-Modified", mod.UTC().Format(TimeFormat))
}
