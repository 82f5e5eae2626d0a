package fileserver

import (
	"container/list"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFileSize is the largest file served from memory; bigger files
// are streamed from disk on every request
const DefaultMaxFileSize = 1 << 20

// Entry is a file held in memory
type Entry struct {
	Data        []byte
	ContentType string
	ModTime     time.Time
	ETag        string

	path string
	size int64
	elem *list.Element
}

// fresh reports whether info still describes the file e was read from
func (e *Entry) fresh(info os.FileInfo) bool {
	return e.size == info.Size() && e.ModTime.Equal(info.ModTime())
}

// FileCache keeps up to maxFiles small files in least recently used order.
// Callers pass a fresh stat on every lookup so edits on disk are picked up.
type FileCache struct {
	maxFiles int
	maxSize  int64

	mu    sync.Mutex
	byKey map[string]*Entry
	order *list.List // front is most recent
	bytes int64
}

// NewFileCache creates a cache for maxFiles files of at most maxFileSize
// bytes each. With maxFiles <= 0 nothing is kept, but files up to
// maxFileSize are still loaded whole by Get.
func NewFileCache(maxFiles int, maxFileSize int64) *FileCache {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &FileCache{
		maxFiles: maxFiles,
		maxSize:  maxFileSize,
		byKey:    make(map[string]*Entry),
		order:    list.New(),
	}
}

// Fits reports whether a file of size bytes is served from memory, with
// a known length, rather than streamed from disk
func (fc *FileCache) Fits(size int64) bool {
	return size <= fc.maxSize
}

// Get returns the entry for path, reading the file when it is missing or
// stale
func (fc *FileCache) Get(path string, info os.FileInfo) (*Entry, error) {
	if e := fc.lookup(path, info); e != nil {
		return e, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		Data:        data,
		ContentType: ContentType(path, data),
		ModTime:     info.ModTime(),
		ETag:        ETag(data),
		path:        path,
		size:        info.Size(),
	}
	if fc.maxFiles > 0 {
		fc.insert(e)
	}
	return e, nil
}

func (fc *FileCache) lookup(path string, info os.FileInfo) *Entry {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	e, ok := fc.byKey[path]
	if !ok {
		return nil
	}
	if !e.fresh(info) {
		fc.drop(e)
		return nil
	}
	fc.order.MoveToFront(e.elem)
	return e
}

// insert adds e, replacing a concurrent read of the same file, and evicts
// from the back past maxFiles
func (fc *FileCache) insert(e *Entry) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if old, ok := fc.byKey[e.path]; ok {
		fc.drop(old)
	}
	e.elem = fc.order.PushFront(e)
	fc.byKey[e.path] = e
	fc.bytes += int64(len(e.Data))

	for fc.order.Len() > fc.maxFiles {
		fc.drop(fc.order.Back().Value.(*Entry))
	}
}

func (fc *FileCache) drop(e *Entry) {
	fc.order.Remove(e.elem)
	delete(fc.byKey, e.path)
	fc.bytes -= int64(len(e.Data))
}

// Len returns the number of cached files
func (fc *FileCache) Len() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.order.Len()
}

// Bytes returns the total size of cached file contents
func (fc *FileCache) Bytes() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.bytes
}

// Clear drops every cached file
func (fc *FileCache) Clear() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	clear(fc.byKey)
	fc.order.Init()
	fc.bytes = 0
}

// ETag returns a strong validator for data
func ETag(data []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`
}

// statETag returns a weak validator for a file that is not read into memory
func statETag(info os.FileInfo) string {
	var b [16]byte
	h := xxhash.New()
	h.Write(strconv.AppendInt(b[:0], info.Size(), 16))
	h.Write(strconv.AppendInt(b[:0], info.ModTime().UnixNano(), 16))
	return `W/"` + strconv.FormatUint(h.Sum64(), 16) + `"`
}

// webTypes pins the types browsers care about so results do not depend on
// the host's mime.types
var webTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".mjs":  "text/javascript; charset=utf-8",
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".wasm": "application/wasm",
}

// ContentType picks a type by extension, then by sniffing data. Without data
// an unknown extension is application/octet-stream.
func ContentType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := webTypes[ext]; ok {
		return ct
	}
	if ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	if data == nil {
		return "application/octet-stream"
	}
	return mimetype.Detect(data).String()
}
