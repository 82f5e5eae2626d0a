package pools

import "github.com/valyala/bytebufferpool"

// Arena hands out byte buffers that live for exactly one request cycle.
// Reset returns every buffer to the shared pool at once, so nothing handed
// out by an arena may be retained past the cycle that obtained it.
//
// An Arena belongs to a single connection and is not safe for concurrent use.
type Arena struct {
	pool *bytebufferpool.Pool
	bufs []*bytebufferpool.ByteBuffer
}

// NewArena creates an arena drawing from pool. A nil pool uses the
// package-level default.
func NewArena(pool *bytebufferpool.Pool) *Arena {
	if pool == nil {
		pool = &defaultPool
	}
	return &Arena{
		pool: pool,
		bufs: make([]*bytebufferpool.ByteBuffer, 0, 4),
	}
}

var defaultPool bytebufferpool.Pool

// Buffer returns an empty buffer owned by the current cycle
func (a *Arena) Buffer() *bytebufferpool.ByteBuffer {
	b := a.pool.Get()
	a.bufs = append(a.bufs, b)
	return b
}

// Copy stores a copy of p in the arena
func (a *Arena) Copy(p []byte) []byte {
	b := a.Buffer()
	b.B = append(b.B[:0], p...)
	return b.B
}

// Live reports how many buffers the current cycle holds
func (a *Arena) Live() int {
	return len(a.bufs)
}

// Reset releases every buffer of the current cycle
func (a *Arena) Reset() {
	for i, b := range a.bufs {
		a.pool.Put(b)
		a.bufs[i] = nil
	}
	a.bufs = a.bufs[:0]
}
