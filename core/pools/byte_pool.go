package pools

import "sync"

// DefaultTiers size connection buffers: streamed body reads, a typical
// request head, a request line at its cap, and large response staging
var DefaultTiers = []int{1 << 10, 4 << 10, 8 << 10, 32 << 10}

type tier struct {
	size int
	pool sync.Pool
}

// BytePool hands out fixed-capacity slices from ascending size tiers. A
// request larger than the top tier is allocated and never pooled.
type BytePool struct {
	tiers []*tier
}

// NewBytePool creates a pool using DefaultTiers
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(DefaultTiers)
}

// NewBytePoolWithSizes creates a pool with the given ascending tier sizes
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{tiers: make([]*tier, len(sizes))}
	for i, n := range sizes {
		t := &tier{size: n}
		t.pool.New = func() any {
			b := make([]byte, t.size)
			return &b
		}
		bp.tiers[i] = t
	}
	return bp
}

// Get returns a slice of length n whose capacity is the smallest tier that
// fits
func (bp *BytePool) Get(n int) []byte {
	if t := bp.fit(n); t != nil {
		return (*t.pool.Get().(*[]byte))[:n]
	}
	return make([]byte, n)
}

// Put recycles b if its capacity is exactly one of the tiers
func (bp *BytePool) Put(b []byte) {
	t := bp.fit(cap(b))
	if t == nil || t.size != cap(b) {
		return
	}
	b = b[:cap(b)]
	t.pool.Put(&b)
}

func (bp *BytePool) fit(n int) *tier {
	for _, t := range bp.tiers {
		if n <= t.size {
			return t
		}
	}
	return nil
}
