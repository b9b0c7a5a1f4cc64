// Package pool provides object pooling for the hot paths of the capture
// and export pipeline: CSV row slices, scratch byte buffers, and pooled
// bytes.Buffers for serialization. Pools are safe for concurrent use and
// track simple statistics.
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool is a typed object pool around sync.Pool with an optional reset
// function applied before an object is returned for reuse.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a pool. newFn is called when the pool is empty; reset, if
// non-nil, cleans an object up on Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object, allocating if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put resets the object and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns lifetime counters: objects allocated, currently checked
// out, and total Gets served.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.gets)
}

// Global pools for the row-shaped data this pipeline moves around. CSV
// rows from a device are narrow, so small capacities cover the common
// case.
var (
	// FieldSlicePool pools []string record slices for CSV writing.
	FieldSlicePool = New(
		func() []string {
			return make([]string, 0, 8)
		},
		func(s []string) {
			for i := range s {
				s[i] = ""
			}
		},
	)

	// ValueSlicePool pools []float64 slices for row values.
	ValueSlicePool = New(
		func() []float64 {
			return make([]float64, 0, 8)
		},
		nil,
	)

	// BytesBufferPool pools bytes.Buffers for serialization scratch.
	BytesBufferPool = New(
		func() *bytes.Buffer {
			return bytes.NewBuffer(make([]byte, 0, 4096))
		},
		func(b *bytes.Buffer) {
			b.Reset()
		},
	)
)

// GetFields retrieves an empty string slice for assembling one CSV record.
func GetFields() []string {
	return FieldSlicePool.Get()[:0]
}

// PutFields returns a record slice to the pool.
func PutFields(s []string) {
	if s != nil {
		FieldSlicePool.Put(s)
	}
}

// GetValues retrieves an empty float64 slice.
func GetValues() []float64 {
	return ValueSlicePool.Get()[:0]
}

// PutValues returns a value slice to the pool.
func PutValues(s []float64) {
	if s != nil {
		ValueSlicePool.Put(s)
	}
}

// GetBytesBuffer retrieves an empty bytes.Buffer.
func GetBytesBuffer() *bytes.Buffer {
	return BytesBufferPool.Get()
}

// PutBytesBuffer returns a buffer to the pool.
func PutBytesBuffer(b *bytes.Buffer) {
	if b != nil {
		BytesBufferPool.Put(b)
	}
}

// idCounter backs GenerateID.
var idCounter uint64

// GenerateID returns "prefix-N" with N drawn from an atomic counter. Used
// for session and export identifiers in logs.
func GenerateID(prefix string) string {
	id := atomic.AddUint64(&idCounter, 1)

	buf := make([]byte, 0, len(prefix)+21)
	buf = append(buf, prefix...)
	buf = append(buf, '-')
	buf = appendUint64(buf, id)
	return string(buf)
}

func appendUint64(buf []byte, n uint64) []byte {
	if n == 0 {
		return append(buf, '0')
	}

	temp := n
	digits := 0
	for temp > 0 {
		temp /= 10
		digits++
	}

	start := len(buf)
	buf = buf[:start+digits]
	for i := digits - 1; i >= 0; i-- {
		buf[start+i] = byte('0' + n%10)
		n /= 10
	}
	return buf
}

// BufferPool manages byte buffers in power-of-2 size buckets, so serial
// read scratch and compression output of different magnitudes recycle
// without fragmenting.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool with buckets from 512B to 4MB.
// Requests beyond the largest bucket allocate directly.
func NewBufferPool() *BufferPool {
	sizes := []int{512, 4096, 65536, 1048576, 4194304}

	bp := &BufferPool{sizes: sizes}
	for _, size := range sizes {
		size := size
		bp.pools = append(bp.pools, New(
			func() []byte {
				return make([]byte, 0, size)
			},
			nil,
		))
	}
	return bp
}

// Get returns a zero-length buffer with capacity at least size.
func (bp *BufferPool) Get(size int) []byte {
	for i, s := range bp.sizes {
		if size <= s {
			return bp.pools[i].Get()[:0]
		}
	}
	return make([]byte, 0, size)
}

// Put returns a buffer to its size bucket. Buffers larger than the
// largest bucket are dropped for the GC.
func (bp *BufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	for i := len(bp.sizes) - 1; i >= 0; i-- {
		if c >= bp.sizes[i] {
			bp.pools[i].Put(buf[:0])
			return
		}
	}
}

// Buffers is the process-wide bucketed buffer pool.
var Buffers = NewBufferPool()
