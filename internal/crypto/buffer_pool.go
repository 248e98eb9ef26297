package crypto

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// BufferPool pools the plaintext/ciphertext chunk buffers used while
// streaming a file upload or download. Chunk sizes vary per backend
// (§4.2's max_chunk_size), so buffers are bucketed by power-of-two size
// class rather than kept in one fixed pool. Buffers are zeroized before
// being returned to the pool, since they may have carried plaintext.
type BufferPool struct {
	mu      sync.Mutex
	classes map[int]*sync.Pool

	hits, misses int64

	observer PoolObserver
}

// PoolObserver receives a callback on every Get, classified as a hit (a
// pooled buffer was reused) or a miss (a fresh one was allocated). A
// *metrics.Metrics satisfies this interface structurally.
type PoolObserver interface {
	RecordBufferPoolHit(sizeClass string)
	RecordBufferPoolMiss(sizeClass string)
}

// NewBufferPool creates an empty buffer pool. Size classes are created
// lazily on first use.
func NewBufferPool() *BufferPool {
	return &BufferPool{classes: make(map[int]*sync.Pool)}
}

// WithObserver attaches a PoolObserver; every subsequent Get reports its
// outcome to it. Returns p for chaining.
func (p *BufferPool) WithObserver(o PoolObserver) *BufferPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = o
	return p
}

// Get returns a buffer with length size, drawn from the pool when possible.
func (p *BufferPool) Get(size int) []byte {
	class := sizeClass(size)
	pool := p.poolFor(class)
	classLabel := strconv.Itoa(class)

	if v := pool.Get(); v != nil {
		buf := v.([]byte)
		if cap(buf) >= size {
			atomic.AddInt64(&p.hits, 1)
			p.observeHit(classLabel)
			return buf[:size]
		}
	}
	atomic.AddInt64(&p.misses, 1)
	p.observeMiss(classLabel)
	return make([]byte, size, class)
}

func (p *BufferPool) observeHit(classLabel string) {
	p.mu.Lock()
	o := p.observer
	p.mu.Unlock()
	if o != nil {
		o.RecordBufferPoolHit(classLabel)
	}
}

func (p *BufferPool) observeMiss(classLabel string) {
	p.mu.Lock()
	o := p.observer
	p.mu.Unlock()
	if o != nil {
		o.RecordBufferPoolMiss(classLabel)
	}
}

// Put returns a buffer to its size class's pool after zeroizing it.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	class := sizeClass(cap(buf))
	if class != cap(buf) {
		// Not a class boundary we handed out; let the GC reclaim it.
		return
	}
	for i := range buf {
		buf[i] = 0
	}
	p.poolFor(class).Put(buf[:cap(buf)])
}

func (p *BufferPool) poolFor(class int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.classes[class]
	if !ok {
		pool = &sync.Pool{}
		p.classes[class] = pool
	}
	return pool
}

// sizeClass rounds size up to the next power of two, with a 1KiB floor,
// matching the validator's MinChunkSize business rule.
func sizeClass(size int) int {
	const floor = 1024
	if size <= floor {
		return floor
	}
	class := floor
	for class < size {
		class *= 2
	}
	return class
}

// Metrics reports pool hit/miss counters, used by the metrics package to
// expose buffer_pool_hits_total / buffer_pool_misses_total.
func (p *BufferPool) Metrics() (hits, misses int64) {
	return atomic.LoadInt64(&p.hits), atomic.LoadInt64(&p.misses)
}
