package bufstream

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// numShards is the number of independently locked stacks backing a
// small-buffer pool.
const numShards = 8

// bufferStack stores free buffers of a single size.
type bufferStack interface {
	push(buf []byte)
	pop() ([]byte, bool)
}

// lockedStack is a single mutex-guarded LIFO stack. It backs pools of large
// buffers, which are requested rarely enough that contention is not a concern.
type lockedStack struct {
	mu   sync.Mutex
	free [][]byte
}

func (s *lockedStack) push(buf []byte) {
	s.mu.Lock()
	s.free = append(s.free, buf)
	s.mu.Unlock()
}

func (s *lockedStack) pop() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.free) - 1
	if n < 0 {
		return nil, false
	}
	buf := s.free[n]
	s.free[n] = nil // Drop the reference held by the backing array.
	s.free = s.free[:n]
	return buf, true
}

type stackShard struct {
	_ cpu.CacheLinePad
	lockedStack
}

// shardedStack spreads pushes and pops over several locked stacks so that
// concurrent callers rarely contend on the same mutex.
type shardedStack struct {
	shards [numShards]stackShard
	next   atomic.Uint32
}

func (s *shardedStack) push(buf []byte) {
	i := s.next.Add(1) % numShards
	s.shards[i].push(buf)
}

func (s *shardedStack) pop() ([]byte, bool) {
	start := s.next.Load()
	for j := range uint32(numShards) {
		if buf, ok := s.shards[(start+j)%numShards].pop(); ok {
			return buf, true
		}
	}
	return nil, false
}

// bufferPool holds free buffers of one size class.
//
// The limit of a pool is fixed for its lifetime; quota tuning replaces the
// pool with a new one rather than mutating it.
type bufferPool struct {
	bufferSize int
	limit      int64
	count      atomic.Int64 // Buffers currently held.
	peak       atomic.Int64 // High-water mark of count, never above limit.
	misses     atomic.Int64 // Saturated misses since the last tuning pass.
	stack      bufferStack
}

// newBufferPool creates an empty pool. Pools for buffers at or above the
// large object threshold use a single locked stack.
func newBufferPool(bufferSize int, limit int64, largeObjectThreshold int) *bufferPool {
	p := &bufferPool{
		bufferSize: bufferSize,
		limit:      limit,
	}
	if bufferSize >= largeObjectThreshold {
		p.stack = &lockedStack{}
	} else {
		p.stack = &shardedStack{}
	}
	return p
}

// saturated reports whether the pool has reached its quota at least once.
func (p *bufferPool) saturated() bool {
	return p.peak.Load() >= p.limit
}

// take pops a free buffer. ok is false if the pool is empty, in which case
// missed reports whether the miss happened on a saturated pool.
func (p *bufferPool) take() (buf []byte, ok bool, missed bool) {
	if buf, ok := p.stack.pop(); ok {
		p.count.Add(-1)
		return buf, true, false
	}
	if p.saturated() {
		p.misses.Add(1)
		return nil, false, true
	}
	return nil, false, false
}

// put adds buf to the pool. It returns false, dropping the buffer, if the
// pool is at capacity.
func (p *bufferPool) put(buf []byte) bool {
	var n int64
	for {
		c := p.count.Load()
		if c >= p.limit {
			return false
		}
		if p.count.CompareAndSwap(c, c+1) {
			n = c + 1
			break
		}
	}
	p.stack.push(buf)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return true
}

// drain pops up to n buffers from the pool and passes them to fn.
func (p *bufferPool) drain(n int64, fn func([]byte)) {
	for i := int64(0); i < n; i++ {
		buf, ok := p.stack.pop()
		if !ok {
			return
		}
		p.count.Add(-1)
		fn(buf)
	}
}

// clear releases every free buffer to the garbage collector.
func (p *bufferPool) clear() {
	for {
		if _, ok := p.stack.pop(); !ok {
			return
		}
		p.count.Add(-1)
	}
}

// PoolStats is a point-in-time snapshot of a size class.
type PoolStats struct {
	BufferSize int
	Limit      int64
	Count      int64
	Peak       int64
	Misses     int64
}

func (p *bufferPool) stats() PoolStats {
	return PoolStats{
		BufferSize: p.bufferSize,
		Limit:      p.limit,
		Count:      p.count.Load(),
		Peak:       p.peak.Load(),
		Misses:     p.misses.Load(),
	}
}
