package bufstream

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// PooledManager is a Manager that recycles buffers through an ascending set of
// size classes sharing a total memory budget.
//
// Each size class starts with a small quota. Requests that miss on a class
// which has already reached its quota are counted, and once enough misses
// accumulate the manager moves quota from the class with the most idle
// memory to the class that missed the most.
type PooledManager struct {
	logger               *slog.Logger
	sizes                []int                        // Ascending size classes.
	pools                []atomic.Pointer[bufferPool] // Current pool of each size class.
	maxBufferSize        int
	largeObjectThreshold int
	missesBeforeTuning   int64
	memoryLimit          int64
	remainingMemory      atomic.Int64 // Bytes not allotted to any size class.
	totalMisses          atomic.Int64 // Saturated misses since the last tuning pass.
	tunings              atomic.Int64 // Completed tuning passes.
	tuneMu               sync.Mutex   // Held while tuning; never waited on.
}

// NewPooledManager creates a pooled manager from the given config.
func NewPooledManager(config ManagerConfig) (*PooledManager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &PooledManager{
		logger:               logger,
		maxBufferSize:        config.MaxBufferSize,
		largeObjectThreshold: config.LargeObjectThreshold,
		missesBeforeTuning:   int64(config.MissesBeforeTuning),
		memoryLimit:          config.MaxPoolBytes,
	}

	remaining := config.MaxPoolBytes
	var limits []int64
	addClass := func(size int) {
		limit := min(remaining/int64(size), int64(config.InitialBuffersPerClass))
		m.sizes = append(m.sizes, size)
		limits = append(limits, limit)
		remaining -= limit * int64(size)
	}

	size := min(config.MinBufferSize, config.MaxBufferSize)
	for {
		addClass(size)
		if size >= config.MaxBufferSize {
			break
		}
		next := int(min(int64(size)*2, int64(config.MaxBufferSize)))
		if size < config.LargeObjectThreshold && next > config.LargeObjectThreshold {
			// Doubling would skip the large object boundary; give it its own class.
			addClass(config.LargeObjectThreshold)
		}
		size = next
	}

	m.pools = make([]atomic.Pointer[bufferPool], len(m.sizes))
	for i, size := range m.sizes {
		m.pools[i].Store(newBufferPool(size, limits[i], m.largeObjectThreshold))
	}
	m.remainingMemory.Store(remaining)

	m.logger.Debug("Created pooled buffer manager",
		"sizeClasses", len(m.sizes),
		"maxBufferSize", m.maxBufferSize,
		"memoryLimit", m.memoryLimit,
	)
	return m, nil
}

// Sizes returns the configured size classes in ascending order.
func (m *PooledManager) Sizes() []int {
	sizes := make([]int, len(m.sizes))
	copy(sizes, m.sizes)
	return sizes
}

// TakeBuffer returns a buffer of at least size bytes. Requests up to the
// largest size class get a buffer of exactly the smallest fitting class size;
// larger requests get an unpooled buffer of exactly size bytes.
// It will panic if size is negative.
func (m *PooledManager) TakeBuffer(size int) []byte {
	if size < 0 {
		panic(fmt.Sprintf("negative buffer size requested: %d", size))
	}
	i := sort.SearchInts(m.sizes, size)
	if i == len(m.sizes) {
		return make([]byte, size)
	}

	pool := m.pools[i].Load()
	buf, ok, missed := pool.take()
	if ok {
		return buf
	}
	if missed && m.totalMisses.Add(1) >= m.missesBeforeTuning {
		m.tryTune()
	}
	return make([]byte, pool.bufferSize)
}

// ReturnBuffer hands buf back to the pool of its size class. Buffers larger
// than the largest size class are left to the garbage collector. A buffer
// whose length is not exactly a size class was not taken from this manager,
// and an error wrapping ErrInvalidArgument is returned.
func (m *PooledManager) ReturnBuffer(buf []byte) error {
	n := len(buf)
	if n > m.maxBufferSize {
		return nil // Unpooled allocation.
	}
	i := sort.SearchInts(m.sizes, n)
	if m.sizes[i] != n {
		return invalidArgument("buffer length %d is not a size class of this manager (nearest is %d)", n, m.sizes[i])
	}
	m.pools[i].Load().put(buf)
	return nil
}

// Clear releases every pooled buffer. Quotas are left unchanged.
func (m *PooledManager) Clear() {
	for i := range m.pools {
		m.pools[i].Load().clear()
	}
}

// tryTune runs a tuning pass unless one is already in progress, in which case
// it returns immediately.
func (m *PooledManager) tryTune() {
	if !m.tuneMu.TryLock() {
		return
	}
	defer m.tuneMu.Unlock()

	if starved := m.mostStarved(); starved >= 0 {
		size := int64(m.sizes[starved])
		shrunk := -1
		if m.remainingMemory.Load() < size {
			if excess := m.mostExcessive(); excess >= 0 {
				m.changeQuota(excess, -1)
				shrunk = excess
			}
		}
		grown := false
		if m.remainingMemory.Load() >= size {
			m.changeQuota(starved, 1)
			grown = true
		}
		m.logger.Debug("Tuned buffer pool quotas",
			"starvedSize", m.sizes[starved],
			"grown", grown,
			"shrunkSize", sizeOrZero(m.sizes, shrunk),
			"remainingMemory", m.remainingMemory.Load(),
		)
	}

	for i := range m.pools {
		m.pools[i].Load().misses.Store(0)
	}
	m.totalMisses.Store(0)
	m.tunings.Add(1)
}

// mostStarved returns the index of the saturated size class whose misses
// account for the most bytes, or -1 if no saturated class missed.
func (m *PooledManager) mostStarved() int {
	best, bestBytes := -1, int64(0)
	for i := range m.pools {
		p := m.pools[i].Load()
		if !p.saturated() {
			continue
		}
		if b := p.misses.Load() * int64(p.bufferSize); b > bestBytes {
			best, bestBytes = i, b
		}
	}
	return best
}

// mostExcessive returns the index of the unsaturated size class with the most
// unused quota in bytes, or -1 if every class is saturated.
func (m *PooledManager) mostExcessive() int {
	best, bestBytes := -1, int64(0)
	for i := range m.pools {
		p := m.pools[i].Load()
		if p.saturated() {
			continue
		}
		if b := (p.limit - p.peak.Load()) * int64(p.bufferSize); b > bestBytes {
			best, bestBytes = i, b
		}
	}
	return best
}

// changeQuota replaces the pool of size class i with a new pool whose limit
// differs by delta, moving as many free buffers as fit into the new pool.
// It assumes the caller holds tuneMu.
func (m *PooledManager) changeQuota(i int, delta int64) {
	old := m.pools[i].Load()
	p := newBufferPool(old.bufferSize, old.limit+delta, m.largeObjectThreshold)
	old.drain(p.limit, func(buf []byte) {
		p.put(buf)
	})
	m.pools[i].Store(p)
	m.remainingMemory.Add(-int64(old.bufferSize) * delta)
}

// ManagerStats is a point-in-time snapshot of a pooled manager.
type ManagerStats struct {
	Pools           []PoolStats
	MemoryLimit     int64
	RemainingMemory int64
	TotalMisses     int64
	Tunings         int64
}

// Stats returns a snapshot of every size class and the memory budget.
// Concurrent takes and returns may make the snapshot inconsistent across classes.
func (m *PooledManager) Stats() ManagerStats {
	s := ManagerStats{
		Pools:           make([]PoolStats, len(m.pools)),
		MemoryLimit:     m.memoryLimit,
		RemainingMemory: m.remainingMemory.Load(),
		TotalMisses:     m.totalMisses.Load(),
		Tunings:         m.tunings.Load(),
	}
	for i := range m.pools {
		s.Pools[i] = m.pools[i].Load().stats()
	}
	return s
}

func sizeOrZero(sizes []int, i int) int {
	if i < 0 {
		return 0
	}
	return sizes[i]
}
