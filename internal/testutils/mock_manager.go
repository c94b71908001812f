package testutils

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"
)

var ErrDoubleReturn = errors.New("buffer returned twice")

// MockManager is a buffer manager that allocates exact sizes and tracks
// every buffer it hands out.
type MockManager struct {
	takeCalls   atomic.Int64
	returnCalls atomic.Int64

	mu          sync.Mutex
	outstanding map[*byte]int // First byte of each taken buffer to its capacity.
}

func (m *MockManager) TakeBuffer(size int) []byte {
	if size < 0 {
		panic("testutils: negative buffer size")
	}
	m.takeCalls.Add(1)
	// Never hand out a zero capacity buffer, it has no address to track.
	buf := make([]byte, size, max(size, 1))
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outstanding == nil {
		m.outstanding = make(map[*byte]int)
	}
	m.outstanding[unsafe.SliceData(buf)] = cap(buf)
	return buf[:size]
}

// ReturnBuffer records the return and reports ErrDoubleReturn for a buffer
// that is not outstanding.
func (m *MockManager) ReturnBuffer(buf []byte) error {
	m.returnCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := unsafe.SliceData(buf)
	if _, ok := m.outstanding[key]; !ok {
		return ErrDoubleReturn
	}
	delete(m.outstanding, key)
	return nil
}

func (m *MockManager) Clear() {}

func (m *MockManager) TakeCalls() int64 {
	return m.takeCalls.Load()
}

func (m *MockManager) ReturnCalls() int64 {
	return m.returnCalls.Load()
}

// Outstanding returns the number of buffers taken and not yet returned.
func (m *MockManager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outstanding)
}

func (m *MockManager) Reset() {
	m.takeCalls.Store(0)
	m.returnCalls.Store(0)
	m.mu.Lock()
	m.outstanding = nil
	m.mu.Unlock()
}
