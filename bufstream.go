// Package bufstream implements a tiered byte-buffer pool.
// Buffers are grouped into power-of-two size classes that share a memory
// budget, and quotas move between size classes based on observed misses.
// See package stream for the growable output stream and read-only streams
// built on pooled buffers.
package bufstream

import "fmt"

// Manager hands out and takes back byte buffers.
// Implementations are safe for concurrent use by multiple goroutines.
type Manager interface {
	// TakeBuffer returns a buffer of at least size bytes. It never returns nil.
	TakeBuffer(size int) []byte
	// ReturnBuffer gives a buffer obtained from TakeBuffer back to the manager.
	// The caller must not use buf afterwards.
	ReturnBuffer(buf []byte) error
	// Clear releases every buffer held by the manager.
	Clear()
}

var defaultGCManager = &GCManager{}

// Create returns a pooled manager with a budget of maxPoolBytes and size
// classes up to maxBufferSize. A maxPoolBytes of zero returns the shared
// non-pooling manager.
func Create(maxPoolBytes int64, maxBufferSize int) (Manager, error) {
	if maxPoolBytes < 0 {
		return nil, invalidArgument("maxPoolBytes cannot be negative: %d", maxPoolBytes)
	}
	if maxBufferSize < 0 {
		return nil, invalidArgument("maxBufferSize cannot be negative: %d", maxBufferSize)
	}
	if maxPoolBytes == 0 {
		return defaultGCManager, nil
	}
	return NewPooledManager(DefaultManagerConfig(maxPoolBytes, maxBufferSize))
}

// GCManager is a Manager that allocates every buffer and leaves returned
// buffers to the garbage collector. It holds no state and may be shared.
type GCManager struct{}

// TakeBuffer allocates a buffer of exactly size bytes.
// It will panic if size is negative.
func (*GCManager) TakeBuffer(size int) []byte {
	if size < 0 {
		panic(fmt.Sprintf("negative buffer size requested: %d", size))
	}
	return make([]byte, size)
}

func (*GCManager) ReturnBuffer([]byte) error { return nil }

func (*GCManager) Clear() {}
