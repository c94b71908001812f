// Package stream implements byte streams backed by buffers from a
// [bufstream.Manager].
//
// An [OutputStream] accumulates written bytes in pooled chunks and is then
// converted into a byte slice or into a read-only stream: a [BufferStream]
// over a single buffer or a [SegmentStream] over a list of segments.
// Streams are not safe for concurrent use; Close may be called concurrently.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/holmberd/go-bufstream"
)

// Stream is the behavior shared by every stream in this package.
type Stream interface {
	// Length returns the number of bytes in the stream.
	Length() int
	// IsReadOnly reports whether writes are rejected.
	IsReadOnly() bool
	// CopyTo writes the stream content to dst.
	// Read streams copy from the current position and advance it.
	CopyTo(dst io.Writer) error
	// CopyToBuffer is CopyTo with a hint for the largest write made to dst.
	// A bufferSize of zero writes each backing region in a single call.
	CopyToBuffer(dst io.Writer, bufferSize int) error
	// CopyToContext is CopyToBuffer preceded by a check of ctx.
	// The copy itself is not interrupted once started.
	CopyToContext(ctx context.Context, dst io.Writer, bufferSize int) error
}

// ReadStream is a seekable read-only stream.
type ReadStream interface {
	Stream
	io.ReadSeekCloser
	io.ByteReader
	io.WriterTo
	// Position returns the offset of the next read.
	Position() int
	// SetPosition sets the offset of the next read, in [0, Length()].
	SetPosition(p int) error
}

// Ownership tells which holder is responsible for returning a buffer to its manager.
type Ownership int

const (
	PoolOwned           Ownership = iota // The holder returns the buffer when closed.
	TransferredToCaller                  // The buffer belongs to the caller and is never returned.
	Shared                               // Several holders share the buffer; the last to close returns it.
)

func (o Ownership) String() string {
	switch o {
	case PoolOwned:
		return "poolOwned"
	case TransferredToCaller:
		return "transferredToCaller"
	case Shared:
		return "shared"
	default:
		return fmt.Sprintf("Ownership(%d)", o)
	}
}

// Segment is a window of Count bytes starting at Offset in Array.
type Segment struct {
	Array  []byte
	Offset int
	Count  int
}

// Bytes returns the window of the segment.
func (s Segment) Bytes() []byte {
	return s.Array[s.Offset : s.Offset+s.Count]
}

func (s Segment) validate() error {
	if s.Offset < 0 || s.Count < 0 || s.Offset > len(s.Array)-s.Count {
		return invalidArgument("segment [%d:+%d] out of range of array of length %d", s.Offset, s.Count, len(s.Array))
	}
	return nil
}

// ToByteArray returns a new slice holding the content CopyTo would write.
func ToByteArray(s Stream) ([]byte, error) {
	w := &sliceWriter{buf: make([]byte, s.Length())}
	if err := s.CopyTo(w); err != nil {
		return nil, err
	}
	return w.buf[:w.n], nil
}

// sliceWriter writes into a fixed-size slice.
type sliceWriter struct {
	buf []byte
	n   int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		return 0, io.ErrShortBuffer
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

// lease counts the holders of a shared buffer.
type lease struct {
	manager bufstream.Manager
	buf     []byte
	refs    atomic.Int32
}

func newLease(manager bufstream.Manager, buf []byte, refs int32) *lease {
	l := &lease{manager: manager, buf: buf}
	l.refs.Store(refs)
	return l
}

func (l *lease) acquire() {
	l.refs.Add(1)
}

// release drops one reference and returns the buffer after the last one.
func (l *lease) release() {
	if l.refs.Add(-1) == 0 {
		returnBuffer(l.manager, l.buf)
		l.buf = nil
	}
}

// returnBuffer gives buf back to manager. Failures are logged, never returned,
// since it runs during cleanup.
func returnBuffer(manager bufstream.Manager, buf []byte) {
	if err := manager.ReturnBuffer(buf); err != nil {
		slog.Warn("failed to return buffer", "size", len(buf), "error", err)
	}
}

func checkBufferSize(bufferSize int) error {
	if bufferSize < 0 {
		return invalidArgument("buffer size cannot be negative: %d", bufferSize)
	}
	return nil
}

// resolveSeek returns the position an io.Seeker call moves to.
func resolveSeek(pos, length int, offset int64, whence int) (int, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(pos) + offset
	case io.SeekEnd:
		abs = int64(length) + offset
	default:
		return 0, invalidArgument("invalid whence: %d", whence)
	}
	if abs < 0 || abs > int64(length) {
		return 0, invalidArgument("position %d out of range [0, %d]", abs, length)
	}
	return int(abs), nil
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", bufstream.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
