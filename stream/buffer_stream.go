package stream

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/holmberd/go-bufstream"
	"github.com/holmberd/go-bufstream/internal/buffer"
)

// BufferStream is a read-only stream over a window of a single buffer.
type BufferStream struct {
	manager   bufstream.Manager
	buf       []byte
	origin    int // Start of the window in buf.
	size      int // Length of the window.
	pos       int // Read position relative to origin.
	ownership Ownership
	lease     *lease // Set when ownership is Shared.
	closed    atomic.Bool
}

var _ ReadStream = (*BufferStream)(nil)

// NewBufferStream returns a stream over buf[origin:origin+size].
// With PoolOwned ownership the buffer is returned to manager on Close;
// with TransferredToCaller it never is. Shared streams are only made by Clone.
func NewBufferStream(manager bufstream.Manager, buf []byte, origin, size int, ownership Ownership) (*BufferStream, error) {
	if manager == nil {
		return nil, invalidArgument("manager cannot be nil")
	}
	if origin < 0 || size < 0 || origin > len(buf)-size {
		return nil, invalidArgument("window [%d:+%d] out of range of buffer of length %d", origin, size, len(buf))
	}
	if ownership != PoolOwned && ownership != TransferredToCaller {
		return nil, invalidArgument("cannot create a stream with %s ownership", ownership)
	}
	return &BufferStream{
		manager:   manager,
		buf:       buf,
		origin:    origin,
		size:      size,
		ownership: ownership,
	}, nil
}

// Ownership returns who returns the buffer to the manager.
func (s *BufferStream) Ownership() Ownership {
	return s.ownership
}

// Bytes returns the window of the stream without copying, or nil once the
// stream is closed. The slice is only valid until the stream is closed.
func (s *BufferStream) Bytes() []byte {
	if s.closed.Load() {
		return nil
	}
	return s.buf[s.origin : s.origin+s.size]
}

// Clone returns an independent stream over the same window, positioned at
// the start. A pool-owned buffer becomes shared by both streams and is
// returned by whichever of them is closed last.
func (s *BufferStream) Clone() (*BufferStream, error) {
	if s.closed.Load() {
		return nil, bufstream.ErrClosed
	}
	switch s.ownership {
	case PoolOwned:
		s.lease = newLease(s.manager, s.buf, 2)
		s.ownership = Shared
	case Shared:
		s.lease.acquire()
	}
	return &BufferStream{
		manager:   s.manager,
		buf:       s.buf,
		origin:    s.origin,
		size:      s.size,
		ownership: s.ownership,
		lease:     s.lease,
	}, nil
}

func (s *BufferStream) Length() int {
	return s.size
}

func (s *BufferStream) IsReadOnly() bool {
	return true
}

func (s *BufferStream) Position() int {
	return s.pos
}

// SetPosition sets the offset of the next read.
func (s *BufferStream) SetPosition(p int) error {
	if s.closed.Load() {
		return bufstream.ErrClosed
	}
	if p < 0 || p > s.size {
		return invalidArgument("position %d out of range [0, %d]", p, s.size)
	}
	s.pos = p
	return nil
}

// Seek implements the [io.Seeker] interface.
func (s *BufferStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	p, err := resolveSeek(s.pos, s.size, offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = p
	return int64(p), nil
}

// remaining returns the unread part of the window.
func (s *BufferStream) remaining() []byte {
	return s.buf[s.origin+s.pos : s.origin+s.size]
}

// Read implements the [io.Reader] interface.
func (s *BufferStream) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}
	n := copy(p, s.remaining())
	s.pos += n
	return n, nil
}

// ReadByte implements the [io.ByteReader] interface.
func (s *BufferStream) ReadByte() (byte, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}
	b := s.buf[s.origin+s.pos]
	s.pos++
	return b, nil
}

// Write is not supported on a read-only stream.
func (s *BufferStream) Write([]byte) (int, error) {
	return 0, bufstream.ErrNotSupported
}

// SetLength is not supported on a read-only stream.
func (s *BufferStream) SetLength(int) error {
	return bufstream.ErrNotSupported
}

// WriteTo writes the unread bytes to w.
// It implements the [io.WriterTo] interface.
func (s *BufferStream) WriteTo(w io.Writer) (int64, error) {
	return s.copyTo(w, 0)
}

func (s *BufferStream) copyTo(w io.Writer, bufferSize int) (int64, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	n, err := buffer.NewCursor([][]byte{s.remaining()}).WriteChunked(w, bufferSize)
	s.pos += int(n)
	return n, err
}

func (s *BufferStream) CopyTo(dst io.Writer) error {
	return s.CopyToBuffer(dst, 0)
}

// CopyToBuffer writes the unread bytes to dst in writes of at most
// bufferSize bytes, or in a single write if bufferSize is zero.
func (s *BufferStream) CopyToBuffer(dst io.Writer, bufferSize int) error {
	if err := checkBufferSize(bufferSize); err != nil {
		return err
	}
	_, err := s.copyTo(dst, bufferSize)
	return err
}

func (s *BufferStream) CopyToContext(ctx context.Context, dst io.Writer, bufferSize int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.CopyToBuffer(dst, bufferSize)
}

// Close releases the buffer according to the stream's ownership.
// Repeated calls do nothing.
// It implements the [io.Closer] interface.
func (s *BufferStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	switch s.ownership {
	case PoolOwned:
		returnBuffer(s.manager, s.buf)
	case Shared:
		s.lease.release()
	}
	return nil
}
