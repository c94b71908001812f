package stream

import (
	"context"
	"errors"
	"io"
	"math"
	"sync/atomic"

	"github.com/holmberd/go-bufstream"
	"github.com/holmberd/go-bufstream/internal/buffer"
)

// SegmentStream is a read-only stream over an ordered list of segments,
// read as if they were one contiguous buffer.
type SegmentStream struct {
	manager   bufstream.Manager
	segments  []Segment
	cursor    buffer.Cursor
	ownership Ownership
	closed    atomic.Bool
}

var _ ReadStream = (*SegmentStream)(nil)

// NewSegmentStream returns a stream over segments. With PoolOwned ownership
// the array of every segment is returned to manager on Close.
func NewSegmentStream(manager bufstream.Manager, segments []Segment, ownership Ownership) (*SegmentStream, error) {
	if manager == nil {
		return nil, invalidArgument("manager cannot be nil")
	}
	if ownership != PoolOwned && ownership != TransferredToCaller {
		return nil, invalidArgument("cannot create a stream with %s ownership", ownership)
	}
	views := make([][]byte, len(segments))
	total := 0
	for i, seg := range segments {
		if err := seg.validate(); err != nil {
			return nil, err
		}
		total += seg.Count
		if total > math.MaxInt32 {
			return nil, invalidArgument("segments exceed %d bytes", math.MaxInt32)
		}
		views[i] = seg.Bytes()
	}
	s := &SegmentStream{
		manager:   manager,
		segments:  segments,
		ownership: ownership,
	}
	s.cursor.Reset(views)
	return s, nil
}

// Ownership returns who returns the segment arrays to the manager.
func (s *SegmentStream) Ownership() Ownership {
	return s.ownership
}

func (s *SegmentStream) Length() int {
	return s.cursor.Len()
}

func (s *SegmentStream) IsReadOnly() bool {
	return true
}

func (s *SegmentStream) Position() int {
	return s.cursor.Offset()
}

// SetPosition sets the offset of the next read. The cursor walks from the
// current segment, so nearby positions are cheap to reach.
func (s *SegmentStream) SetPosition(p int) error {
	if s.closed.Load() {
		return bufstream.ErrClosed
	}
	return cursorError(s.cursor.SeekTo(p))
}

// Seek implements the [io.Seeker] interface.
func (s *SegmentStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	p, err := s.cursor.Seek(offset, whence)
	return p, cursorError(err)
}

// Read reads across segment boundaries.
// It implements the [io.Reader] interface.
func (s *SegmentStream) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	return s.cursor.Read(p)
}

// ReadByte implements the [io.ByteReader] interface.
func (s *SegmentStream) ReadByte() (byte, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	return s.cursor.ReadByte()
}

// Write is not supported on a read-only stream.
func (s *SegmentStream) Write([]byte) (int, error) {
	return 0, bufstream.ErrNotSupported
}

// SetLength is not supported on a read-only stream.
func (s *SegmentStream) SetLength(int) error {
	return bufstream.ErrNotSupported
}

// WriteTo writes the unread bytes to w, one write per segment.
// It implements the [io.WriterTo] interface.
func (s *SegmentStream) WriteTo(w io.Writer) (int64, error) {
	if s.closed.Load() {
		return 0, bufstream.ErrClosed
	}
	return s.cursor.WriteTo(w)
}

func (s *SegmentStream) CopyTo(dst io.Writer) error {
	return s.CopyToBuffer(dst, 0)
}

// CopyToBuffer writes the unread bytes to dst in writes of at most
// bufferSize bytes, or one write per segment if bufferSize is zero.
func (s *SegmentStream) CopyToBuffer(dst io.Writer, bufferSize int) error {
	if err := checkBufferSize(bufferSize); err != nil {
		return err
	}
	if s.closed.Load() {
		return bufstream.ErrClosed
	}
	_, err := s.cursor.WriteChunked(dst, bufferSize)
	return err
}

func (s *SegmentStream) CopyToContext(ctx context.Context, dst io.Writer, bufferSize int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.CopyToBuffer(dst, bufferSize)
}

// Close returns the segment arrays when the stream owns them.
// Repeated calls do nothing.
// It implements the [io.Closer] interface.
func (s *SegmentStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.ownership == PoolOwned {
		for _, seg := range s.segments {
			returnBuffer(s.manager, seg.Array)
		}
	}
	s.segments = nil
	return nil
}

// cursorError maps cursor errors to argument errors.
func cursorError(err error) error {
	if errors.Is(err, buffer.ErrOffsetOutOfBounds) || errors.Is(err, buffer.ErrInvalidWhence) {
		return invalidArgument("%v", err)
	}
	return err
}
