package buffer

import (
	"errors"
	"io"
)

var (
	ErrOffsetOutOfBounds = errors.New("offset is out of bounds")
	ErrInvalidWhence     = errors.New("invalid whence")
)

// Cursor is a read position over an ordered list of byte segments that
// together form one logical byte sequence.
// It implements the [io.Reader], [io.ByteReader], [io.Seeker] and [io.WriterTo] interface.
//
// Every offset in [0, Len()] maps to exactly one (segment, position) pair:
// the segment containing the byte at that offset, skipping empty segments,
// or one past the last segment for the end offset.
type Cursor struct {
	segs   [][]byte
	length int // Total length of all segments.
	idx    int // Index of the current segment, len(segs) at the end.
	start  int // Offset of the first byte of the current segment.
	pos    int // Read position within the current segment.
}

// NewCursor returns a cursor at the start of segs.
// The caller must not modify the segment list while the cursor is in use.
func NewCursor(segs [][]byte) *Cursor {
	c := &Cursor{}
	c.Reset(segs)
	return c
}

// Reset points the cursor at the start of a new segment list.
func (c *Cursor) Reset(segs [][]byte) {
	c.segs = segs
	c.length = 0
	for _, s := range segs {
		c.length += len(s)
	}
	c.idx, c.start, c.pos = 0, 0, 0
	c.locate(0)
}

// Len returns the total length of the segments.
func (c *Cursor) Len() int {
	return c.length
}

// Offset returns the current read offset.
func (c *Cursor) Offset() int {
	return c.start + c.pos
}

// Remaining returns the number of bytes between the offset and the end.
func (c *Cursor) Remaining() int {
	return c.length - c.Offset()
}

// Segment returns the index of the current segment and the read position within it.
func (c *Cursor) Segment() (idx int, pos int) {
	return c.idx, c.pos
}

// SeekTo moves the cursor to an absolute offset in [0, Len()].
// It walks from the current segment, so short seeks are cheap.
func (c *Cursor) SeekTo(offset int) error {
	if offset < 0 || offset > c.length {
		return ErrOffsetOutOfBounds
	}
	c.locate(offset)
	return nil
}

// locate moves the cursor to the segment holding offset.
func (c *Cursor) locate(offset int) {
	for c.idx > 0 && offset < c.start {
		c.idx--
		c.start -= len(c.segs[c.idx])
	}
	for c.idx < len(c.segs) && offset >= c.start+len(c.segs[c.idx]) {
		c.start += len(c.segs[c.idx])
		c.idx++
	}
	c.pos = offset - c.start
}

// Seek sets the offset for the next read.
// It implements the [io.Seeker] interface.
//
// Seeking to an offset before the start or past the end of the segments is an error.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = int64(c.Offset()) + offset
	case io.SeekEnd:
		newOffset = int64(c.length) + offset // Offset is expected to be negative.
	default:
		return 0, ErrInvalidWhence
	}
	if newOffset < 0 || newOffset > int64(c.length) {
		return 0, ErrOffsetOutOfBounds
	}
	c.locate(int(newOffset))
	return newOffset, nil
}

// advance moves to the next segment once the current one is consumed.
func (c *Cursor) advance() {
	if c.idx < len(c.segs) && c.pos >= len(c.segs[c.idx]) {
		c.locate(c.start + c.pos)
	}
}

// Read reads up to len(p) bytes, crossing segment boundaries as needed.
func (c *Cursor) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil // No-op
	}
	if c.idx >= len(c.segs) {
		return 0, io.EOF
	}
	for n < len(p) && c.idx < len(c.segs) {
		k := copy(p[n:], c.segs[c.idx][c.pos:])
		n += k
		c.pos += k
		c.advance()
	}
	return n, nil
}

// ReadByte reads a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.idx >= len(c.segs) {
		return 0, io.EOF
	}
	b := c.segs[c.idx][c.pos]
	c.pos++
	c.advance()
	return b, nil
}

// WriteTo writes the remaining bytes to w and moves the cursor to the end.
// It implements the [io.WriterTo] interface.
func (c *Cursor) WriteTo(w io.Writer) (n int64, err error) {
	return c.WriteChunked(w, 0)
}

// WriteChunked writes the remaining bytes to w in calls of at most maxWrite
// bytes each; a maxWrite <= 0 writes each segment in a single call.
func (c *Cursor) WriteChunked(w io.Writer, maxWrite int) (n int64, err error) {
	for c.idx < len(c.segs) {
		p := c.segs[c.idx][c.pos:]
		if maxWrite > 0 && len(p) > maxWrite {
			p = p[:maxWrite]
		}
		m, err := w.Write(p)
		n += int64(m)
		c.pos += m
		c.advance()
		if err != nil {
			return n, err
		}
		if m < len(p) {
			return n, io.ErrShortWrite
		}
	}
	return n, nil
}
