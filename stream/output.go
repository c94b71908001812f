package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sync/atomic"

	"golang.org/x/text/encoding"

	"github.com/holmberd/go-bufstream"
	"github.com/holmberd/go-bufstream/internal/buffer"
)

// DefaultInitialSize is the size of the first chunk of an output stream.
const DefaultInitialSize = 256

// OutputConfig configures an OutputStream.
type OutputConfig struct {
	InitialSize      int               // Size of the first chunk; zero takes it on the first write.
	MaxSizeQuota     int               // Quota reported when a write is rejected.
	EffectiveMaxSize int               // Enforced maximum size; zero means MaxSizeQuota.
	Encoding         encoding.Encoding // Encoding of WriteText; nil means UTF-8.
}

// DefaultOutputConfig returns a config with a quota of the 32-bit maximum.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		InitialSize:  DefaultInitialSize,
		MaxSizeQuota: math.MaxInt32,
	}
}

// Validate checks if the output config is valid.
func (c OutputConfig) Validate() error {
	var errs []error
	if c.InitialSize < 0 || c.InitialSize > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("invalid config: InitialSize must be in [0, %d]", math.MaxInt32))
	}
	if c.MaxSizeQuota < 0 || c.MaxSizeQuota > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("invalid config: MaxSizeQuota must be in [0, %d]", math.MaxInt32))
	}
	if c.EffectiveMaxSize < 0 || c.EffectiveMaxSize > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("invalid config: EffectiveMaxSize must be in [0, %d]", math.MaxInt32))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", bufstream.ErrInvalidArgument, err)
	}
	return nil
}

type outputState int

const (
	stateUninitialized outputState = iota // Zero value, or cleared.
	stateWritable                         // Initialized and accepting writes.
	stateFinalized                        // Chunks were handed over by a conversion.
)

func (s outputState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateWritable:
		return "writable"
	case stateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("outputState(%d)", s)
	}
}

// OutputStream is an append-only stream that grows by taking chunks from a
// manager. Every chunk before the last one is full.
//
// The zero value is uninitialized; call Reinitialize before writing.
// After a conversion that hands the chunks over (ToArray, ToArraySegment,
// ToArraySegments, ToReadOnlyStream) the stream is finalized and rejects
// further writes and conversions until it is cleared and reinitialized.
type OutputStream struct {
	manager   bufstream.Manager
	chunks    [][]byte
	fill      int // Bytes used in the last chunk.
	totalSize int
	maxSize   int
	quota     int
	initial   int
	enc       textEncoding
	state     outputState
	cleared   atomic.Bool
}

// NewOutputStream returns an output stream taking its chunks from manager.
func NewOutputStream(manager bufstream.Manager, config OutputConfig) (*OutputStream, error) {
	o := &OutputStream{}
	if err := o.Reinitialize(manager, config); err != nil {
		return nil, err
	}
	return o, nil
}

// Reinitialize prepares the stream for writing. The stream must be
// uninitialized or cleared.
func (o *OutputStream) Reinitialize(manager bufstream.Manager, config OutputConfig) error {
	if manager == nil {
		return invalidArgument("manager cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if o.state != stateUninitialized {
		return invalidArgument("stream is %s; clear it before reinitializing", o.state)
	}
	o.manager = manager
	o.quota = config.MaxSizeQuota
	o.maxSize = config.EffectiveMaxSize
	if o.maxSize == 0 {
		o.maxSize = config.MaxSizeQuota
	}
	o.initial = config.InitialSize
	o.enc = newTextEncoding(config.Encoding)
	if o.initial > 0 {
		o.chunks = append(o.chunks, manager.TakeBuffer(o.initial))
	}
	o.state = stateWritable
	o.cleared.Store(false)
	return nil
}

// checkWritable reports why the stream cannot be written or converted.
func (o *OutputStream) checkWritable() error {
	switch o.state {
	case stateWritable:
		return nil
	case stateFinalized:
		return bufstream.ErrFinalized
	default:
		return bufstream.ErrClosed
	}
}

// reserve checks that n more bytes can be written.
func (o *OutputStream) reserve(n int) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if n < 0 {
		return invalidArgument("byte count cannot be negative: %d", n)
	}
	if n > o.maxSize-o.totalSize {
		return &bufstream.QuotaExceededError{Limit: int64(o.quota)}
	}
	return nil
}

// available returns the free bytes of the last chunk.
func (o *OutputStream) available() int {
	if len(o.chunks) == 0 {
		return 0
	}
	return len(o.chunks[len(o.chunks)-1]) - o.fill
}

// nextChunk takes a chunk large enough for the remaining n bytes of a write.
func (o *OutputStream) nextChunk(n int) {
	size := max(o.initial, n)
	if len(o.chunks) > 0 {
		prev := int64(len(o.chunks[len(o.chunks)-1]))
		size = max(int(min(2*prev, math.MaxInt32)), n)
	}
	o.chunks = append(o.chunks, o.manager.TakeBuffer(size))
	o.fill = 0
}

// append copies p to the end of the stream. It assumes reserve succeeded.
func (o *OutputStream) append(p []byte) {
	for len(p) > 0 {
		if o.available() == 0 {
			o.nextChunk(len(p))
		}
		n := copy(o.chunks[len(o.chunks)-1][o.fill:], p)
		o.fill += n
		o.totalSize += n
		p = p[n:]
	}
}

// appendZeros writes n zero bytes. It assumes reserve succeeded.
func (o *OutputStream) appendZeros(n int) {
	for n > 0 {
		if o.available() == 0 {
			o.nextChunk(n)
		}
		last := o.chunks[len(o.chunks)-1]
		k := min(n, len(last)-o.fill)
		clear(last[o.fill : o.fill+k])
		o.fill += k
		o.totalSize += k
		n -= k
	}
}

// Write appends p to the stream.
// It implements the [io.Writer] interface.
// A write that would exceed the quota writes nothing and returns a
// [*bufstream.QuotaExceededError].
func (o *OutputStream) Write(p []byte) (int, error) {
	if err := o.reserve(len(p)); err != nil {
		return 0, err
	}
	o.append(p)
	return len(p), nil
}

// WriteByte appends a single byte.
// It implements the [io.ByteWriter] interface.
func (o *OutputStream) WriteByte(b byte) error {
	if err := o.reserve(1); err != nil {
		return err
	}
	if o.available() == 0 {
		o.nextChunk(1)
	}
	o.chunks[len(o.chunks)-1][o.fill] = b
	o.fill++
	o.totalSize++
	return nil
}

// WriteString appends the raw bytes of s.
// It implements the [io.StringWriter] interface.
func (o *OutputStream) WriteString(s string) (int, error) {
	if err := o.reserve(len(s)); err != nil {
		return 0, err
	}
	n := len(s)
	for len(s) > 0 {
		if o.available() == 0 {
			o.nextChunk(len(s))
		}
		k := copy(o.chunks[len(o.chunks)-1][o.fill:], s)
		o.fill += k
		o.totalSize += k
		s = s[k:]
	}
	return n, nil
}

// Skip appends n zero bytes.
func (o *OutputStream) Skip(n int) error {
	if err := o.reserve(n); err != nil {
		return err
	}
	o.appendZeros(n)
	return nil
}

// Flush does nothing; written bytes are always in the chunks.
func (o *OutputStream) Flush() error {
	return nil
}

// Length returns the number of bytes written.
func (o *OutputStream) Length() int {
	return o.totalSize
}

func (o *OutputStream) IsReadOnly() bool {
	return false
}

// Read is not supported on an output stream.
func (o *OutputStream) Read([]byte) (int, error) {
	return 0, bufstream.ErrNotSupported
}

// Seek is not supported on an output stream.
func (o *OutputStream) Seek(int64, int) (int64, error) {
	return 0, bufstream.ErrNotSupported
}

// SetLength is not supported on an output stream.
func (o *OutputStream) SetLength(int) error {
	return bufstream.ErrNotSupported
}

// filled returns the written part of every chunk.
func (o *OutputStream) filled() [][]byte {
	segs := slices.Clone(o.chunks)
	if n := len(segs); n > 0 {
		segs[n-1] = segs[n-1][:o.fill]
	}
	return segs
}

// CopyTo writes every written byte to dst.
func (o *OutputStream) CopyTo(dst io.Writer) error {
	return o.CopyToBuffer(dst, 0)
}

// CopyToBuffer writes every written byte to dst in writes of at most
// bufferSize bytes, or one write per chunk if bufferSize is zero.
func (o *OutputStream) CopyToBuffer(dst io.Writer, bufferSize int) error {
	if err := checkBufferSize(bufferSize); err != nil {
		return err
	}
	if err := o.checkWritable(); err != nil {
		return err
	}
	_, err := buffer.NewCursor(o.filled()).WriteChunked(dst, bufferSize)
	return err
}

// CopyToContext is CopyToBuffer preceded by a check of ctx.
func (o *OutputStream) CopyToContext(ctx context.Context, dst io.Writer, bufferSize int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.CopyToBuffer(dst, bufferSize)
}

// ToByteArray returns a copy of the written bytes.
// The stream keeps its chunks and can still be written.
func (o *OutputStream) ToByteArray() ([]byte, error) {
	if err := o.checkWritable(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, o.totalSize)
	for _, c := range o.filled() {
		out = append(out, c...)
	}
	return out, nil
}

// ToArray returns a buffer holding the written bytes in its first size
// bytes. The buffer belongs to the caller, who may give it back to the
// manager. A single chunk is handed over without copying; several chunks
// are copied into one buffer taken from the manager.
func (o *OutputStream) ToArray() (buf []byte, size int, err error) {
	if err := o.checkWritable(); err != nil {
		return nil, 0, err
	}
	switch len(o.chunks) {
	case 0:
		buf = []byte{}
	case 1:
		buf = o.chunks[0]
	default:
		buf = o.manager.TakeBuffer(o.totalSize)
		n := 0
		for _, c := range o.filled() {
			n += copy(buf[n:], c)
		}
		o.releaseChunks()
	}
	size = o.totalSize
	o.finalize()
	return buf, size, nil
}

// ToArraySegment is ToArray returning the written bytes as a segment.
func (o *OutputStream) ToArraySegment() (Segment, error) {
	buf, size, err := o.ToArray()
	if err != nil {
		return Segment{}, err
	}
	return Segment{Array: buf, Offset: 0, Count: size}, nil
}

// ToArraySegments hands every chunk over to the caller, one segment per chunk.
func (o *OutputStream) ToArraySegments() ([]Segment, error) {
	if err := o.checkWritable(); err != nil {
		return nil, err
	}
	segs := o.segments()
	o.finalize()
	return segs, nil
}

func (o *OutputStream) segments() []Segment {
	segs := make([]Segment, len(o.chunks))
	for i, c := range o.chunks {
		segs[i] = Segment{Array: c, Count: len(c)}
	}
	if n := len(segs); n > 0 {
		segs[n-1].Count = o.fill
	}
	return segs
}

// ToReadOnlyStream hands the chunks over to a read-only stream positioned
// at the start, which returns them to the manager when closed.
func (o *OutputStream) ToReadOnlyStream() (ReadStream, error) {
	if err := o.checkWritable(); err != nil {
		return nil, err
	}
	var (
		rs  ReadStream
		err error
	)
	switch len(o.chunks) {
	case 0:
		rs, err = NewBufferStream(o.manager, nil, 0, 0, TransferredToCaller)
	case 1:
		rs, err = NewBufferStream(o.manager, o.chunks[0], 0, o.fill, PoolOwned)
	default:
		rs, err = NewSegmentStream(o.manager, o.segments(), PoolOwned)
	}
	if err != nil {
		return nil, err
	}
	o.finalize()
	return rs, nil
}

// finalize detaches the chunks, which now belong to someone else.
func (o *OutputStream) finalize() {
	o.chunks = nil
	o.fill = 0
	o.state = stateFinalized
}

// releaseChunks returns every chunk to the manager.
func (o *OutputStream) releaseChunks() {
	for i, c := range o.chunks {
		returnBuffer(o.manager, c)
		o.chunks[i] = nil
	}
	o.chunks = o.chunks[:0]
	o.fill = 0
}

// Clear returns the chunks the stream still owns to the manager and resets
// it to the uninitialized state. Only the first of concurrent or repeated
// calls does any work.
func (o *OutputStream) Clear() {
	if !o.cleared.CompareAndSwap(false, true) {
		return
	}
	if o.manager != nil {
		o.releaseChunks()
	}
	o.chunks = nil
	o.totalSize = 0
	o.state = stateUninitialized
}

// Close clears the stream. It never fails.
// It implements the [io.Closer] interface.
func (o *OutputStream) Close() error {
	o.Clear()
	return nil
}
