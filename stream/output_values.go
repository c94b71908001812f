package stream

import (
	"encoding/binary"
	"io"
	"math"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"github.com/holmberd/go-bufstream/internal/buffer"
)

// sliceScratchSize bounds the scratch buffer WriteSlice encodes through.
const sliceScratchSize = 4096

// Seconds between 0001-01-01 and 1970-01-01, both UTC.
const unixToZeroSeconds = 62135596800

const ticksPerSecond = int64(time.Second / 100)

// Decimal is a 96-bit integer with a scale and sign, stored as four 32-bit words.
type Decimal struct {
	Lo, Mid, Hi uint32 // Integer, least significant word first.
	Flags       uint32 // Scale in bits 16-23, sign in bit 31.
}

// Fixed is the set of element types WriteSlice accepts.
type Fixed interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func orderOf(bigEndian bool) byteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// writeFixed appends b, which must hold at most a few bytes, as one write.
func (o *OutputStream) writeFixed(b []byte) error {
	if err := o.reserve(len(b)); err != nil {
		return err
	}
	o.append(b)
	return nil
}

func (o *OutputStream) WriteInt8(v int8) error {
	return o.WriteByte(byte(v))
}

// WriteBool writes 1 for true and 0 for false.
func (o *OutputStream) WriteBool(v bool) error {
	if v {
		return o.WriteByte(1)
	}
	return o.WriteByte(0)
}

func (o *OutputStream) WriteInt16(v int16, bigEndian bool) error {
	return o.WriteUint16(uint16(v), bigEndian)
}

func (o *OutputStream) WriteUint16(v uint16, bigEndian bool) error {
	var b [2]byte
	return o.writeFixed(orderOf(bigEndian).AppendUint16(b[:0], v))
}

func (o *OutputStream) WriteInt32(v int32, bigEndian bool) error {
	return o.WriteUint32(uint32(v), bigEndian)
}

func (o *OutputStream) WriteUint32(v uint32, bigEndian bool) error {
	var b [4]byte
	return o.writeFixed(orderOf(bigEndian).AppendUint32(b[:0], v))
}

func (o *OutputStream) WriteInt64(v int64, bigEndian bool) error {
	return o.WriteUint64(uint64(v), bigEndian)
}

func (o *OutputStream) WriteUint64(v uint64, bigEndian bool) error {
	var b [8]byte
	return o.writeFixed(orderOf(bigEndian).AppendUint64(b[:0], v))
}

// WriteFloat32 writes the IEEE 754 bits of v.
func (o *OutputStream) WriteFloat32(v float32, bigEndian bool) error {
	return o.WriteUint32(math.Float32bits(v), bigEndian)
}

// WriteFloat64 writes the IEEE 754 bits of v.
func (o *OutputStream) WriteFloat64(v float64, bigEndian bool) error {
	return o.WriteUint64(math.Float64bits(v), bigEndian)
}

// WriteDecimal writes the four words of v in the order Lo, Mid, Hi, Flags.
func (o *OutputStream) WriteDecimal(v Decimal, bigEndian bool) error {
	var b [16]byte
	order := orderOf(bigEndian)
	p := order.AppendUint32(b[:0], v.Lo)
	p = order.AppendUint32(p, v.Mid)
	p = order.AppendUint32(p, v.Hi)
	p = order.AppendUint32(p, v.Flags)
	return o.writeFixed(p)
}

// WriteChar writes r as a single UTF-16 code unit.
// Runes outside the Basic Multilingual Plane are rejected.
func (o *OutputStream) WriteChar(r rune, bigEndian bool) error {
	if r < 0 || r > math.MaxUint16 {
		return invalidArgument("rune %U does not fit a UTF-16 code unit", r)
	}
	return o.WriteUint16(uint16(r), bigEndian)
}

// WriteUUID writes the 16 bytes of id in RFC 4122 order.
func (o *OutputStream) WriteUUID(id uuid.UUID) error {
	return o.writeFixed(id[:])
}

// WriteDuration writes d as a count of 100-nanosecond ticks.
func (o *OutputStream) WriteDuration(d time.Duration, bigEndian bool) error {
	return o.WriteInt64(int64(d/100), bigEndian)
}

// WriteTime writes t as the count of 100-nanosecond ticks since
// 0001-01-01 00:00:00 UTC. Times outside years 1 through 9999 are rejected.
func (o *OutputStream) WriteTime(t time.Time, bigEndian bool) error {
	t = t.UTC()
	if y := t.Year(); y < 1 || y > 9999 {
		return invalidArgument("time %v is outside years 1 through 9999", t)
	}
	ticks := (t.Unix()+unixToZeroSeconds)*ticksPerSecond + int64(t.Nanosecond()/100)
	return o.WriteInt64(ticks, bigEndian)
}

// Write7BitEncodedInt writes v 7 bits at a time, least significant group
// first. Negative values are written as their unsigned bit pattern and take
// five bytes.
func (o *OutputStream) Write7BitEncodedInt(v int32) error {
	var b [buffer.MaxVarintLen32]byte
	n := buffer.Put7BitEncodedInt(b[:], v)
	return o.writeFixed(b[:n])
}

// ErrVarintOverflow is returned by Read7BitEncodedInt for an encoding wider
// than 32 bits.
var ErrVarintOverflow = buffer.ErrVarintOverflow

// Read7BitEncodedInt reads back a value written by Write7BitEncodedInt, for
// example from the stream returned by ToReadOnlyStream.
// The error is [io.EOF] only if no bytes were read.
func Read7BitEncodedInt(r io.ByteReader) (int32, error) {
	v, _, err := buffer.Read7BitEncodedInt(r)
	return v, err
}

// WriteText writes s in the stream's encoding. If lengthPrefixed is set, the
// encoded byte count is written first as a 7-bit encoded integer.
// Nothing is written if the whole text does not fit the quota.
func (o *OutputStream) WriteText(s string, lengthPrefixed bool) error {
	if err := o.checkWritable(); err != nil {
		return err
	}
	if o.enc.isUTF8() && !lengthPrefixed {
		_, err := o.WriteString(s)
		return err
	}

	var scratch []byte
	if !o.enc.isUTF8() {
		scratch = o.manager.TakeBuffer(textScratchSize)
		defer returnBuffer(o.manager, scratch)
	}
	count, err := o.enc.byteCount(s, scratch)
	if err != nil {
		return err
	}
	if count > math.MaxInt32 {
		return invalidArgument("encoded text of %d bytes is too long", count)
	}
	total := count
	if lengthPrefixed {
		total += buffer.Len7BitEncodedInt(int32(count))
	}
	if err := o.reserve(total); err != nil {
		return err
	}
	if lengthPrefixed {
		var b [buffer.MaxVarintLen32]byte
		n := buffer.Put7BitEncodedInt(b[:], int32(count))
		o.append(b[:n])
	}
	if o.enc.isUTF8() {
		_, err := o.WriteString(s)
		return err
	}
	return o.enc.encode(s, scratch, o.append)
}

// WriteSlice writes the raw bytes of every element of values.
// Elements pass through a scratch buffer taken from the stream's manager.
// Nothing is written if the whole slice does not fit the quota.
func WriteSlice[T Fixed](o *OutputStream, values []T, bigEndian bool) error {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(values) > math.MaxInt32/size {
		return invalidArgument("slice of %d elements is too long", len(values))
	}
	if err := o.reserve(len(values) * size); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	scratch := o.manager.TakeBuffer(min(len(values)*size, sliceScratchSize))
	defer returnBuffer(o.manager, scratch)
	perPass := len(scratch) / size
	order := orderOf(bigEndian)
	for len(values) > 0 {
		batch := values[:min(perPass, len(values))]
		n, err := binary.Encode(scratch, order, batch)
		if err != nil {
			return err
		}
		o.append(scratch[:n])
		values = values[len(batch):]
	}
	return nil
}
