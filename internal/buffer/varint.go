// Package buffer implements the position arithmetic and integer encoding
// shared by the pooled streams.
package buffer

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxVarintLen32 is the maximum length of a 7-bit encoded 32-bit integer.
const MaxVarintLen32 = 5

var ErrVarintOverflow = errors.New("7-bit encoded integer overflows 32 bits")

// Put7BitEncodedInt encodes v into buf, 7 bits per byte starting with the least
// significant group, with the high bit set on every byte but the last.
// The value is encoded as its unsigned bit pattern, so negative values take
// MaxVarintLen32 bytes. It returns the number of bytes written.
// It will panic if buf is too small.
func Put7BitEncodedInt(buf []byte, v int32) int {
	// The 7-bit encoding of an unsigned value is identical to its Uvarint encoding.
	return binary.PutUvarint(buf, uint64(uint32(v)))
}

// Append7BitEncodedInt appends the encoding of v to buf.
func Append7BitEncodedInt(buf []byte, v int32) []byte {
	return binary.AppendUvarint(buf, uint64(uint32(v)))
}

// Len7BitEncodedInt returns the number of bytes needed to encode v.
func Len7BitEncodedInt(v int32) int {
	return uvarintLen(uint64(uint32(v)))
}

// Read7BitEncodedInt decodes a 7-bit encoded integer and returns it with the
// number of bytes read.
// The error is [io.EOF] only if no bytes were read. If an EOF happens after reading
// some but not all the bytes, it returns [io.ErrUnexpectedEOF].
func Read7BitEncodedInt(r io.ByteReader) (v int32, n int, err error) {
	// NOTE: The value is decoded manually rather than through binary.ReadUvarint
	// to detect encodings wider than 32 bits and track the bytes read.
	var x uint32
	for shift := 0; n < MaxVarintLen32; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && n > 0 {
				return 0, n, io.ErrUnexpectedEOF
			}
			return 0, n, err
		}
		n++
		if n == MaxVarintLen32 && b > 0x0f {
			// Only the low 4 bits of the fifth byte fit a 32-bit value.
			return 0, n, ErrVarintOverflow
		}
		x |= uint32(b&0x7f) << shift
		if b < 0x80 {
			return int32(x), n, nil
		}
	}
	return 0, n, ErrVarintOverflow
}

// uvarintLen returns the length of a uint64 integer when Uvarint-encoded.
func uvarintLen(x uint64) int {
	switch {
	case x < 1<<7:
		return 1
	case x < 1<<14:
		return 2
	case x < 1<<21:
		return 3
	case x < 1<<28:
		return 4
	case x < 1<<35:
		return 5
	case x < 1<<42:
		return 6
	case x < 1<<49:
		return 7
	case x < 1<<56:
		return 8
	case x < 1<<63:
		return 9
	default:
		return binary.MaxVarintLen64 // 10 bytes.
	}
}
