package stream

import "github.com/cespare/xxhash/v2"

// Checksum returns the xxhash of the bytes CopyTo writes. For a read stream
// these are the unread bytes, and the stream is left at its end.
func Checksum(s Stream) (uint64, error) {
	d := xxhash.New()
	if err := s.CopyTo(d); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}
