package stream

import (
	"errors"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textScratchSize is the size of the scratch buffer strings are encoded through.
const textScratchSize = 1024

// EncodingByName returns the text encoding registered under an IANA name,
// such as "UTF-16LE" or "ISO-8859-1".
func EncodingByName(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, invalidArgument("unknown encoding %q: %v", name, err)
	}
	if enc == nil {
		return nil, invalidArgument("encoding %q is not supported", name)
	}
	return enc, nil
}

// textEncoding converts strings into the bytes of one encoding.
// Characters the encoding cannot represent are replaced with its
// replacement character.
type textEncoding struct {
	enc encoding.Encoding // nil for UTF-8.
}

func newTextEncoding(enc encoding.Encoding) textEncoding {
	if enc == unicode.UTF8 {
		enc = nil
	}
	return textEncoding{enc: enc}
}

func (e textEncoding) isUTF8() bool {
	return e.enc == nil
}

// byteCount returns the length of s once encoded, using scratch as the
// encoder's output buffer.
func (e textEncoding) byteCount(s string, scratch []byte) (int, error) {
	if e.isUTF8() {
		return len(s), nil
	}
	n := 0
	err := e.encode(s, scratch, func(p []byte) {
		n += len(p)
	})
	return n, err
}

// encode runs s through a fresh encoder, passing each filled piece of
// scratch to emit. It must not be called for UTF-8.
func (e textEncoding) encode(s string, scratch []byte, emit func([]byte)) error {
	t := encoding.ReplaceUnsupported(e.enc.NewEncoder())
	src := []byte(s)
	for {
		nDst, nSrc, err := t.Transform(scratch, src, true)
		if nDst > 0 {
			emit(scratch[:nDst])
		}
		src = src[nSrc:]
		if err == nil {
			return nil
		}
		if !errors.Is(err, transform.ErrShortDst) || (nDst == 0 && nSrc == 0) {
			return err
		}
	}
}
