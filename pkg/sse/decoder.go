package sse

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder incrementally converts UTF-8 byte chunks into text.
//
// A multi-byte character split across two chunks is held back until the rest
// of it arrives. Byte sequences that can never form a valid character are
// replaced with U+FFFD; decoding never fails.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

// NewDecoder returns a Decoder with no retained bytes.
func NewDecoder() *Decoder {
	return &Decoder{
		t: unicode.UTF8.NewDecoder(),
	}
}

// Decode returns the text for as many bytes of chunk (prefixed by any bytes
// retained from the previous call) as form complete characters. An
// incomplete trailing sequence is retained for the next call.
func (d *Decoder) Decode(chunk []byte) string {
	return d.decode(chunk, false)
}

// Flush decodes any retained bytes as if the stream had ended, substituting
// replacement characters for sequences that never completed, and resets the
// Decoder.
func (d *Decoder) Flush() string {
	out := d.decode(nil, true)
	d.t.Reset()
	return out
}

// Pending reports how many bytes are retained waiting for the rest of a
// character.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}
	if len(src) == 0 {
		return ""
	}

	// Every invalid byte expands to the 3-byte replacement character at most,
	// so this dst can never be too short.
	dst := make([]byte, 3*len(src))
	nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
	if errors.Is(err, transform.ErrShortSrc) {
		d.pending = append([]byte(nil), src[nSrc:]...)
	}

	return string(dst[:nDst])
}
