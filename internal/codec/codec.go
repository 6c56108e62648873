// Package codec implements the little-endian binary encoding shared by all
// serialized succinct structures.
//
// The Encoder and Decoder keep a sticky error so that a section can be written
// or read field by field and checked once at the end. A Decoder created with
// alias set returns byte views into its buffer instead of copies; this is how
// memory-mapped files are consumed without copying.
package codec

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned when a section ends before all of its fields
// were decoded.
var ErrShortBuffer = errors.New("codec: short buffer")

// Encoder writes fixed-width little-endian fields.
type Encoder struct {
	w       *bufio.Writer
	scratch [8]byte
	n       int64
	err     error
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriterSize(w, 1<<16)}
}

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(p)
	e.n += int64(n)
	if err != nil {
		e.err = errors.Wrap(err, "codec: write")
	}
}

// Uint8 writes a single byte.
func (e *Encoder) Uint8(v uint8) {
	e.scratch[0] = v
	e.write(e.scratch[:1])
}

// Uint32 writes a 4 byte value.
func (e *Encoder) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(e.scratch[:4], v)
	e.write(e.scratch[:4])
}

// Uint64 writes an 8 byte value.
func (e *Encoder) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(e.scratch[:], v)
	e.write(e.scratch[:])
}

// Int64 writes an 8 byte signed value.
func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

// Bytes writes p verbatim.
func (e *Encoder) Bytes(p []byte) {
	e.write(p)
}

// Uint64s writes each word of ws.
func (e *Encoder) Uint64s(ws []uint64) {
	for _, w := range ws {
		e.Uint64(w)
	}
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int64 {
	return e.n
}

// Err returns the first error encountered.
func (e *Encoder) Err() error {
	return e.err
}

// Flush flushes buffered bytes and returns the first error encountered.
func (e *Encoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	if err := e.w.Flush(); err != nil {
		e.err = errors.Wrap(err, "codec: flush")
	}
	return e.err
}

// Decoder reads fixed-width little-endian fields from a byte slice.
type Decoder struct {
	buf   []byte
	off   int
	alias bool
	err   error
}

// NewDecoder returns a Decoder over buf. With alias set, Bytes and Words
// return views into buf which stay valid only as long as buf does.
func NewDecoder(buf []byte, alias bool) *Decoder {
	return &Decoder{buf: buf, alias: alias}
}

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, d.off, len(d.buf)-d.off)
		return nil
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p
}

// Uint8 reads a single byte.
func (d *Decoder) Uint8() uint8 {
	p := d.next(1)
	if p == nil {
		return 0
	}
	return p[0]
}

// Uint32 reads a 4 byte value.
func (d *Decoder) Uint32() uint32 {
	p := d.next(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

// Uint64 reads an 8 byte value.
func (d *Decoder) Uint64() uint64 {
	p := d.next(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

// Int64 reads an 8 byte signed value.
func (d *Decoder) Int64() int64 {
	return int64(d.Uint64())
}

// Bytes reads n bytes, aliased or copied depending on the decoder mode.
func (d *Decoder) Bytes(n int) []byte {
	p := d.next(n)
	if p == nil || d.alias {
		return p
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

// Words reads n little-endian words. With aliasing it returns the raw bytes
// and a nil slice; otherwise it returns decoded words and nil bytes.
func (d *Decoder) Words(n uint64) ([]uint64, []byte) {
	if n > uint64(len(d.buf)) {
		d.err = errors.Wrapf(ErrShortBuffer, "word count %d exceeds buffer", n)
		return nil, nil
	}
	p := d.next(int(n) * 8)
	if p == nil {
		return nil, nil
	}
	if d.alias {
		return nil, p
	}
	ws := make([]uint64, n)
	for i := range ws {
		ws[i] = binary.LittleEndian.Uint64(p[i*8:])
	}
	return ws, nil
}

// Aliasing reports whether the decoder returns views into its buffer.
func (d *Decoder) Aliasing() bool {
	return d.alias
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

// Remaining returns the number of bytes not yet consumed.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}
