// Package bitmap provides the bit-packed storage primitives every succinct
// structure is built from: fixed-width packed arrays over 64 bit words, and a
// compressed rank/select dictionary.
//
// A BitMap either owns its words or is a read-only view over little-endian
// bytes (typically a memory-mapped file). Both forms answer the same reads;
// only owned bitmaps can be written.
package bitmap

import (
	"encoding/binary"

	"github.com/vsivsi/succinct/invariants"
)

// Words is a vector of 64 bit words, either owned or viewed over
// little-endian bytes.
type Words struct {
	owned  []uint64
	mapped []byte
}

// OwnedWords wraps ws.
func OwnedWords(ws []uint64) Words {
	return Words{owned: ws}
}

// Get returns word i.
func (w Words) Get(i uint64) uint64 {
	if w.mapped != nil {
		return binary.LittleEndian.Uint64(w.mapped[i*8:])
	}
	return w.owned[i]
}

// Len returns the number of words.
func (w Words) Len() uint64 {
	if w.mapped != nil {
		return uint64(len(w.mapped) / 8)
	}
	return uint64(len(w.owned))
}

// Mapped reports whether the words are a view over external bytes.
func (w Words) Mapped() bool {
	return w.mapped != nil
}

// BitMap is a fixed-size sequence of bits.
type BitMap struct {
	size  uint64
	words Words
}

// New returns a zeroed bitmap of the given size in bits.
func New(bits uint64) *BitMap {
	return &BitMap{
		size:  bits,
		words: OwnedWords(make([]uint64, ceilDiv(bits, wordSize))),
	}
}

// NewSet returns a bitmap of the given size in bits with every bit set.
func NewSet(bits uint64) *BitMap {
	b := New(bits)
	for i := range b.words.owned {
		b.words.owned[i] = ^uint64(0)
	}
	return b
}

// Size returns the size in bits.
func (b *BitMap) Size() uint64 {
	return b.size
}

// Words returns the backing words.
func (b *BitMap) Words() Words {
	return b.words
}

// StorageSize returns the number of bytes WriteBitMap writes for b.
func (b *BitMap) StorageSize() uint64 {
	if b == nil {
		return 8
	}
	return 8 + ceilDiv(b.size, wordSize)*8
}

func (b *BitMap) mustOwn() {
	if b.words.mapped != nil {
		invariants.Violation("write to a memory-mapped bitmap")
	}
}

// SetAtPos writes the low width bits of value at bit offset pos. Bits of
// value above width are dropped.
func (b *BitMap) SetAtPos(pos uint64, value uint64, width uint8) {
	if width == 0 {
		return
	}
	b.mustOwn()
	m := mask(width)
	value &= m
	ws := b.words.owned
	block, offset := decompose(pos, wordSize)
	ws[block] = ws[block]&^(m<<offset) | value<<offset
	if offset+uint64(width) > wordSize {
		spill := uint8(offset + uint64(width) - wordSize)
		ws[block+1] = ws[block+1]&^mask(spill) | value>>(wordSize-offset)
	}
}

// LookupAtPos reads width bits at bit offset pos. Bits past the last word
// read as zero.
func (b *BitMap) LookupAtPos(pos uint64, width uint8) uint64 {
	if width == 0 {
		return 0
	}
	block, offset := decompose(pos, wordSize)
	ret := b.words.Get(block) >> offset
	if offset+uint64(width) > wordSize && block+1 < b.words.Len() {
		ret |= b.words.Get(block+1) << (wordSize - offset)
	}
	return ret & mask(width)
}

// SetArray writes value into slot index of an array of width bit fields.
func (b *BitMap) SetArray(index uint64, value uint64, width uint8) {
	b.SetAtPos(index*uint64(width), value, width)
}

// LookupArray reads slot index of an array of width bit fields.
func (b *BitMap) LookupArray(index uint64, width uint8) uint64 {
	return b.LookupAtPos(index*uint64(width), width)
}

// SetBit sets bit pos.
func (b *BitMap) SetBit(pos uint64) {
	b.mustOwn()
	b.words.owned[pos/wordSize] |= 1 << (pos % wordSize)
}

// ClearBit clears bit pos.
func (b *BitMap) ClearBit(pos uint64) {
	b.mustOwn()
	b.words.owned[pos/wordSize] &^= 1 << (pos % wordSize)
}

// GetBit returns bit pos.
func (b *BitMap) GetBit(pos uint64) bool {
	return (b.words.Get(pos/wordSize)>>(pos%wordSize))&1 == 1
}

// Clear zeroes every bit.
func (b *BitMap) Clear() {
	b.mustOwn()
	clear(b.words.owned)
}

// Packed is an array of fixed-width unsigned values stored in a BitMap.
type Packed struct {
	bm    *BitMap
	n     uint64
	width uint8
}

// NewPacked returns a zeroed array of n values of width bits. One spare word
// is allocated so that reads of a full word at any slot stay in bounds.
func NewPacked(n uint64, width uint8) *Packed {
	bits := n * uint64(width)
	bm := &BitMap{
		size:  bits,
		words: OwnedWords(make([]uint64, ceilDiv(bits, wordSize)+1)),
	}
	return &Packed{bm: bm, n: n, width: width}
}

// Get returns value i.
func (p *Packed) Get(i uint64) uint64 {
	return p.bm.LookupArray(i, p.width)
}

// Set stores value i.
func (p *Packed) Set(i uint64, v uint64) {
	p.bm.SetArray(i, v, p.width)
}

// Len returns the number of values.
func (p *Packed) Len() uint64 {
	return p.n
}

// Width returns the width of each value in bits.
func (p *Packed) Width() uint8 {
	return p.width
}

// StorageSize returns the number of bytes occupied by the array.
func (p *Packed) StorageSize() uint64 {
	return 9 + p.bm.StorageSize()
}
