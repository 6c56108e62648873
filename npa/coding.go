package npa

import (
	"math/bits"
	"sync"

	"github.com/vsivsi/succinct/bitmap"
)

// Codes are laid out in increasing bit order. A gamma code of x >= 1 with
// N = floor(log2 x) is N zero bits, a one bit, then the low N bits of x.
// A delta code is the gamma code of N+1 followed by the low N bits of x.

// coder writes and sums runs of universal codes.
type coder interface {
	length(x uint64) uint64
	encode(b *bitmap.BitMap, pos uint64, x uint64) uint64
	decode(b *bitmap.BitMap, pos uint64) (x uint64, width uint64)
	// sum returns the sum of the count codes starting at pos and the
	// position after the last one.
	sum(b *bitmap.BitMap, pos uint64, count uint64) (uint64, uint64)
}

func coderFor(s EncodingScheme) coder {
	if s == EliasDelta {
		return deltaCoder{}
	}
	return gammaCoder{}
}

func gammaLength(x uint64) uint64 {
	return 2*uint64(bits.Len64(x)-1) + 1
}

func gammaEncode(b *bitmap.BitMap, pos uint64, x uint64) uint64 {
	n := uint8(bits.Len64(x) - 1)
	b.SetAtPos(pos, 0, n)
	b.SetAtPos(pos+uint64(n), 1, 1)
	b.SetAtPos(pos+uint64(n)+1, x, n)
	return 2*uint64(n) + 1
}

func gammaDecode(b *bitmap.BitMap, pos uint64) (uint64, uint64) {
	n := uint64(bits.TrailingZeros64(b.LookupAtPos(pos, 64)))
	x := uint64(1)<<n | b.LookupAtPos(pos+n+1, uint8(n))
	return x, 2*n + 1
}

type gammaCoder struct{}

func (gammaCoder) length(x uint64) uint64 {
	return gammaLength(x)
}

func (gammaCoder) encode(b *bitmap.BitMap, pos uint64, x uint64) uint64 {
	return gammaEncode(b, pos, x)
}

func (gammaCoder) decode(b *bitmap.BitMap, pos uint64) (uint64, uint64) {
	return gammaDecode(b, pos)
}

// sum skips whole 16 bit windows through the prefix sum table and decodes
// single codes only when a window holds none, or more than remain.
func (gammaCoder) sum(b *bitmap.BitMap, pos uint64, count uint64) (uint64, uint64) {
	t := prefixSums()
	var s uint64
	for count > 0 {
		e := t[b.LookupAtPos(pos, 16)]
		if c := e.count(); c > 0 && c <= count {
			s += e.sum()
			pos += e.bits()
			count -= c
			continue
		}
		x, w := gammaDecode(b, pos)
		s += x
		pos += w
		count--
	}
	return s, pos
}

type deltaCoder struct{}

func (deltaCoder) length(x uint64) uint64 {
	n := uint64(bits.Len64(x) - 1)
	return n + gammaLength(n+1)
}

func (deltaCoder) encode(b *bitmap.BitMap, pos uint64, x uint64) uint64 {
	n := uint8(bits.Len64(x) - 1)
	w := gammaEncode(b, pos, uint64(n)+1)
	b.SetAtPos(pos+w, x, n)
	return w + uint64(n)
}

func (deltaCoder) decode(b *bitmap.BitMap, pos uint64) (uint64, uint64) {
	l, w := gammaDecode(b, pos)
	n := l - 1
	return uint64(1)<<n | b.LookupAtPos(pos+w, uint8(n)), w + n
}

func (c deltaCoder) sum(b *bitmap.BitMap, pos uint64, count uint64) (uint64, uint64) {
	var s uint64
	for ; count > 0; count-- {
		x, w := c.decode(b, pos)
		s += x
		pos += w
	}
	return s, pos
}

// prefixSum packs, for one 16 bit window, the number of gamma codes that
// fit entirely in it, their sum and their total width.
type prefixSum uint32

func (p prefixSum) sum() uint64   { return uint64(p >> 16) }
func (p prefixSum) count() uint64 { return uint64(p>>8) & 0xff }
func (p prefixSum) bits() uint64  { return uint64(p) & 0xff }

var (
	prefixSumOnce  sync.Once
	prefixSumTable *[1 << 16]prefixSum
)

func prefixSums() *[1 << 16]prefixSum {
	prefixSumOnce.Do(func() {
		t := new([1 << 16]prefixSum)
		for w := uint64(0); w < 1<<16; w++ {
			var sum, count, off uint64
			for off < 16 {
				rest := w >> off
				if rest == 0 {
					break
				}
				n := uint64(bits.TrailingZeros64(rest))
				if off+2*n+1 > 16 {
					break
				}
				x := uint64(1)<<n | (rest>>(n+1))&(uint64(1)<<n-1)
				sum += x
				count++
				off += 2*n + 1
			}
			t[w] = prefixSum(sum<<16 | count<<8 | off)
		}
		prefixSumTable = t
	})
	return prefixSumTable
}
