package bitmap

import "math/bits"

func ceilDiv(num uint64, div uint64) uint64 {
	return (num + div - 1) / div
}

func decompose(x uint64, y uint64) (uint64, uint64) {
	return x / y, x % y
}

func mask(width uint8) uint64 {
	if width >= wordSize {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// WidthFor returns the number of bits needed to store v.
func WidthFor(v uint64) uint8 {
	return uint8(bits.Len64(v))
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

func bitNum(ones uint64, n uint64, b bool) uint64 {
	if b {
		return ones
	}
	return n - ones
}

// setSlice ORs the low codeLen bits of val into bits at bit offset pos. The
// target bits must be zero.
func setSlice(bits []uint64, pos uint64, codeLen uint8, val uint64) {
	if codeLen == 0 {
		return
	}
	block, offset := decompose(pos, wordSize)
	bits[block] |= val << offset
	if offset+uint64(codeLen) > wordSize {
		bits[block+1] |= val >> (wordSize - offset)
	}
}
