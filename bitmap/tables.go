package bitmap

import (
	"math/bits"
	"sync"
)

// codeTables holds the chunk code tables. They are pure functions of the
// chunk size, built once per process and read-only afterwards.
type codeTables struct {
	// decode[c] lists, in increasing order, the 16 bit values with popcount c.
	decode [numChunkClasses][]uint16
	// encode[v] is the index of v in decode[popcount(v)].
	encode [1 << chunkSize]uint16
	// offbits[c] is the width of an index into decode[c].
	offbits [numChunkClasses]uint8
	// smallrank[v][k] is the popcount of bits 0..k of v.
	smallrank [1 << chunkSize][chunkSize]uint8
}

var (
	tablesOnce sync.Once
	tables     *codeTables
)

func codes() *codeTables {
	tablesOnce.Do(func() {
		t := &codeTables{}
		for v := 0; v < 1<<chunkSize; v++ {
			c := bits.OnesCount16(uint16(v))
			t.encode[v] = uint16(len(t.decode[c]))
			t.decode[c] = append(t.decode[c], uint16(v))
			r := uint8(0)
			for k := 0; k < chunkSize; k++ {
				r += uint8((v >> k) & 1)
				t.smallrank[v][k] = r
			}
		}
		for c := range t.decode {
			t.offbits[c] = uint8(bits.Len(uint(len(t.decode[c]) - 1)))
		}
		tables = t
	})
	return tables
}

// chunkCodeLen returns the encoded length in bits of a chunk of class c.
func (t *codeTables) chunkCodeLen(c uint64) uint64 {
	return classWidth + uint64(t.offbits[c])
}
