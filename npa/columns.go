package npa

import (
	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
)

// columns partitions [0, size) into one contiguous row range per symbol.
type columns struct {
	size    uint64
	offsets []uint64
	starts  *bitmap.Dictionary
}

func newColumns(size uint64, offsets []uint64) *columns {
	b := bitmap.New(size)
	for _, off := range offsets[:len(offsets)-1] {
		b.SetBit(off)
	}
	return &columns{
		size:    size,
		offsets: append([]uint64(nil), offsets...),
		starts:  bitmap.NewDictionary(b),
	}
}

func (c *columns) Size() uint64 {
	return c.size
}

func (c *columns) ColOffsets() []uint64 {
	return c.offsets
}

// LookupC returns the column holding row i.
func (c *columns) LookupC(i uint64) uint64 {
	return c.starts.Rank1(i) - 1
}

func (c *columns) numColumns() int {
	return len(c.offsets) - 1
}

func (c *columns) storageSize() uint64 {
	return 16 + uint64(len(c.offsets))*8 + c.starts.AllocSize()
}

func (c *columns) write(enc *codec.Encoder) {
	enc.Uint64(c.size)
	enc.Uint64(uint64(c.numColumns()))
	enc.Uint64s(c.offsets)
	bitmap.WriteDictionary(enc, c.starts)
}

func readColumns(dec *codec.Decoder) (*columns, error) {
	c := &columns{size: dec.Uint64()}
	sigma := dec.Uint64()
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read columns")
	}
	if sigma == 0 || sigma > 256 {
		return nil, errors.Errorf("npa: invalid column count %d", sigma)
	}
	c.offsets = make([]uint64, sigma+1)
	for i := range c.offsets {
		c.offsets[i] = dec.Uint64()
	}
	starts, err := bitmap.ReadDictionary(dec)
	if err != nil {
		return nil, errors.Wrap(err, "read column starts")
	}
	if c.offsets[0] != 0 || c.offsets[sigma] != c.size || starts.Num() != c.size || starts.OneNum() != sigma {
		return nil, errors.New("npa: column starts do not match the offsets")
	}
	for i := uint64(1); i <= sigma; i++ {
		if c.offsets[i] <= c.offsets[i-1] {
			return nil, errors.Errorf("npa: column %d is empty or out of order", i-1)
		}
	}
	c.starts = starts
	return c, nil
}
