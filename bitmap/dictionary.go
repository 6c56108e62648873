package bitmap

// Dictionary provides rank/select operations over an immutable bitmap.
//
// Conceptually a Dictionary represents a bit vector B[0...num). It keeps three
// levels of checkpoints: absolute counts every 2^32 bits (L3), counts relative
// to the enclosing L3 block every 2048 bits (L2), and three 10 bit sub-block
// counts per L2 block packed into the same word (L1).
//
// The bits themselves are stored compressed: each 16 bit chunk is written as
// its popcount class followed by the index of the chunk among all chunks of
// that class. All-zero and all-one chunks take only the class field.
//
// Rank and Select touch at most one L2 word, the chunks of a single 512 bit
// sub-block and one decoded chunk.

import (
	"math/bits"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
	"github.com/vsivsi/succinct/invariants"
)

// Dictionary is a rank/select structure.
type Dictionary struct {
	num     uint64
	oneNum  uint64
	rankL3  Words
	posL3   Words
	rankL12 Words
	posL12  Words
	code    *BitMap
}

func numL3(num uint64) uint64 {
	return ceilDiv(num, l3BlockSize)
}

func numL2(num uint64) uint64 {
	return ceilDiv(num, l2BlockSize)
}

// NewDictionary builds a Dictionary over the first b.Size() bits of b.
func NewDictionary(b *BitMap) *Dictionary {
	t := codes()
	num := b.Size()
	rankL3 := make([]uint64, numL3(num))
	posL3 := make([]uint64, numL3(num))
	rankL12 := make([]uint64, numL2(num))
	posL12 := make([]uint64, numL2(num))
	code := make([]uint64, 0, ceilDiv(num, wordSize)+1)

	var rank, pos uint64
	var l3 uint64
	for bit := uint64(0); bit < num; bit += chunkSize {
		if bit%l3BlockSize == 0 {
			l3 = bit >> l3Shift
			rankL3[l3] = rank
			posL3[l3] = pos
		}
		l2 := bit >> l2Shift
		if bit%l2BlockSize == 0 {
			rankL12[l2] = (rank - rankL3[l3]) << l12HighShift
			posL12[l2] = (pos - posL3[l3]) << l12HighShift
		}

		width := uint8(chunkSize)
		if num-bit < chunkSize {
			width = uint8(num - bit)
		}
		v := b.LookupAtPos(bit, width)
		c := uint64(bits.OnesCount64(v))
		codeLen := t.chunkCodeLen(c)

		for ceilDiv(pos+codeLen, wordSize) > uint64(len(code)) {
			code = append(code, 0)
		}
		setSlice(code, pos, classWidth, c)
		setSlice(code, pos+classWidth, t.offbits[c], uint64(t.encode[v]))

		if sub := (bit & (l2BlockSize - 1)) >> l1Shift; sub < 3 {
			rankL12[l2] += c << l1Shifts[sub]
			posL12[l2] += codeLen << l1Shifts[sub]
		}
		rank += c
		pos += codeLen
	}
	code = append(code, 0)

	return &Dictionary{
		num:     num,
		oneNum:  rank,
		rankL3:  OwnedWords(rankL3),
		posL3:   OwnedWords(posL3),
		rankL12: OwnedWords(rankL12),
		posL12:  OwnedWords(posL12),
		code:    &BitMap{size: pos, words: OwnedWords(code)},
	}
}

// Num returns the number of bits.
func (d *Dictionary) Num() uint64 {
	return d.num
}

// OneNum returns the number of ones in bits.
func (d *Dictionary) OneNum() uint64 {
	return d.oneNum
}

// ZeroNum returns the number of zeros in bits.
func (d *Dictionary) ZeroNum() uint64 {
	return d.num - d.oneNum
}

// locate returns the number of ones strictly before the chunk holding pos,
// and the decoded chunk.
func (d *Dictionary) locate(pos uint64) (uint64, uint64) {
	t := codes()
	l3 := pos >> l3Shift
	l2 := pos >> l2Shift
	rw := d.rankL12.Get(l2)
	pw := d.posL12.Get(l2)
	rank := d.rankL3.Get(l3) + rw>>l12HighShift
	ptr := d.posL3.Get(l3) + pw>>l12HighShift

	sub := (pos & (l2BlockSize - 1)) >> l1Shift
	for s := uint64(0); s < sub; s++ {
		rank += (rw >> l1Shifts[s]) & l1DeltaMask
		ptr += (pw >> l1Shifts[s]) & l1DeltaMask
	}
	for chunk := (pos &^ (l1BlockSize - 1)) >> chunkShift; chunk < pos>>chunkShift; chunk++ {
		c := d.code.LookupAtPos(ptr, classWidth)
		rank += c
		ptr += t.chunkCodeLen(c)
	}
	c := d.code.LookupAtPos(ptr, classWidth)
	off := d.code.LookupAtPos(ptr+classWidth, t.offbits[c])
	return rank, uint64(t.decode[c][off])
}

// Rank1 returns the number of ones in B[0...pos].
func (d *Dictionary) Rank1(pos uint64) uint64 {
	invariants.CheckIndex(pos, d.num)
	rank, v := d.locate(pos)
	return rank + uint64(codes().smallrank[v][pos&(chunkSize-1)])
}

// Rank0 returns the number of zeros in B[0...pos].
func (d *Dictionary) Rank0(pos uint64) uint64 {
	return pos - d.Rank1(pos) + 1
}

// Rank returns the number of bit's in B[0...pos].
func (d *Dictionary) Rank(pos uint64, bit bool) uint64 {
	return bitNum(d.Rank1(pos), pos+1, bit)
}

// Bit returns B[pos].
func (d *Dictionary) Bit(pos uint64) bool {
	invariants.CheckIndex(pos, d.num)
	_, v := d.locate(pos)
	return (v>>(pos&(chunkSize-1)))&1 == 1
}

// Select returns the position of the (rank+1)-th occurrence of bit in B.
// Select returns Num() if rank+1 is larger than the possible range.
func (d *Dictionary) Select(rank uint64, bit bool) uint64 {
	if bit {
		return d.Select1(rank)
	}
	return d.Select0(rank)
}

// Select1 returns the position of the (rank+1)-th one.
func (d *Dictionary) Select1(rank uint64) uint64 {
	if rank >= d.oneNum {
		return d.num
	}
	return d.selectBit(rank, true)
}

// Select0 returns the position of the (rank+1)-th zero.
func (d *Dictionary) Select0(rank uint64) uint64 {
	if rank >= d.ZeroNum() {
		return d.num
	}
	return d.selectBit(rank, false)
}

func (d *Dictionary) selectBit(rank uint64, bit bool) uint64 {
	t := codes()

	// L3: last block whose preceding count is <= rank.
	sp, ep := int64(0), int64(d.rankL3.Len())-1
	for sp <= ep {
		m := (sp + ep) / 2
		if bitNum(d.rankL3.Get(uint64(m)), uint64(m)<<l3Shift, bit) <= rank {
			sp = m + 1
		} else {
			ep = m - 1
		}
	}
	ep = max(ep, 0)
	l3 := uint64(ep)
	rank -= bitNum(d.rankL3.Get(l3), l3<<l3Shift, bit)

	// L2 within the L3 block.
	lo := int64(l3 * l2PerL3)
	sp, ep = lo, min(int64(d.rankL12.Len()), lo+l2PerL3)-1
	for sp <= ep {
		m := (sp + ep) / 2
		if bitNum(d.rankL12.Get(uint64(m))>>l12HighShift, uint64(m)<<l2Shift-l3<<l3Shift, bit) <= rank {
			sp = m + 1
		} else {
			ep = m - 1
		}
	}
	ep = max(ep, lo)
	l2 := uint64(ep)
	rw := d.rankL12.Get(l2)
	pw := d.posL12.Get(l2)
	rank -= bitNum(rw>>l12HighShift, l2<<l2Shift-l3<<l3Shift, bit)
	ptr := d.posL3.Get(l3) + pw>>l12HighShift
	pos := l2 << l2Shift

	// L1 sub-blocks.
	for s := 0; s < 3; s++ {
		c := bitNum((rw>>l1Shifts[s])&l1DeltaMask, l1BlockSize, bit)
		if rank < c {
			break
		}
		rank -= c
		ptr += (pw >> l1Shifts[s]) & l1DeltaMask
		pos += l1BlockSize
	}

	// Chunks.
	for {
		c := d.code.LookupAtPos(ptr, classWidth)
		n := bitNum(c, chunkSize, bit)
		if rank < n {
			break
		}
		rank -= n
		ptr += t.chunkCodeLen(c)
		pos += chunkSize
	}

	c := d.code.LookupAtPos(ptr, classWidth)
	v := uint64(t.decode[c][d.code.LookupAtPos(ptr+classWidth, t.offbits[c])])
	if !bit {
		v = ^v
	}
	for b := uint64(0); b < chunkSize; b++ {
		if (v>>b)&1 == 1 {
			if rank == 0 {
				return pos + b
			}
			rank--
		}
	}
	return d.num
}

// AllocSize returns the allocated size in bytes.
func (d *Dictionary) AllocSize() uint64 {
	return 8 +
		d.rankL3.Len()*8 +
		d.posL3.Len()*8 +
		d.rankL12.Len()*8 +
		d.posL12.Len()*8 +
		d.code.StorageSize()
}

type dictionaryImage struct {
	Num     uint64
	RankL3  []uint64
	PosL3   []uint64
	RankL12 []uint64
	PosL12  []uint64
	CodeLen uint64
	Code    []uint64
}

func wordsOf(w Words) []uint64 {
	out := make([]uint64, w.Len())
	for i := range out {
		out[i] = w.Get(uint64(i))
	}
	return out
}

// MarshalBinary encodes the Dictionary into a msgpack form and returns the result.
func (d *Dictionary) MarshalBinary() (out []byte, err error) {
	var bh codec.MsgpackHandle
	enc := codec.NewEncoderBytes(&out, &bh)
	err = enc.Encode(dictionaryImage{
		Num:     d.num,
		RankL3:  wordsOf(d.rankL3),
		PosL3:   wordsOf(d.posL3),
		RankL12: wordsOf(d.rankL12),
		PosL12:  wordsOf(d.posL12),
		CodeLen: d.code.size,
		Code:    wordsOf(d.code.words),
	})
	return
}

// UnmarshalBinary decodes the Dictionary from a form generated by MarshalBinary.
func (d *Dictionary) UnmarshalBinary(in []byte) (err error) {
	var bh codec.MsgpackHandle
	var img dictionaryImage
	dec := codec.NewDecoderBytes(in, &bh)
	if err = dec.Decode(&img); err != nil {
		return
	}
	if uint64(len(img.Code)) < ceilDiv(img.CodeLen, wordSize) ||
		uint64(len(img.RankL12)) != numL2(img.Num) || uint64(len(img.PosL12)) != numL2(img.Num) ||
		uint64(len(img.RankL3)) != numL3(img.Num) || uint64(len(img.PosL3)) != numL3(img.Num) {
		return invariants.Errorf("malformed dictionary image")
	}
	*d = Dictionary{
		num:     img.Num,
		rankL3:  OwnedWords(img.RankL3),
		posL3:   OwnedWords(img.PosL3),
		rankL12: OwnedWords(img.RankL12),
		posL12:  OwnedWords(img.PosL12),
		code:    &BitMap{size: img.CodeLen, words: OwnedWords(img.Code)},
	}
	if err = d.validate(); err != nil {
		return
	}
	d.oneNum = d.countOnes()
	return nil
}

func (d *Dictionary) countOnes() uint64 {
	if d.num == 0 {
		return 0
	}
	return d.Rank1(d.num - 1)
}

// validate checks that the checkpoints of a decoded Dictionary point inside
// its code and never decrease.
func (d *Dictionary) validate() error {
	if d.num == 0 {
		return nil
	}
	size := d.code.Size()
	if d.code.words.Len() < ceilDiv(size, wordSize) {
		return errors.Errorf("dictionary code of %d bits backed by %d words", size, d.code.words.Len())
	}
	for l3 := uint64(0); l3 < d.posL3.Len(); l3++ {
		if d.posL3.Get(l3) >= size {
			return errors.Errorf("L3 pointer %d past code of %d bits", d.posL3.Get(l3), size)
		}
		if l3 > 0 && d.rankL3.Get(l3) < d.rankL3.Get(l3-1) {
			return errors.Errorf("L3 rank decreases at block %d", l3)
		}
	}

	var prevRank, prevPtr uint64
	for l2 := uint64(0); l2 < d.rankL12.Len(); l2++ {
		l3 := l2 / l2PerL3
		rw, pw := d.rankL12.Get(l2), d.posL12.Get(l2)
		rank, ptr := rw>>l12HighShift, d.posL3.Get(l3)+pw>>l12HighShift
		if l2%l2PerL3 == 0 {
			prevRank, prevPtr = 0, d.posL3.Get(l3)
		}
		if rank < prevRank || ptr < prevPtr || ptr >= size || rank > (l2%l2PerL3)<<l2Shift {
			return errors.Errorf("L2 checkpoint %d out of range", l2)
		}
		for s := 0; s < 3; s++ {
			dr := (rw >> l1Shifts[s]) & l1DeltaMask
			if dr > l1BlockSize {
				return errors.Errorf("L1 rank %d of block %d exceeds %d", dr, l2, l1BlockSize)
			}
			rank += dr
			ptr += (pw >> l1Shifts[s]) & l1DeltaMask
		}
		if ptr > size {
			return errors.Errorf("L1 pointer of block %d past code of %d bits", l2, size)
		}
		prevRank, prevPtr = rank, ptr
	}
	return nil
}
