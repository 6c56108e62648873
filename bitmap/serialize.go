package bitmap

import (
	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/internal/codec"
)

// WriteBitMap writes [size in bits][words]. A nil bitmap is written as size 0.
func WriteBitMap(enc *codec.Encoder, b *BitMap) {
	if b == nil {
		enc.Uint64(0)
		return
	}
	enc.Uint64(b.size)
	n := ceilDiv(b.size, wordSize)
	for i := uint64(0); i < n; i++ {
		enc.Uint64(b.words.Get(i))
	}
}

// ReadBitMap reads a bitmap written by WriteBitMap. Size 0 yields nil. With
// an aliasing decoder the bitmap views the decoder's buffer.
func ReadBitMap(dec *codec.Decoder) (*BitMap, error) {
	size := dec.Uint64()
	if dec.Err() != nil {
		return nil, errors.Wrap(dec.Err(), "read bitmap size")
	}
	if size == 0 {
		return nil, nil
	}
	owned, mapped := dec.Words(ceilDiv(size, wordSize))
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read bitmap words")
	}
	return &BitMap{size: size, words: Words{owned: owned, mapped: mapped}}, nil
}

// WritePacked writes [count][width][bitmap].
func WritePacked(enc *codec.Encoder, p *Packed) {
	enc.Uint64(p.n)
	enc.Uint8(p.width)
	WriteBitMap(enc, p.bm)
}

// ReadPacked reads an array written by WritePacked.
func ReadPacked(dec *codec.Decoder) (*Packed, error) {
	n := dec.Uint64()
	width := dec.Uint8()
	bm, err := ReadBitMap(dec)
	if err != nil {
		return nil, errors.Wrap(err, "read packed array")
	}
	if bm == nil {
		bm = New(0)
	}
	if width > wordSize {
		return nil, errors.Errorf("packed array width %d exceeds %d bits", width, wordSize)
	}
	if width > 0 && n > bm.Size()/uint64(width) {
		return nil, errors.Errorf("packed array of %d x %d bits backed by %d bits", n, width, bm.Size())
	}
	return &Packed{bm: bm, n: n, width: width}, nil
}

func writeWords(enc *codec.Encoder, w Words) {
	for i := uint64(0); i < w.Len(); i++ {
		enc.Uint64(w.Get(i))
	}
}

func readWords(dec *codec.Decoder, n uint64) Words {
	owned, mapped := dec.Words(n)
	return Words{owned: owned, mapped: mapped}
}

// WriteDictionary writes [size][rank_l3][rank_l12][pos_l3][pos_l12][bitmap].
// The checkpoint array lengths follow from size.
func WriteDictionary(enc *codec.Encoder, d *Dictionary) {
	enc.Uint64(d.num)
	writeWords(enc, d.rankL3)
	writeWords(enc, d.rankL12)
	writeWords(enc, d.posL3)
	writeWords(enc, d.posL12)
	WriteBitMap(enc, d.code)
}

// ReadDictionary reads a dictionary written by WriteDictionary.
func ReadDictionary(dec *codec.Decoder) (*Dictionary, error) {
	d := &Dictionary{num: dec.Uint64()}
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read dictionary size")
	}
	d.rankL3 = readWords(dec, numL3(d.num))
	d.rankL12 = readWords(dec, numL2(d.num))
	d.posL3 = readWords(dec, numL3(d.num))
	d.posL12 = readWords(dec, numL2(d.num))
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read dictionary checkpoints")
	}
	code, err := ReadBitMap(dec)
	if err != nil {
		return nil, errors.Wrap(err, "read dictionary code")
	}
	if code == nil {
		code = New(0)
	}
	d.code = code
	if err := d.validate(); err != nil {
		return nil, errors.Wrap(err, "read dictionary")
	}
	d.oneNum = d.countOnes()
	return d, nil
}
