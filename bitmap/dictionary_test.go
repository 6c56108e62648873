package bitmap

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vsivsi/succinct/internal/codec"
)

func randomBitMap(r *rand.Rand, n uint64, density float64) *BitMap {
	b := New(n)
	for i := uint64(0); i < n; i++ {
		if r.Float64() < density {
			b.SetBit(i)
		}
	}
	return b
}

func checkDictionary(b *BitMap, d *Dictionary) {
	n := b.Size()
	So(d.Num(), ShouldEqual, n)
	var ones, zeros uint64
	for i := uint64(0); i < n; i++ {
		bit := b.GetBit(i)
		if bit {
			ones++
		} else {
			zeros++
		}
		if d.Rank1(i) != ones || d.Rank0(i) != zeros || d.Bit(i) != bit {
			So(d.Rank1(i), ShouldEqual, ones)
			So(d.Rank0(i), ShouldEqual, zeros)
			So(d.Bit(i), ShouldEqual, bit)
		}
		if bit && d.Select1(ones-1) != i {
			So(d.Select1(ones-1), ShouldEqual, i)
		}
		if !bit && d.Select0(zeros-1) != i {
			So(d.Select0(zeros-1), ShouldEqual, i)
		}
	}
	So(d.OneNum(), ShouldEqual, ones)
	So(d.ZeroNum(), ShouldEqual, zeros)
	So(d.Select1(ones), ShouldEqual, n)
	So(d.Select0(zeros), ShouldEqual, n)
}

func TestDictionary(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	Convey("Rank and select agree with a naive scan", t, func() {
		for _, n := range []uint64{1, 15, 16, 17, 511, 512, 2047, 2048, 2049, 10000} {
			for _, density := range []float64{0, 0.01, 0.5, 0.99, 1} {
				b := randomBitMap(r, n, density)
				checkDictionary(b, NewDictionary(b))
			}
		}
	})

	Convey("Runs of zeros and ones compress", t, func() {
		b := New(1 << 16)
		for i := uint64(1 << 15); i < 1<<16; i++ {
			b.SetBit(i)
		}
		d := NewDictionary(b)
		checkDictionary(b, d)
		So(d.code.Size(), ShouldEqual, (1<<16)/chunkSize*classWidth)
	})

	Convey("Bits past the size of an all-ones bitmap are ignored", t, func() {
		b := NewSet(100)
		d := NewDictionary(b)
		So(d.OneNum(), ShouldEqual, 100)
		checkDictionary(b, d)
	})

	Convey("Rank is monotonic", t, func() {
		b := randomBitMap(r, 5000, 0.3)
		d := NewDictionary(b)
		prev := uint64(0)
		for i := uint64(0); i < 5000; i++ {
			So(d.Rank1(i), ShouldBeGreaterThanOrEqualTo, prev)
			prev = d.Rank1(i)
		}
	})

	Convey("Wire format round trips with and without aliasing", t, func() {
		b := randomBitMap(r, 7000, 0.2)
		d := NewDictionary(b)
		var buf bytes.Buffer
		enc := codec.NewEncoder(&buf)
		WriteDictionary(enc, d)
		So(enc.Flush(), ShouldBeNil)

		for _, alias := range []bool{false, true} {
			dec := codec.NewDecoder(buf.Bytes(), alias)
			got, err := ReadDictionary(dec)
			So(err, ShouldBeNil)
			So(dec.Remaining(), ShouldEqual, 0)
			checkDictionary(b, got)
		}
	})

	Convey("Damaged checkpoints are rejected on read", t, func() {
		b := randomBitMap(r, 7000, 0.2)
		var buf bytes.Buffer
		enc := codec.NewEncoder(&buf)
		WriteDictionary(enc, NewDictionary(b))
		So(enc.Flush(), ShouldBeNil)

		// 7000 bits: one L3 word and four L12 words per checkpoint array.
		const rankL12At, posL3At, posL12At = 16, 48, 56
		damage := []func(raw []byte){
			func(raw []byte) { binary.LittleEndian.PutUint64(raw[posL3At:], 1<<40) },
			func(raw []byte) { raw[posL12At+2*8+7] |= 0x40 },
			func(raw []byte) {
				w := binary.LittleEndian.Uint64(raw[rankL12At+8:])
				binary.LittleEndian.PutUint64(raw[rankL12At+8:], w&(1<<32-1)|2048<<32)
			},
			func(raw []byte) { binary.LittleEndian.PutUint64(raw[rankL12At:], l1DeltaMask<<l1Shifts[0]) },
		}
		for _, f := range damage {
			raw := append([]byte(nil), buf.Bytes()...)
			f(raw)
			_, err := ReadDictionary(codec.NewDecoder(raw, false))
			So(err, ShouldNotBeNil)
		}

		d := NewDictionary(b)
		d.posL3 = OwnedWords([]uint64{1 << 40})
		out, err := d.MarshalBinary()
		So(err, ShouldBeNil)
		var got Dictionary
		So(got.UnmarshalBinary(out), ShouldNotBeNil)
	})

	Convey("MarshalBinary round trips", t, func() {
		b := randomBitMap(r, 3000, 0.7)
		d := NewDictionary(b)
		out, err := d.MarshalBinary()
		So(err, ShouldBeNil)
		var got Dictionary
		So(got.UnmarshalBinary(out), ShouldBeNil)
		checkDictionary(b, &got)
		So(got.AllocSize(), ShouldEqual, d.AllocSize())
	})

	Convey("An empty dictionary", t, func() {
		d := NewDictionary(New(0))
		So(d.Num(), ShouldEqual, 0)
		So(d.OneNum(), ShouldEqual, 0)
		So(d.Select1(0), ShouldEqual, 0)
	})
}
