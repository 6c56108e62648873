package bitmap

import (
	"bytes"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

func TestBitMap(t *testing.T) {
	Convey("Given a zeroed bitmap", t, func() {
		b := New(1000)
		So(b.Size(), ShouldEqual, 1000)
		So(b.Words().Len(), ShouldEqual, 16)

		Convey("Fields written across word boundaries read back", func() {
			for i := uint64(0); i < 100; i++ {
				b.SetArray(i, i*7%1024, 10)
			}
			for i := uint64(0); i < 100; i++ {
				So(b.LookupArray(i, 10), ShouldEqual, i*7%1024)
			}
		})

		Convey("Overwriting a field replaces its old value", func() {
			b.SetAtPos(60, 0xff, 8)
			b.SetAtPos(60, 0x0f, 8)
			So(b.LookupAtPos(60, 8), ShouldEqual, 0x0f)
			So(b.LookupAtPos(56, 4), ShouldEqual, 0)
			So(b.LookupAtPos(68, 4), ShouldEqual, 0)
		})

		Convey("Values wider than the field are truncated", func() {
			b.SetArray(3, 0x1ff, 8)
			So(b.LookupArray(3, 8), ShouldEqual, 0xff)
			So(b.LookupArray(4, 8), ShouldEqual, 0)
		})

		Convey("Width zero always reads zero", func() {
			b.SetArray(5, 1, 0)
			So(b.LookupArray(5, 0), ShouldEqual, 0)
		})

		Convey("Full words can be stored", func() {
			b.SetArray(3, ^uint64(0), 64)
			So(b.LookupArray(3, 64), ShouldEqual, ^uint64(0))
			So(b.LookupArray(2, 64), ShouldEqual, 0)
			b.SetAtPos(100, 0xdeadbeefcafebabe, 64)
			So(b.LookupAtPos(100, 64), ShouldEqual, uint64(0xdeadbeefcafebabe))
		})

		Convey("Single bits can be set and cleared", func() {
			b.SetBit(999)
			So(b.GetBit(999), ShouldBeTrue)
			b.ClearBit(999)
			So(b.GetBit(999), ShouldBeFalse)
		})
	})

	Convey("NewSet sets every bit", t, func() {
		b := NewSet(130)
		for i := uint64(0); i < 130; i++ {
			So(b.GetBit(i), ShouldBeTrue)
		}

		Convey("Clear zeroes them again", func() {
			b.Clear()
			for i := uint64(0); i < 130; i++ {
				So(b.GetBit(i), ShouldBeFalse)
			}
			So(b.Size(), ShouldEqual, 130)
		})
	})

	Convey("Serialization round trips", t, func() {
		b := New(333)
		for i := uint64(0); i < 333; i += 3 {
			b.SetBit(i)
		}
		var buf bytes.Buffer
		enc := codec.NewEncoder(&buf)
		WriteBitMap(enc, b)
		WriteBitMap(enc, nil)
		So(enc.Flush(), ShouldBeNil)
		So(buf.Len(), ShouldEqual, 8+6*8+8)

		for _, alias := range []bool{false, true} {
			dec := codec.NewDecoder(buf.Bytes(), alias)
			got, err := ReadBitMap(dec)
			So(err, ShouldBeNil)
			So(got.Size(), ShouldEqual, 333)
			So(got.Words().Mapped(), ShouldEqual, alias)
			for i := uint64(0); i < 333; i++ {
				So(got.GetBit(i), ShouldEqual, i%3 == 0)
			}
			null, err := ReadBitMap(dec)
			So(err, ShouldBeNil)
			So(null, ShouldBeNil)
			So(dec.Remaining(), ShouldEqual, 0)
		}

		Convey("Mapped bitmaps refuse writes", func() {
			got, err := ReadBitMap(codec.NewDecoder(buf.Bytes(), true))
			So(err, ShouldBeNil)
			defer func() {
				So(invariants.IsViolation(recover()), ShouldBeTrue)
			}()
			got.SetBit(1)
		})
	})

	Convey("Truncated input fails", t, func() {
		var buf bytes.Buffer
		enc := codec.NewEncoder(&buf)
		WriteBitMap(enc, NewSet(200))
		So(enc.Flush(), ShouldBeNil)
		_, err := ReadBitMap(codec.NewDecoder(buf.Bytes()[:20], false))
		So(err, ShouldNotBeNil)
	})
}

func TestPacked(t *testing.T) {
	Convey("Packed arrays hold fixed-width values", t, func() {
		r := rand.New(rand.NewSource(1))
		vals := make([]uint64, 500)
		for i := range vals {
			vals[i] = uint64(r.Intn(1 << 17))
		}
		p := NewPacked(500, 17)
		for i, v := range vals {
			p.Set(uint64(i), v)
		}
		for i, v := range vals {
			So(p.Get(uint64(i)), ShouldEqual, v)
		}

		var buf bytes.Buffer
		enc := codec.NewEncoder(&buf)
		WritePacked(enc, p)
		So(enc.Flush(), ShouldBeNil)
		got, err := ReadPacked(codec.NewDecoder(buf.Bytes(), true))
		So(err, ShouldBeNil)
		So(got.Len(), ShouldEqual, 500)
		So(got.Width(), ShouldEqual, 17)
		for i, v := range vals {
			So(got.Get(uint64(i)), ShouldEqual, v)
		}

		Convey("Headers the bitmap cannot back are rejected", func() {
			raw := append([]byte(nil), buf.Bytes()...)
			raw[8] = 65
			_, err := ReadPacked(codec.NewDecoder(raw, false))
			So(err, ShouldNotBeNil)

			raw = append([]byte(nil), buf.Bytes()...)
			raw[7] = 0x80
			_, err = ReadPacked(codec.NewDecoder(raw, false))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("WidthFor and IsPowerOfTwo", t, func() {
		So(WidthFor(0), ShouldEqual, 0)
		So(WidthFor(1), ShouldEqual, 1)
		So(WidthFor(255), ShouldEqual, 8)
		So(WidthFor(256), ShouldEqual, 9)
		So(IsPowerOfTwo(64), ShouldBeTrue)
		So(IsPowerOfTwo(0), ShouldBeFalse)
		So(IsPowerOfTwo(12), ShouldBeFalse)
	})
}
