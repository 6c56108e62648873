package npa

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

type fixture struct {
	text []byte
	next []uint64
	in   BuildInput
}

// newFixture sorts the rotations of text+"\x00" naively.
func newFixture(text string) *fixture {
	t := append([]byte(text), 0)
	n := uint64(len(t))
	sa := make([]uint64, n)
	for i := range sa {
		sa[i] = uint64(i)
	}
	sort.Slice(sa, func(a, b int) bool {
		return bytes.Compare(t[sa[a]:], t[sa[b]:]) < 0
	})
	isa := make([]uint64, n)
	for i, p := range sa {
		isa[p] = uint64(i)
	}
	width := bitmap.WidthFor(n)
	f := &fixture{text: t, next: make([]uint64, n)}
	saP, isaP, nextP := bitmap.NewPacked(n, width), bitmap.NewPacked(n, width), bitmap.NewPacked(n, width)
	var offsets []uint64
	for i := uint64(0); i < n; i++ {
		saP.Set(i, sa[i])
		isaP.Set(i, isa[i])
		f.next[i] = isa[(sa[i]+1)%n]
		nextP.Set(i, f.next[i])
		if i == 0 || t[sa[i]] != t[sa[i-1]] {
			offsets = append(offsets, i)
		}
	}
	offsets = append(offsets, n)
	f.in = BuildInput{
		Size:         n,
		ColOffsets:   offsets,
		Next:         nextP,
		Text:         t,
		SA:           saP,
		ISA:          isaP,
		ContextLen:   3,
		SamplingRate: 4,
		Workers:      3,
	}
	return f
}

func randomText(r *rand.Rand, n int, alphabet string) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

func naiveSearch(next []uint64, val uint64, lo, hi int64, roundUp bool) int64 {
	if roundUp {
		for p := lo; p <= hi; p++ {
			if next[p] >= val {
				return p
			}
		}
		return hi + 1
	}
	for p := hi; p >= lo; p-- {
		if next[p] <= val {
			return p
		}
	}
	return lo - 1
}

func checkNPA(f *fixture, a NPA) {
	So(a.Size(), ShouldEqual, uint64(len(f.text)))
	for i, want := range f.next {
		if got := a.Lookup(uint64(i)); got != want {
			So(got, ShouldEqual, want)
		}
	}
	offsets := a.ColOffsets()
	for c := 0; c+1 < len(offsets); c++ {
		for i := offsets[c]; i < offsets[c+1]; i++ {
			if a.LookupC(i) != uint64(c) {
				So(a.LookupC(i), ShouldEqual, c)
			}
		}
	}
}

func checkBinarySearch(f *fixture, a NPA) {
	offsets := a.ColOffsets()
	n := uint64(len(f.text))
	for c := 0; c+1 < len(offsets); c++ {
		lo, hi := int64(offsets[c]), int64(offsets[c+1])-1
		for _, sub := range [][2]int64{{lo, hi}, {lo + 1, hi}, {lo, hi - 2}, {(lo + hi) / 2, hi}} {
			if sub[0] > sub[1] {
				continue
			}
			for val := uint64(0); val <= n; val++ {
				for _, up := range []bool{false, true} {
					want := naiveSearch(f.next, val, sub[0], sub[1], up)
					if got := a.BinarySearch(val, sub[0], sub[1], up); got != want {
						So(got, ShouldEqual, want)
					}
				}
			}
		}
	}
}

func TestEncodings(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	texts := []string{
		"banana",
		"mississippi",
		"a",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		randomText(r, 300, "ab"),
		randomText(r, 500, "acgt"),
		randomText(r, 400, "the quick brown fox jumps over the lazy dog"),
	}

	for _, scheme := range []EncodingScheme{EliasGamma, EliasDelta, WaveletTree} {
		Convey("Given the "+scheme.String()+" encoding", t, func() {
			for _, text := range texts {
				f := newFixture(text)
				a, err := Build(scheme, f.in)
				So(err, ShouldBeNil)
				So(a.Scheme(), ShouldEqual, scheme)

				checkNPA(f, a)
				checkBinarySearch(f, a)
				So(a.StorageSize(), ShouldBeGreaterThan, 0)

				var buf bytes.Buffer
				enc := codec.NewEncoder(&buf)
				So(a.Serialize(enc), ShouldBeNil)
				So(enc.Flush(), ShouldBeNil)

				dec := codec.NewDecoder(buf.Bytes(), false)
				got, err := Read(dec)
				So(err, ShouldBeNil)
				So(dec.Remaining(), ShouldEqual, 0)
				checkNPA(f, got)
				if w, ok := got.(*WaveletEncoded); ok {
					So(w.ContextLen(), ShouldEqual, f.in.ContextLen)
				}

				mapped, err := Read(codec.NewDecoder(buf.Bytes(), true))
				if scheme == WaveletTree {
					So(errors.Is(err, ErrMemoryMapUnsupported), ShouldBeTrue)
					So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)
				} else {
					So(err, ShouldBeNil)
					checkNPA(f, mapped)
				}
			}
		})
	}

	Convey("Sampling rates change the layout, not the values", t, func() {
		f := newFixture(randomText(r, 600, "xyz"))
		for _, rate := range []uint32{1, 2, 3, 16, 1024} {
			f.in.SamplingRate = rate
			for _, scheme := range []EncodingScheme{EliasGamma, EliasDelta} {
				a, err := Build(scheme, f.in)
				So(err, ShouldBeNil)
				So(a.SamplingRate(), ShouldEqual, rate)
				checkNPA(f, a)
			}
		}
	})

	Convey("Malformed input is rejected", t, func() {
		f := newFixture("banana")
		in := f.in
		in.SamplingRate = 0
		_, err := Build(EliasGamma, in)
		So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)

		in = f.in
		in.ContextLen = 9
		_, err = Build(WaveletTree, in)
		So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)

		_, err = Build(EncodingScheme(9), f.in)
		So(err, ShouldNotBeNil)
	})
}

func TestCodes(t *testing.T) {
	Convey("Gamma and delta codes round trip", t, func() {
		vals := []uint64{1, 2, 3, 4, 7, 8, 100, 255, 256, 65535, 1 << 20, 1<<40 + 17}
		for _, c := range []coder{gammaCoder{}, deltaCoder{}} {
			var total uint64
			for _, v := range vals {
				total += c.length(v)
			}
			b := bitmap.New(total)
			var pos uint64
			for _, v := range vals {
				w := c.encode(b, pos, v)
				So(w, ShouldEqual, c.length(v))
				pos += w
			}
			pos = 0
			var want uint64
			for i, v := range vals {
				got, w := c.decode(b, pos)
				So(got, ShouldEqual, v)
				want += v
				sum, end := c.sum(b, 0, uint64(i+1))
				So(sum, ShouldEqual, want)
				So(end, ShouldEqual, pos+w)
				pos += w
			}
		}
	})

	Convey("Code lengths follow the Elias bounds", t, func() {
		So(gammaCoder{}.length(1), ShouldEqual, 1)
		So(gammaCoder{}.length(5), ShouldEqual, 5)
		So(deltaCoder{}.length(1), ShouldEqual, 1)
		So(deltaCoder{}.length(16), ShouldEqual, 4+2*2+1)
	})

	Convey("The prefix sum table covers runs of short codes", t, func() {
		e := prefixSums()[0xffff]
		So(e.count(), ShouldEqual, 16)
		So(e.sum(), ShouldEqual, 16)
		So(e.bits(), ShouldEqual, 16)
		So(prefixSums()[0].count(), ShouldEqual, 0)
	})
}
