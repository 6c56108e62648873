package sampledarray

import (
	"bytes"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

type slice []uint64

func (s slice) Get(i uint64) uint64 { return s[i] }
func (s slice) Len() uint64         { return uint64(len(s)) }
func (s slice) Lookup(i uint64) uint64 {
	return s[i]
}

type fixture struct {
	sa, isa, next slice
}

func newFixture(r *rand.Rand, n int, alphabet string) *fixture {
	t := make([]byte, n+1)
	for i := 0; i < n; i++ {
		t[i] = alphabet[r.Intn(len(alphabet))]
	}
	f := &fixture{sa: make(slice, n+1), isa: make(slice, n+1), next: make(slice, n+1)}
	for i := range f.sa {
		f.sa[i] = uint64(i)
	}
	sort.Slice(f.sa, func(a, b int) bool {
		return bytes.Compare(t[f.sa[a]:], t[f.sa[b]:]) < 0
	})
	for i, p := range f.sa {
		f.isa[p] = uint64(i)
	}
	for i, p := range f.sa {
		f.next[i] = f.isa[(p+1)%uint64(len(t))]
	}
	return f
}

func (f *fixture) pair(scheme Scheme, rate, target uint32) (SampledArray, SampledArray, error) {
	switch scheme {
	case FlatSampleByIndex:
		sa, err := NewFlatIndex(SA, f.sa, rate, f.next)
		if err != nil {
			return nil, nil, err
		}
		isa, err := NewFlatIndex(ISA, f.isa, rate, f.next)
		return sa, isa, err
	case FlatSampleByValue:
		sa, err := NewFlatValueSA(f.sa, rate, f.next)
		if err != nil {
			return nil, nil, err
		}
		isa, err := NewFlatValueISA(f.isa, rate, sa.Dictionary(), f.next)
		return sa, isa, err
	case LayeredSampleByIndex:
		sa, err := NewLayered(SA, f.sa, target, rate, f.next)
		if err != nil {
			return nil, nil, err
		}
		isa, err := NewLayered(ISA, f.isa, target, rate, f.next)
		return sa, isa, err
	default:
		sa, err := NewOpportunistic(SA, f.sa, target, rate, f.next)
		if err != nil {
			return nil, nil, err
		}
		isa, err := NewOpportunistic(ISA, f.isa, target, rate, f.next)
		return sa, isa, err
	}
}

func (f *fixture) check(sa, isa SampledArray) {
	So(sa.Size(), ShouldEqual, f.sa.Len())
	So(isa.Size(), ShouldEqual, f.isa.Len())
	for i := range f.sa {
		if got := sa.Lookup(uint64(i)); got != f.sa[i] {
			So(got, ShouldEqual, f.sa[i])
		}
		if got := isa.Lookup(uint64(i)); got != f.isa[i] {
			So(got, ShouldEqual, f.isa[i])
		}
	}
}

func roundTrip(sa, isa SampledArray, next NextPointer, alias bool) (SampledArray, SampledArray) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	So(WritePair(enc, sa, isa), ShouldBeNil)
	So(enc.Flush(), ShouldBeNil)
	So(uint64(buf.Len()), ShouldEqual, PairStorageSize(sa, isa))

	dec := codec.NewDecoder(buf.Bytes(), alias)
	gotSA, gotISA, err := ReadPair(dec, next, sa.Size())
	So(err, ShouldBeNil)
	So(dec.Remaining(), ShouldEqual, 0)
	So(gotSA.Scheme(), ShouldEqual, sa.Scheme())
	So(gotISA.Kind(), ShouldEqual, ISA)

	_, _, err = ReadPair(codec.NewDecoder(buf.Bytes(), alias), next, sa.Size()+1)
	So(err, ShouldNotBeNil)
	return gotSA, gotISA
}

func TestSchemes(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	fixtures := []*fixture{
		newFixture(r, 6, "abn"),
		newFixture(r, 1, "a"),
		newFixture(r, 257, "ab"),
		newFixture(r, 1000, "acgt"),
	}
	schemes := []Scheme{FlatSampleByIndex, FlatSampleByValue, LayeredSampleByIndex, OpportunisticLayeredSampleByIndex}

	for _, scheme := range schemes {
		Convey("Given arrays sampled with "+scheme.String(), t, func() {
			for _, f := range fixtures {
				for _, rate := range []uint32{2, 8, 32} {
					sa, isa, err := f.pair(scheme, rate, 1)
					So(err, ShouldBeNil)
					So(sa.Kind(), ShouldEqual, SA)
					So(sa.Scheme(), ShouldEqual, scheme)

					f.check(sa, isa)
					for i := range f.sa {
						So(sa.Lookup(isa.Lookup(uint64(i))), ShouldEqual, i)
					}

					gotSA, gotISA := roundTrip(sa, isa, f.next, false)
					f.check(gotSA, gotISA)
					gotSA, gotISA = roundTrip(sa, isa, f.next, true)
					f.check(gotSA, gotISA)
				}
			}
		})
	}

	Convey("Sampled indices are answered without walking", t, func() {
		f := fixtures[3]
		sa, isa, err := f.pair(FlatSampleByIndex, 16, 0)
		So(err, ShouldBeNil)
		So(sa.IsSampled(32), ShouldBeTrue)
		So(sa.IsSampled(33), ShouldBeFalse)
		So(isa.SamplingRate(), ShouldEqual, 16)

		sa, isa, err = f.pair(FlatSampleByValue, 16, 0)
		So(err, ShouldBeNil)
		for i := range f.sa {
			So(sa.IsSampled(uint64(i)), ShouldEqual, f.sa[i]%16 == 0)
		}
		So(isa.IsSampled(48), ShouldBeTrue)
	})

	Convey("Invalid rates are rejected", t, func() {
		f := fixtures[2]
		_, _, err := f.pair(FlatSampleByIndex, 0, 0)
		So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)
		_, _, err = f.pair(FlatSampleByValue, 12, 0)
		So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)
		_, _, err = f.pair(LayeredSampleByIndex, 8, 8)
		So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)
		_, _, err = f.pair(OpportunisticLayeredSampleByIndex, 8, 3)
		So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)

		sa, err := NewFlatValueSA(f.sa, 8, f.next)
		So(err, ShouldBeNil)
		_, err = NewFlatValueISA(f.isa, 16, sa.Dictionary(), f.next)
		So(errors.Is(err, invariants.ErrPrecondition), ShouldBeTrue)
	})

	Convey("Lookups out of range panic with a precondition violation", t, func() {
		f := fixtures[0]
		sa, _, err := f.pair(FlatSampleByIndex, 2, 0)
		So(err, ShouldBeNil)
		defer func() {
			So(invariants.IsViolation(recover()), ShouldBeTrue)
		}()
		sa.Lookup(sa.Size())
	})
}

func TestLayout(t *testing.T) {
	Convey("Every multiple of the target rate has exactly one slot", t, func() {
		g, err := newLayout(1000, 4, 64)
		So(err, ShouldBeNil)
		So(g.numLayers(), ShouldEqual, 5)
		seen := map[[2]uint64]bool{}
		for p := uint64(0); p < 1000; p += 4 {
			l, e := g.locate(p)
			So(e, ShouldBeLessThan, g.slots(l))
			So(g.position(l, e), ShouldEqual, p)
			key := [2]uint64{uint64(l), e}
			So(seen[key], ShouldBeFalse)
			seen[key] = true
		}
		var total uint64
		for l := 0; l < g.numLayers(); l++ {
			total += g.validSlots(l)
		}
		So(total, ShouldEqual, 250)

		l, _ := g.locate(64)
		So(l, ShouldEqual, 0)
		l, _ = g.locate(32)
		So(l, ShouldEqual, 1)
		l, _ = g.locate(4)
		So(l, ShouldEqual, 4)
	})
}

func TestLayers(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	f := newFixture(r, 700, "abcd")

	Convey("Given layered arrays", t, func() {
		sa, isa, err := f.pair(LayeredSampleByIndex, 32, 2)
		So(err, ShouldBeNil)
		layers := []LayeredArray{sa.(LayeredArray), isa.(LayeredArray)}

		Convey("Destroying and rebuilding layers keeps every value", func() {
			for _, a := range layers {
				So(a.NumLayers(), ShouldEqual, 5)
				for l := 1; l < a.NumLayers(); l++ {
					So(a.ReconstructLayer(l), ShouldBeNil)
					So(a.DestroyLayer(l), ShouldBeNil)
					So(a.IsLayerExistent(l), ShouldBeFalse)
				}
			}
			f.check(sa, isa)
			So(sa.IsSampled(2), ShouldBeFalse)

			for _, a := range layers {
				for l := a.NumLayers() - 1; l >= 1; l-- {
					So(a.ReconstructLayer(l), ShouldBeNil)
					So(a.IsLayerExistent(l), ShouldBeTrue)
					f.check(sa, isa)
				}
			}
			So(sa.IsSampled(2), ShouldBeTrue)
		})

		Convey("Destroyed layers survive serialization", func() {
			So(layers[0].DestroyLayer(2), ShouldBeNil)
			So(layers[1].DestroyLayer(4), ShouldBeNil)
			gotSA, gotISA := roundTrip(sa, isa, f.next, true)
			So(gotSA.(LayeredArray).IsLayerExistent(2), ShouldBeFalse)
			So(gotISA.(LayeredArray).IsLayerExistent(4), ShouldBeFalse)
			f.check(gotSA, gotISA)
			So(gotISA.(LayeredArray).ReconstructLayer(4), ShouldBeNil)
			f.check(gotSA, gotISA)
		})

		Convey("Layer 0 and unknown layers are rejected", func() {
			for _, a := range layers {
				So(errors.Is(a.DestroyLayer(0), invariants.ErrPrecondition), ShouldBeTrue)
				So(errors.Is(a.DestroyLayer(5), invariants.ErrPrecondition), ShouldBeTrue)
				So(errors.Is(a.ReconstructLayer(-1), invariants.ErrPrecondition), ShouldBeTrue)
				So(a.IsLayerExistent(0), ShouldBeTrue)
				So(a.IsLayerExistent(9), ShouldBeFalse)
			}
		})
	})

	Convey("Given opportunistic arrays", t, func() {
		sa, isa, err := f.pair(OpportunisticLayeredSampleByIndex, 16, 4)
		So(err, ShouldBeNil)
		osa, oisa := sa.(*Opportunistic), isa.(*Opportunistic)
		full := osa.NumSampledValues()
		So(full, ShouldEqual, 176)

		Convey("Destroying a layer releases exactly its values", func() {
			So(osa.DestroyLayer(2), ShouldBeNil)
			So(osa.NumSampledValues(), ShouldEqual, full-osa.validSlots(2))
			So(osa.DestroyLayer(2), ShouldBeNil)
			So(osa.NumSampledValues(), ShouldEqual, full-osa.validSlots(2))
			f.check(sa, isa)
		})

		Convey("Rebuilt layers fill in as lookups pass through them", func() {
			for _, a := range []*Opportunistic{osa, oisa} {
				So(a.DestroyLayer(1), ShouldBeNil)
				So(a.DestroyLayer(2), ShouldBeNil)
				So(a.ReconstructLayer(1), ShouldBeNil)
				So(a.IsLayerExistent(1), ShouldBeTrue)
				So(a.IsLayerPopulated(1), ShouldBeFalse)
			}
			low := oisa.NumSampledValues()
			f.check(sa, isa)
			So(oisa.NumSampledValues(), ShouldBeGreaterThan, low)
			So(oisa.IsLayerPopulated(1), ShouldBeTrue)

			gotSA, gotISA := roundTrip(sa, isa, f.next, false)
			f.check(gotSA, gotISA)

			So(osa.Populate(2), ShouldBeNil)
			So(osa.IsLayerPopulated(2), ShouldBeTrue)
			So(osa.NumSampledValues(), ShouldEqual, full)
			f.check(sa, isa)
		})

		Convey("A partially filled layer restarts empty after loading", func() {
			So(oisa.DestroyLayer(2), ShouldBeNil)
			So(oisa.ReconstructLayer(2), ShouldBeNil)
			oisa.Lookup(700)
			_, gotISA := roundTrip(sa, isa, f.next, true)
			o := gotISA.(*Opportunistic)
			So(o.IsLayerExistent(2), ShouldBeTrue)
			So(o.NumSampledValues(), ShouldEqual, full-o.validSlots(2))
			f.check(sa, gotISA)
		})
	})
}

func TestConcurrentLayerChanges(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	f := newFixture(r, 2000, "abc")

	for _, scheme := range []Scheme{LayeredSampleByIndex, OpportunisticLayeredSampleByIndex} {
		Convey("Lookups stay exact while layers of "+scheme.String()+" come and go", t, func() {
			sa, isa, err := f.pair(scheme, 64, 4)
			So(err, ShouldBeNil)

			var wrong atomic.Int64
			var wg sync.WaitGroup
			stop := make(chan struct{})
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(seed int64) {
					defer wg.Done()
					rr := rand.New(rand.NewSource(seed))
					for {
						select {
						case <-stop:
							return
						default:
						}
						i := uint64(rr.Intn(len(f.sa)))
						if sa.Lookup(i) != f.sa[i] || isa.Lookup(i) != f.isa[i] {
							wrong.Add(1)
						}
					}
				}(int64(w))
			}

			for round := 0; round < 50; round++ {
				for _, a := range []LayeredArray{sa.(LayeredArray), isa.(LayeredArray)} {
					l := 1 + round%(a.NumLayers()-1)
					if err := a.DestroyLayer(l); err != nil {
						wrong.Add(1)
					}
					if err := a.ReconstructLayer(l); err != nil {
						wrong.Add(1)
					}
				}
			}
			close(stop)
			wg.Wait()
			So(wrong.Load(), ShouldEqual, 0)
		})
	}
}
