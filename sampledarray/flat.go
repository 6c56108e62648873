package sampledarray

import (
	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

// FlatIndex keeps the values at every rate-th index.
type FlatIndex struct {
	kind    Kind
	n       uint64
	rate    uint64
	samples *bitmap.Packed
	next    NextPointer
}

// NewFlatIndex samples vals at every rate-th index.
func NewFlatIndex(kind Kind, vals Values, rate uint32, next NextPointer) (*FlatIndex, error) {
	if err := checkRate(rate, false); err != nil {
		return nil, err
	}
	n := vals.Len()
	a := &FlatIndex{
		kind:    kind,
		n:       n,
		rate:    uint64(rate),
		samples: bitmap.NewPacked(ceilDiv(n, uint64(rate)), bitmap.WidthFor(n)),
		next:    next,
	}
	for k := uint64(0); k < a.samples.Len(); k++ {
		a.samples.Set(k, vals.Get(k*a.rate))
	}
	return a, nil
}

// Lookup returns the value at index i.
func (a *FlatIndex) Lookup(i uint64) uint64 {
	invariants.CheckIndex(i, a.n)
	if a.kind == SA {
		var j uint64
		for i%a.rate != 0 {
			i = a.next.Lookup(i)
			j++
		}
		return (a.samples.Get(i/a.rate) + a.n - j%a.n) % a.n
	}
	v := a.samples.Get(i / a.rate)
	for h := i % a.rate; h > 0; h-- {
		v = a.next.Lookup(v)
	}
	return v
}

// IsSampled reports whether i is a multiple of the sampling rate.
func (a *FlatIndex) IsSampled(i uint64) bool {
	return i%a.rate == 0
}

func (a *FlatIndex) SamplingRate() uint32 { return uint32(a.rate) }
func (a *FlatIndex) Scheme() Scheme       { return FlatSampleByIndex }
func (a *FlatIndex) Kind() Kind           { return a.kind }
func (a *FlatIndex) Size() uint64         { return a.n }

// StorageSize returns the serialized size in bytes.
func (a *FlatIndex) StorageSize() uint64 {
	return headerSize + a.samples.StorageSize()
}

// Serialize writes [header][samples].
func (a *FlatIndex) Serialize(enc *codec.Encoder) error {
	header{FlatSampleByIndex, a.kind, a.n, uint32(a.rate)}.write(enc)
	bitmap.WritePacked(enc, a.samples)
	return errors.Wrap(enc.Err(), "serialize flat sampled array")
}

func readFlatIndex(dec *codec.Decoder, h header, next NextPointer) (*FlatIndex, error) {
	samples, err := bitmap.ReadPacked(dec)
	if err != nil {
		return nil, err
	}
	if samples.Len() != ceilDiv(h.size, uint64(h.rate)) {
		return nil, errors.Errorf("flat sampled array holds %d samples, want %d", samples.Len(), ceilDiv(h.size, uint64(h.rate)))
	}
	return &FlatIndex{kind: h.kind, n: h.size, rate: uint64(h.rate), samples: samples, next: next}, nil
}

// FlatValueSA keeps SA[i] for the rows i whose value is a multiple of the
// rate. A dictionary over the rows marks which are sampled; the samples are
// stored divided by the rate, in row order.
type FlatValueSA struct {
	n       uint64
	rate    uint64
	shift   uint
	samples *bitmap.Packed
	dict    *bitmap.Dictionary
	next    NextPointer
}

// NewFlatValueSA samples the rows of sa whose value is a multiple of rate,
// which must be a power of two.
func NewFlatValueSA(sa Values, rate uint32, next NextPointer) (*FlatValueSA, error) {
	if err := checkRate(rate, true); err != nil {
		return nil, err
	}
	n := sa.Len()
	a := &FlatValueSA{n: n, rate: uint64(rate), shift: uint(bitmap.WidthFor(uint64(rate)) - 1), next: next}

	rows := bitmap.New(n)
	for r := uint64(0); r < n; r++ {
		if sa.Get(r)%a.rate == 0 {
			rows.SetBit(r)
		}
	}
	a.dict = bitmap.NewDictionary(rows)
	a.samples = bitmap.NewPacked(a.dict.OneNum(), bitmap.WidthFor((n-1)>>a.shift))
	var k uint64
	for r := uint64(0); r < n; r++ {
		if rows.GetBit(r) {
			a.samples.Set(k, sa.Get(r)>>a.shift)
			k++
		}
	}
	return a, nil
}

// Dictionary returns the dictionary over the sampled rows.
func (a *FlatValueSA) Dictionary() *bitmap.Dictionary {
	return a.dict
}

// Lookup returns SA[i].
func (a *FlatValueSA) Lookup(i uint64) uint64 {
	invariants.CheckIndex(i, a.n)
	var j uint64
	for !a.dict.Bit(i) {
		i = a.next.Lookup(i)
		j++
	}
	v := a.samples.Get(a.dict.Rank1(i)-1) << a.shift
	return (v + a.n - j%a.n) % a.n
}

// IsSampled reports whether row i holds a sampled value.
func (a *FlatValueSA) IsSampled(i uint64) bool {
	return a.dict.Bit(i)
}

func (a *FlatValueSA) SamplingRate() uint32 { return uint32(a.rate) }
func (a *FlatValueSA) Scheme() Scheme       { return FlatSampleByValue }
func (a *FlatValueSA) Kind() Kind           { return SA }
func (a *FlatValueSA) Size() uint64         { return a.n }

// StorageSize returns the serialized size in bytes, without the shared
// dictionary.
func (a *FlatValueSA) StorageSize() uint64 {
	return headerSize + a.samples.StorageSize()
}

// Serialize writes [header][samples]. The dictionary is written by WritePair.
func (a *FlatValueSA) Serialize(enc *codec.Encoder) error {
	header{FlatSampleByValue, SA, a.n, uint32(a.rate)}.write(enc)
	bitmap.WritePacked(enc, a.samples)
	return errors.Wrap(enc.Err(), "serialize sa sampled by value")
}

func readFlatValueSA(dec *codec.Decoder, h header, next NextPointer) (*FlatValueSA, error) {
	if err := checkRate(h.rate, true); err != nil {
		return nil, err
	}
	samples, err := bitmap.ReadPacked(dec)
	if err != nil {
		return nil, err
	}
	return &FlatValueSA{
		n:       h.size,
		rate:    uint64(h.rate),
		shift:   uint(bitmap.WidthFor(uint64(h.rate)) - 1),
		samples: samples,
		next:    next,
	}, nil
}

// FlatValueISA keeps ISA[p] for every text position p that is a multiple of
// the rate. The sampled rows are exactly those marked in the dictionary of
// the matching FlatValueSA, so each sample is stored as its rank among them.
type FlatValueISA struct {
	n       uint64
	rate    uint64
	shift   uint
	samples *bitmap.Packed
	dict    *bitmap.Dictionary
	next    NextPointer
}

// NewFlatValueISA samples isa at multiples of rate, using the dictionary of
// a FlatValueSA built with the same rate.
func NewFlatValueISA(isa Values, rate uint32, dict *bitmap.Dictionary, next NextPointer) (*FlatValueISA, error) {
	if err := checkRate(rate, true); err != nil {
		return nil, err
	}
	n := isa.Len()
	num := ceilDiv(n, uint64(rate))
	if dict == nil || dict.Num() != n || dict.OneNum() != num {
		return nil, invariants.Errorf("isa sampled by value needs the sampled rows of an sa with rate %d", rate)
	}
	a := &FlatValueISA{
		n:       n,
		rate:    uint64(rate),
		shift:   uint(bitmap.WidthFor(uint64(rate)) - 1),
		samples: bitmap.NewPacked(num, bitmap.WidthFor(num)),
		dict:    dict,
		next:    next,
	}
	for k := uint64(0); k < num; k++ {
		a.samples.Set(k, dict.Rank1(isa.Get(k<<a.shift))-1)
	}
	return a, nil
}

// Lookup returns ISA[i].
func (a *FlatValueISA) Lookup(i uint64) uint64 {
	invariants.CheckIndex(i, a.n)
	v := a.dict.Select1(a.samples.Get(i >> a.shift))
	for h := i & (a.rate - 1); h > 0; h-- {
		v = a.next.Lookup(v)
	}
	return v
}

// IsSampled reports whether i is a multiple of the sampling rate.
func (a *FlatValueISA) IsSampled(i uint64) bool {
	return i&(a.rate-1) == 0
}

func (a *FlatValueISA) SamplingRate() uint32 { return uint32(a.rate) }
func (a *FlatValueISA) Scheme() Scheme       { return FlatSampleByValue }
func (a *FlatValueISA) Kind() Kind           { return ISA }
func (a *FlatValueISA) Size() uint64         { return a.n }

// StorageSize returns the serialized size in bytes.
func (a *FlatValueISA) StorageSize() uint64 {
	return headerSize + a.samples.StorageSize()
}

// Serialize writes [header][samples].
func (a *FlatValueISA) Serialize(enc *codec.Encoder) error {
	header{FlatSampleByValue, ISA, a.n, uint32(a.rate)}.write(enc)
	bitmap.WritePacked(enc, a.samples)
	return errors.Wrap(enc.Err(), "serialize isa sampled by value")
}

func readFlatValueISA(dec *codec.Decoder, h header, next NextPointer) (*FlatValueISA, error) {
	if err := checkRate(h.rate, true); err != nil {
		return nil, err
	}
	samples, err := bitmap.ReadPacked(dec)
	if err != nil {
		return nil, err
	}
	if samples.Len() != ceilDiv(h.size, uint64(h.rate)) {
		return nil, errors.Errorf("isa sampled by value holds %d samples, want %d", samples.Len(), ceilDiv(h.size, uint64(h.rate)))
	}
	return &FlatValueISA{
		n:       h.size,
		rate:    uint64(h.rate),
		shift:   uint(bitmap.WidthFor(uint64(h.rate)) - 1),
		samples: samples,
		next:    next,
	}, nil
}
