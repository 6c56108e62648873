// Package sampledarray stores suffix arrays (SA) and inverse suffix arrays
// (ISA) by keeping only some of their values and recovering the rest by
// walking the next pointer array.
//
// For a row i of the sorted suffix matrix, NPA[i] is the row of the suffix one
// text position later, so SA[NPA[i]] = SA[i]+1 and NPA[ISA[p]] = ISA[p+1].
// An SA lookup therefore walks forward from i to the first sampled row and
// subtracts the number of hops; an ISA lookup starts from the nearest sampled
// text position at or before p and hops forward.
package sampledarray

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

// Kind tells whether an array holds SA or ISA values.
type Kind uint8

const (
	SA Kind = iota
	ISA
)

func (k Kind) String() string {
	if k == ISA {
		return "isa"
	}
	return "sa"
}

// Scheme selects which values are sampled and how the samples are organized.
type Scheme uint32

const (
	// FlatSampleByIndex samples every rate-th index.
	FlatSampleByIndex Scheme = iota
	// FlatSampleByValue samples every rate-th value. The SA and ISA share a
	// dictionary over the sampled rows.
	FlatSampleByValue
	// LayeredSampleByIndex samples indices at several rates whose finer
	// layers can be destroyed and rebuilt at run time.
	LayeredSampleByIndex
	// OpportunisticLayeredSampleByIndex is LayeredSampleByIndex whose rebuilt
	// layers are filled lazily by the lookups that pass through them.
	OpportunisticLayeredSampleByIndex
)

func (s Scheme) String() string {
	switch s {
	case FlatSampleByIndex:
		return "flat-sample-by-index"
	case FlatSampleByValue:
		return "flat-sample-by-value"
	case LayeredSampleByIndex:
		return "layered-sample-by-index"
	case OpportunisticLayeredSampleByIndex:
		return "opportunistic-layered-sample-by-index"
	default:
		return "unknown"
	}
}

// IsLayered reports whether arrays of the scheme implement LayeredArray.
func (s Scheme) IsLayered() bool {
	return s == LayeredSampleByIndex || s == OpportunisticLayeredSampleByIndex
}

// NextPointer is the part of the next pointer array the sampled arrays walk.
type NextPointer interface {
	Lookup(i uint64) uint64
}

// Values is a random access source of exact values to sample from.
type Values interface {
	Get(i uint64) uint64
	Len() uint64
}

// SampledArray is a read-only SA or ISA.
type SampledArray interface {
	// Lookup returns the exact value at index i.
	Lookup(i uint64) uint64
	// IsSampled reports whether index i is answered without walking.
	IsSampled(i uint64) bool
	SamplingRate() uint32
	Scheme() Scheme
	Kind() Kind
	Size() uint64
	StorageSize() uint64
	Serialize(enc *codec.Encoder) error
}

// LayeredArray is a SampledArray whose finer sampling layers can be dropped
// and rebuilt while lookups are in flight. Layer 0 holds the base rate and is
// permanent; higher layers are progressively finer.
type LayeredArray interface {
	SampledArray
	NumLayers() int
	IsLayerExistent(id int) bool
	DestroyLayer(id int) error
	ReconstructLayer(id int) error
}

type config struct {
	logger logrus.FieldLogger
}

// Option configures an array.
type Option func(*config)

// WithLogger sets the logger that layer changes are reported to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, o := range opts {
		o(&c)
	}
	if c.logger == nil {
		logger := logrus.New()
		logger.Out = io.Discard
		c.logger = logger
	}
	return c
}

// header is written ahead of every section.
type header struct {
	scheme Scheme
	kind   Kind
	size   uint64
	rate   uint32
}

// headerSize is the encoded size of a header.
const headerSize = 4 + 1 + 8 + 4

func (h header) write(enc *codec.Encoder) {
	enc.Uint32(uint32(h.scheme))
	enc.Uint8(uint8(h.kind))
	enc.Uint64(h.size)
	enc.Uint32(h.rate)
}

func readHeader(dec *codec.Decoder) (header, error) {
	h := header{
		scheme: Scheme(dec.Uint32()),
		kind:   Kind(dec.Uint8()),
		size:   dec.Uint64(),
		rate:   dec.Uint32(),
	}
	if err := dec.Err(); err != nil {
		return h, errors.Wrap(err, "read sampled array header")
	}
	if h.kind > ISA || h.size == 0 || h.rate == 0 {
		return h, errors.Errorf("sampled array: malformed header %+v", h)
	}
	return h, nil
}

func checkRate(rate uint32, powerOfTwo bool) error {
	if rate == 0 {
		return invariants.Errorf("sampling rate must be positive")
	}
	if powerOfTwo && !bitmap.IsPowerOfTwo(uint64(rate)) {
		return invariants.Errorf("sampling rate %d is not a power of two", rate)
	}
	return nil
}

// WritePair writes the SA section, the ISA section and, when the SA samples
// by value, the dictionary of sampled rows they share.
func WritePair(enc *codec.Encoder, sa, isa SampledArray) error {
	if err := sa.Serialize(enc); err != nil {
		return err
	}
	if err := isa.Serialize(enc); err != nil {
		return err
	}
	if v, ok := sa.(*FlatValueSA); ok {
		bitmap.WriteDictionary(enc, v.dict)
	}
	return errors.Wrap(enc.Err(), "write sampled arrays")
}

// PairStorageSize returns the number of bytes WritePair writes.
func PairStorageSize(sa, isa SampledArray) uint64 {
	size := sa.StorageSize() + isa.StorageSize()
	if v, ok := sa.(*FlatValueSA); ok {
		size += v.dict.AllocSize()
	}
	return size
}

// ReadPair reads the sections written by WritePair for arrays of size
// entries. The arrays walk next, which does not have to be usable before the
// first lookup.
func ReadPair(dec *codec.Decoder, next NextPointer, size uint64, opts ...Option) (SampledArray, SampledArray, error) {
	sa, err := read(dec, next, SA, size, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read sa")
	}
	isa, err := read(dec, next, ISA, size, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read isa")
	}
	vsa, saByValue := sa.(*FlatValueSA)
	visa, isaByValue := isa.(*FlatValueISA)
	if isaByValue && !saByValue {
		return nil, nil, errors.New("isa sampled by value without an sa sampled by value")
	}
	if saByValue {
		d, err := bitmap.ReadDictionary(dec)
		if err != nil {
			return nil, nil, errors.Wrap(err, "read sampled rows")
		}
		if d.Num() != vsa.n || d.OneNum() != vsa.samples.Len() {
			return nil, nil, errors.New("sampled rows do not match the sa")
		}
		vsa.dict = d
		if isaByValue {
			visa.dict = d
		}
	}
	return sa, isa, nil
}

func read(dec *codec.Decoder, next NextPointer, want Kind, size uint64, opts []Option) (SampledArray, error) {
	h, err := readHeader(dec)
	if err != nil {
		return nil, err
	}
	if h.kind != want {
		return nil, errors.Errorf("found %s section where %s was expected", h.kind, want)
	}
	if h.size != size {
		return nil, errors.Errorf("%s section of %d entries, want %d", h.kind, h.size, size)
	}
	switch h.scheme {
	case FlatSampleByIndex:
		return readFlatIndex(dec, h, next)
	case FlatSampleByValue:
		if h.kind == SA {
			return readFlatValueSA(dec, h, next)
		}
		return readFlatValueISA(dec, h, next)
	case LayeredSampleByIndex:
		return readLayered(dec, h, next, opts)
	case OpportunisticLayeredSampleByIndex:
		return readOpportunistic(dec, h, next, opts)
	default:
		return nil, errors.Errorf("unknown sampling scheme %d", h.scheme)
	}
}

func ceilDiv(num, div uint64) uint64 {
	return (num + div - 1) / div
}
