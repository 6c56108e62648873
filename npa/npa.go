// Package npa implements the next pointer array: for each row of the sorted
// suffix matrix, the row of the suffix that starts one position later in the
// text.
//
// Rows are partitioned into columns, one per alphabet symbol; within a column
// the next pointers are strictly increasing. Each encoding exploits that.
package npa

import (
	"runtime"
	"sort"

	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

// EncodingScheme selects how next pointers are stored.
type EncodingScheme uint32

const (
	// EliasGamma stores sampled values and gamma coded deltas.
	EliasGamma EncodingScheme = iota
	// EliasDelta stores sampled values and delta coded deltas.
	EliasDelta
	// WaveletTree stores, per context, a wavelet tree over the preceding symbols.
	WaveletTree
)

func (s EncodingScheme) String() string {
	switch s {
	case EliasGamma:
		return "elias-gamma"
	case EliasDelta:
		return "elias-delta"
	case WaveletTree:
		return "wavelet-tree"
	default:
		return "unknown"
	}
}

// ErrMemoryMapUnsupported is returned when a wavelet tree encoded array is
// read through an aliasing decoder.
var ErrMemoryMapUnsupported = errors.Wrap(invariants.ErrPrecondition, "npa: wavelet tree encoding cannot be memory mapped")

// NPA is a read-only next pointer array.
type NPA interface {
	// Lookup returns the next pointer of row i.
	Lookup(i uint64) uint64
	// LookupC returns the column (alphabet index) row i belongs to.
	LookupC(i uint64) uint64
	// BinarySearch searches val among rows [lo, hi], which must lie in one
	// column. With roundUp unset it returns the last row whose next pointer
	// is <= val, or lo-1. With roundUp set it returns the first row whose
	// next pointer is >= val, or hi+1.
	BinarySearch(val uint64, lo, hi int64, roundUp bool) int64
	// ColOffsets returns the first row of every column followed by Size().
	ColOffsets() []uint64
	Size() uint64
	Scheme() EncodingScheme
	SamplingRate() uint32
	StorageSize() uint64
	Serialize(enc *codec.Encoder) error
}

// BuildInput carries the intermediate arrays an encoding is built from.
type BuildInput struct {
	// Size is the text length including the sentinel.
	Size uint64
	// ColOffsets has one entry per column plus a final Size.
	ColOffsets []uint64
	// Next is the materialized next pointer array (delta encodings).
	Next *bitmap.Packed
	// Text, SA and ISA feed the wavelet tree encoding.
	Text []byte
	SA   *bitmap.Packed
	ISA  *bitmap.Packed
	// ContextLen is the wavelet tree context length in bytes.
	ContextLen uint32
	// SamplingRate is the delta encoding sample interval.
	SamplingRate uint32
	// Workers bounds the number of columns encoded concurrently.
	Workers int
}

func (in *BuildInput) workers() int {
	if in.Workers > 0 {
		return in.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Build encodes in with the given scheme.
func Build(scheme EncodingScheme, in BuildInput) (NPA, error) {
	if in.Size == 0 || len(in.ColOffsets) < 2 || in.ColOffsets[len(in.ColOffsets)-1] != in.Size {
		return nil, invariants.Errorf("npa: malformed column offsets")
	}
	switch scheme {
	case EliasGamma, EliasDelta:
		if in.Next == nil || in.Next.Len() != in.Size {
			return nil, invariants.Errorf("npa: delta encoding needs the next pointer array")
		}
		if in.SamplingRate == 0 {
			return nil, invariants.Errorf("npa: sampling rate must be positive")
		}
		return buildDeltaEncoded(scheme, in)
	case WaveletTree:
		if in.SA == nil || in.ISA == nil || uint64(len(in.Text)) != in.Size {
			return nil, invariants.Errorf("npa: wavelet tree encoding needs text, SA and ISA")
		}
		if in.ContextLen == 0 || in.ContextLen > 8 {
			return nil, invariants.Errorf("npa: context length %d not in [1, 8]", in.ContextLen)
		}
		return buildWaveletTree(in)
	default:
		return nil, invariants.Errorf("npa: unknown encoding scheme %d", scheme)
	}
}

// Read decodes an array written by Serialize.
func Read(dec *codec.Decoder) (NPA, error) {
	scheme := EncodingScheme(dec.Uint32())
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read npa scheme")
	}
	switch scheme {
	case EliasGamma, EliasDelta:
		return readDeltaEncoded(scheme, dec)
	case WaveletTree:
		if dec.Aliasing() {
			return nil, ErrMemoryMapUnsupported
		}
		return readWaveletTree(dec)
	default:
		return nil, errors.Errorf("npa: unknown encoding scheme %d", scheme)
	}
}

// searchByLookup is BinarySearch for encodings without a faster path.
func searchByLookup(n NPA, val uint64, lo, hi int64, roundUp bool) int64 {
	if lo > hi {
		if roundUp {
			return lo
		}
		return hi
	}
	count := int(hi - lo + 1)
	if roundUp {
		return lo + int64(sort.Search(count, func(k int) bool {
			return n.Lookup(uint64(lo)+uint64(k)) >= val
		}))
	}
	return lo + int64(sort.Search(count, func(k int) bool {
		return n.Lookup(uint64(lo)+uint64(k)) > val
	})) - 1
}
