package npa

import (
	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"golang.org/x/sync/errgroup"
)

// eliasColumn holds one column: every rate-th value verbatim, and the
// values in between as coded gaps.
type eliasColumn struct {
	samples *bitmap.Packed
	// offsets[s] is the bit offset in deltas of the first gap after sample s.
	offsets *bitmap.Packed
	deltas  *bitmap.BitMap
}

// EliasEncoded is a next pointer array whose columns are gap coded with
// Elias gamma or Elias delta codes.
type EliasEncoded struct {
	*columns
	scheme EncodingScheme
	rate   uint64
	coder  coder
	cols   []eliasColumn
}

func buildDeltaEncoded(scheme EncodingScheme, in BuildInput) (*EliasEncoded, error) {
	e := &EliasEncoded{
		columns: newColumns(in.Size, in.ColOffsets),
		scheme:  scheme,
		rate:    uint64(in.SamplingRate),
		coder:   coderFor(scheme),
	}
	e.cols = make([]eliasColumn, e.numColumns())

	var g errgroup.Group
	g.SetLimit(in.workers())
	for c := range e.cols {
		g.Go(func() error {
			col, err := e.encodeColumn(in.Next, e.offsets[c], e.offsets[c+1])
			if err != nil {
				return errors.Wrapf(err, "encode column %d", c)
			}
			e.cols[c] = col
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *EliasEncoded) encodeColumn(next *bitmap.Packed, start, end uint64) (eliasColumn, error) {
	n := end - start
	numSamples := ceilDiv(n, e.rate)

	var total uint64
	for k := uint64(1); k < n; k++ {
		if k%e.rate == 0 {
			continue
		}
		prev, cur := next.Get(start+k-1), next.Get(start+k)
		if cur <= prev {
			return eliasColumn{}, errors.Errorf("next pointers not increasing at row %d", start+k)
		}
		total += e.coder.length(cur - prev)
	}

	col := eliasColumn{
		samples: bitmap.NewPacked(numSamples, bitmap.WidthFor(e.size)),
		offsets: bitmap.NewPacked(numSamples, bitmap.WidthFor(total)),
		deltas:  bitmap.New(total),
	}
	var pos uint64
	for k := uint64(0); k < n; k++ {
		cur := next.Get(start + k)
		if k%e.rate == 0 {
			col.samples.Set(k/e.rate, cur)
			col.offsets.Set(k/e.rate, pos)
			continue
		}
		pos += e.coder.encode(col.deltas, pos, cur-next.Get(start+k-1))
	}
	return col, nil
}

// Lookup returns the next pointer of row i: the preceding sample plus the
// gaps since it.
func (e *EliasEncoded) Lookup(i uint64) uint64 {
	c := e.LookupC(i)
	k := i - e.offsets[c]
	col := &e.cols[c]
	s, r := k/e.rate, k%e.rate
	v := col.samples.Get(s)
	if r == 0 {
		return v
	}
	sum, _ := e.coder.sum(col.deltas, col.offsets.Get(s), r)
	return v + sum
}

// BinarySearch searches the samples of the column first and then decodes
// gaps linearly inside a single sample block.
func (e *EliasEncoded) BinarySearch(val uint64, lo, hi int64, roundUp bool) int64 {
	if lo > hi {
		if roundUp {
			return lo
		}
		return hi
	}
	c := e.LookupC(uint64(lo))
	start := e.offsets[c]
	col := &e.cols[c]
	kLo, kHi := uint64(lo)-start, uint64(hi)-start

	// Last sample in range whose value is <= val.
	sp, ep := int64(kLo/e.rate), int64(kHi/e.rate)
	first := sp
	for sp <= ep {
		m := (sp + ep) / 2
		if col.samples.Get(uint64(m)) <= val {
			sp = m + 1
		} else {
			ep = m - 1
		}
	}
	if ep < first {
		// Every row from the first candidate block on is > val.
		if roundUp {
			return lo
		}
		return lo - 1
	}

	s := uint64(ep)
	k := s * e.rate
	v := col.samples.Get(s)
	pos := col.offsets.Get(s)
	limit := min(kHi, k+e.rate-1)
	for k < limit {
		d, w := e.coder.decode(col.deltas, pos)
		if v+d > val {
			break
		}
		v += d
		pos += w
		k++
	}

	p := int64(start + k)
	if roundUp {
		if p >= lo && v == val {
			return p
		}
		return max(p+1, lo)
	}
	return max(p, lo-1)
}

// Scheme returns the gap code in use.
func (e *EliasEncoded) Scheme() EncodingScheme {
	return e.scheme
}

// SamplingRate returns the sample interval within each column.
func (e *EliasEncoded) SamplingRate() uint32 {
	return uint32(e.rate)
}

// StorageSize returns the serialized size in bytes.
func (e *EliasEncoded) StorageSize() uint64 {
	size := 4 + e.columns.storageSize() + 8
	for _, col := range e.cols {
		size += col.samples.StorageSize() + col.offsets.StorageSize() + col.deltas.StorageSize()
	}
	return size
}

// Serialize writes [scheme][columns][rate][per column: samples, offsets, deltas].
func (e *EliasEncoded) Serialize(enc *codec.Encoder) error {
	enc.Uint32(uint32(e.scheme))
	e.columns.write(enc)
	enc.Uint64(e.rate)
	for _, col := range e.cols {
		bitmap.WritePacked(enc, col.samples)
		bitmap.WritePacked(enc, col.offsets)
		bitmap.WriteBitMap(enc, col.deltas)
	}
	return errors.Wrap(enc.Err(), "serialize npa")
}

func readDeltaEncoded(scheme EncodingScheme, dec *codec.Decoder) (*EliasEncoded, error) {
	cols, err := readColumns(dec)
	if err != nil {
		return nil, err
	}
	e := &EliasEncoded{
		columns: cols,
		scheme:  scheme,
		rate:    dec.Uint64(),
		coder:   coderFor(scheme),
	}
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read npa sampling rate")
	}
	if e.rate == 0 {
		return nil, errors.New("npa: zero sampling rate")
	}
	e.cols = make([]eliasColumn, cols.numColumns())
	for c := range e.cols {
		col := &e.cols[c]
		if col.samples, err = bitmap.ReadPacked(dec); err != nil {
			return nil, errors.Wrapf(err, "read column %d samples", c)
		}
		if col.offsets, err = bitmap.ReadPacked(dec); err != nil {
			return nil, errors.Wrapf(err, "read column %d offsets", c)
		}
		if col.deltas, err = bitmap.ReadBitMap(dec); err != nil {
			return nil, errors.Wrapf(err, "read column %d deltas", c)
		}
		if col.deltas == nil {
			col.deltas = bitmap.New(0)
		}
		want := ceilDiv(cols.offsets[c+1]-cols.offsets[c], e.rate)
		if col.samples.Len() != want || col.offsets.Len() != want {
			return nil, errors.Errorf("column %d holds %d samples and %d offsets, want %d", c, col.samples.Len(), col.offsets.Len(), want)
		}
	}
	return e, nil
}

func ceilDiv(num, div uint64) uint64 {
	return (num + div - 1) / div
}
