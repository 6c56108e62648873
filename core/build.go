package core

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/internal/mmapfile"
	"github.com/vsivsi/succinct/internal/sais"
	"github.com/vsivsi/succinct/npa"
	"github.com/vsivsi/succinct/sampledarray"
	"golang.org/x/sync/errgroup"
)

// npaChunks is the number of goroutines materializing the next pointers.
const npaChunks = 8

// New builds a core over data, which must not contain the sentinel byte.
func New(data []byte, opts ...Option) (*Core, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(data, Sentinel); i >= 0 {
		return nil, errors.Wrapf(ErrSentinelInInput, "at offset %d", i)
	}
	b := &builder{opts: o, logger: o.logger.WithField("action", "construct")}
	defer b.cleanup()
	return b.build(data)
}

type builder struct {
	opts     options
	logger   logrus.FieldLogger
	mappings []*mmapfile.File
}

func (b *builder) stage(name string, start time.Time, fields logrus.Fields) {
	b.logger.WithFields(fields).WithFields(logrus.Fields{
		"stage": name,
		"took":  time.Since(start),
	}).Debug("construction stage done")
}

func (b *builder) build(data []byte) (*Core, error) {
	text := make([]byte, len(data)+1)
	copy(text, data)
	n := uint64(len(text))
	width := bitmap.WidthFor(n)

	start := time.Now()
	suffixes, err := sais.Sort(text)
	if err != nil {
		return nil, errors.Wrap(err, "sort suffixes")
	}
	sa := bitmap.NewPacked(n, width)
	for i, p := range suffixes {
		sa.Set(uint64(i), uint64(p))
	}
	suffixes = nil
	b.stage("suffix-array", start, logrus.Fields{"size": n})

	// Spilled arrays leave the heap before the next one is allocated.
	if b.opts.spillDir != "" {
		start = time.Now()
		if sa, err = b.spill(sa, "sa"); err != nil {
			return nil, err
		}
		b.stage("spill", start, logrus.Fields{"array": "sa", "dir": b.opts.spillDir})
	}

	start = time.Now()
	isa := bitmap.NewPacked(n, width)
	var alphabet []byte
	var colOffsets []uint64
	var prev byte
	for i := uint64(0); i < n; i++ {
		p := sa.Get(i)
		isa.Set(p, i)
		if ch := text[p]; i == 0 || ch != prev {
			alphabet = append(alphabet, ch)
			colOffsets = append(colOffsets, i)
			prev = ch
		}
	}
	colOffsets = append(colOffsets, n)
	b.stage("inverse-suffix-array", start, logrus.Fields{"sigma": len(alphabet)})

	if b.opts.spillDir != "" {
		start = time.Now()
		if isa, err = b.spill(isa, "isa"); err != nil {
			return nil, err
		}
		b.stage("spill", start, logrus.Fields{"array": "isa", "dir": b.opts.spillDir})
	}

	c := newCore(n, alphabet, colOffsets, ConstructInMemory, b.opts.logger)

	start = time.Now()
	in := npa.BuildInput{
		Size:         n,
		ColOffsets:   colOffsets,
		ContextLen:   b.opts.contextLen,
		SamplingRate: b.opts.npaRate,
		Workers:      b.opts.workers,
	}
	if b.opts.npaScheme == npa.WaveletTree {
		in.Text, in.SA, in.ISA = text, sa, isa
	} else if in.Next, err = materializeNext(sa, isa); err != nil {
		return nil, err
	}
	if c.npa, err = npa.Build(b.opts.npaScheme, in); err != nil {
		return nil, errors.Wrap(err, "build npa")
	}
	b.stage("npa", start, logrus.Fields{"scheme": b.opts.npaScheme.String(), "bytes": c.npa.StorageSize()})

	start = time.Now()
	if c.sa, c.isa, err = b.sampledArrays(sa, isa, c.npa); err != nil {
		return nil, err
	}
	b.stage("sampled-arrays", start, logrus.Fields{
		"sa_scheme":  b.opts.saScheme.String(),
		"isa_scheme": b.opts.isaScheme.String(),
	})
	return c, nil
}

// materializeNext computes NPA[i] = ISA[(SA[i]+1) mod n]. The chunks start at
// multiples of 64 entries so that no two goroutines write the same word.
func materializeNext(sa, isa *bitmap.Packed) (*bitmap.Packed, error) {
	n := sa.Len()
	next := bitmap.NewPacked(n, sa.Width())
	chunk := (n + npaChunks - 1) / npaChunks
	chunk = (chunk + 63) &^ 63

	var g errgroup.Group
	for lo := uint64(0); lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				next.Set(i, isa.Get((sa.Get(i)+1)%n))
			}
			return nil
		})
	}
	return next, errors.Wrap(g.Wait(), "materialize next pointers")
}

func (b *builder) sampledArrays(sa, isa *bitmap.Packed, next sampledarray.NextPointer) (sampledarray.SampledArray, sampledarray.SampledArray, error) {
	o := b.opts
	saArr, err := buildArray(sampledarray.SA, o.saScheme, sa, o.saRate, o.saTarget, next, nil, o.logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build sa")
	}
	var dict *bitmap.Dictionary
	if v, ok := saArr.(*sampledarray.FlatValueSA); ok {
		dict = v.Dictionary()
	}
	isaArr, err := buildArray(sampledarray.ISA, o.isaScheme, isa, o.isaRate, o.isaTarget, next, dict, o.logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build isa")
	}
	return saArr, isaArr, nil
}

func buildArray(kind sampledarray.Kind, scheme sampledarray.Scheme, vals sampledarray.Values, rate, target uint32,
	next sampledarray.NextPointer, dict *bitmap.Dictionary, logger logrus.FieldLogger,
) (sampledarray.SampledArray, error) {
	switch scheme {
	case sampledarray.FlatSampleByIndex:
		return sampledarray.NewFlatIndex(kind, vals, rate, next)
	case sampledarray.FlatSampleByValue:
		if kind == sampledarray.SA {
			return sampledarray.NewFlatValueSA(vals, rate, next)
		}
		return sampledarray.NewFlatValueISA(vals, rate, dict, next)
	case sampledarray.LayeredSampleByIndex:
		return sampledarray.NewLayered(kind, vals, target, rate, next, sampledarray.WithLogger(logger))
	case sampledarray.OpportunisticLayeredSampleByIndex:
		return sampledarray.NewOpportunistic(kind, vals, target, rate, next, sampledarray.WithLogger(logger))
	default:
		return nil, errors.Errorf("unknown sampling scheme %d", scheme)
	}
}

// spill writes p to a temporary file and returns a read-only view of it
// through a file mapping, so the heap copy can be dropped.
func (b *builder) spill(p *bitmap.Packed, name string) (*bitmap.Packed, error) {
	f, err := os.CreateTemp(b.opts.spillDir, "succinct-"+name+"-*")
	if err != nil {
		return nil, errors.Wrapf(err, "create %s spill file", name)
	}
	path := f.Name()
	defer os.Remove(path)

	enc := codec.NewEncoder(f)
	bitmap.WritePacked(enc, p)
	err = enc.Flush()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "write %s spill file", name)
	}

	m, err := mmapfile.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "map %s spill file", name)
	}
	b.mappings = append(b.mappings, m)
	mapped, err := bitmap.ReadPacked(codec.NewDecoder(m.Data, true))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s spill file", name)
	}
	return mapped, nil
}

func (b *builder) cleanup() {
	for _, m := range b.mappings {
		if err := m.Close(); err != nil {
			b.logger.WithError(err).Warn("unmap spill file")
		}
	}
	b.mappings = nil
}
