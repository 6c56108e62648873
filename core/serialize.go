package core

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/internal/mmapfile"
	"github.com/vsivsi/succinct/npa"
	"github.com/vsivsi/succinct/sampledarray"
)

// Serialize writes the core:
//
//	[uint64 size]
//	[uint64 alphabet count] repeated [byte][uint64 first row][uint32 index]
//	[uint32 alphabet size][alphabet bytes][0]
//	[SA][ISA][sampled rows dictionary, when the SA samples by value]
//	[NPA]
func (c *Core) Serialize(w io.Writer) error {
	enc := codec.NewEncoder(w)
	enc.Uint64(c.n)
	enc.Uint64(uint64(len(c.alphabet)))
	for i, ch := range c.alphabet {
		enc.Uint8(ch)
		enc.Uint64(c.colOffsets[i])
		enc.Uint32(uint32(i))
	}
	enc.Uint32(uint32(len(c.alphabet)))
	enc.Bytes(c.alphabet)
	enc.Uint8(0)
	if err := sampledarray.WritePair(enc, c.sa, c.isa); err != nil {
		return err
	}
	if err := c.npa.Serialize(enc); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return errors.Wrap(err, "serialize core")
	}
	c.logger.WithFields(logrus.Fields{"action": "save", "bytes": enc.Len()}).Debug("serialized core")
	return nil
}

// WriteFile serializes the core to path.
func (c *Core) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create core file")
	}
	if err := c.Serialize(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close core file")
	}
	c.logger.WithFields(logrus.Fields{"action": "save", "path": path}).Info("wrote core")
	return nil
}

// Load creates a core from the file at path. ConstructInMemory reads the
// file as raw input; the load modes read a file written by Serialize.
// Options other than the logger only apply to ConstructInMemory.
func Load(path string, mode Mode, opts ...Option) (*Core, error) {
	switch mode {
	case ConstructInMemory:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read input")
		}
		return New(data, opts...)
	case ConstructMemoryMapped:
		return nil, ErrUnsupportedMode
	case LoadInMemory, LoadMemoryMapped:
	default:
		return nil, errors.Wrapf(ErrUnsupportedMode, "mode %d", mode)
	}

	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	logger := o.logger.WithFields(logrus.Fields{"action": "load", "path": path, "mode": mode.String()})

	if mode == LoadInMemory {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read core file")
		}
		c, err := decode(codec.NewDecoder(buf, false), mode, o.logger)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded core")
		return c, nil
	}

	m, err := mmapfile.Open(path)
	if err != nil {
		return nil, err
	}
	c, err := decode(codec.NewDecoder(m.Data, true), mode, o.logger)
	if err != nil {
		m.Close()
		return nil, err
	}
	c.mapping = m
	logger.Info("mapped core")
	return c, nil
}

// Decode reads a core written by Serialize from buf. The core copies what
// it needs from buf.
func Decode(buf []byte, opts ...Option) (*Core, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return decode(codec.NewDecoder(buf, false), LoadInMemory, o.logger)
}

// nextRef lets the sampled arrays be read before the next pointer array
// they walk, which follows them in the file.
type nextRef struct {
	npa.NPA
}

func decode(dec *codec.Decoder, mode Mode, logger logrus.FieldLogger) (c *Core, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("action", "load").Warnf("recovered from damaged core: %v", r)
			c, err = nil, errors.Wrapf(ErrCorrupt, "%v", r)
		}
	}()
	c, err = decodeSections(dec, mode, logger)
	if err != nil {
		if errors.Is(err, npa.ErrMemoryMapUnsupported) {
			return nil, err
		}
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if dec.Remaining() != 0 {
		return nil, errors.Wrapf(ErrCorrupt, "%d trailing bytes", dec.Remaining())
	}
	return c, nil
}

func decodeSections(dec *codec.Decoder, mode Mode, logger logrus.FieldLogger) (*Core, error) {
	n := dec.Uint64()
	count := dec.Uint64()
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read core header")
	}
	if n == 0 || count == 0 || count > 256 || count > n {
		return nil, errors.Errorf("bad core header: size %d, alphabet %d", n, count)
	}
	// The column starts of the npa take at least 5 bits per 16 rows.
	if total := uint64(dec.Offset() + dec.Remaining()); n/26 > total {
		return nil, errors.Errorf("core of size %d cannot fit in %d bytes", n, total)
	}
	colOffsets := make([]uint64, count+1)
	mapped := make([]byte, count)
	for i := uint64(0); i < count; i++ {
		mapped[i] = dec.Uint8()
		colOffsets[i] = dec.Uint64()
		if idx := dec.Uint32(); uint64(idx) != i {
			return nil, errors.Errorf("alphabet entry %d has index %d", i, idx)
		}
	}
	colOffsets[count] = n
	sigma := dec.Uint32()
	alphabet := dec.Bytes(int(sigma))
	dec.Uint8()
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read alphabet")
	}
	if uint64(sigma) != count {
		return nil, errors.Errorf("alphabet of %d bytes with %d entries", sigma, count)
	}
	for i := range mapped {
		if mapped[i] != alphabet[i] || (i > 0 && alphabet[i-1] >= alphabet[i]) || colOffsets[i] >= colOffsets[i+1] {
			return nil, errors.Errorf("alphabet entry %d is out of order", i)
		}
	}

	c := newCore(n, append([]byte(nil), alphabet...), colOffsets, mode, logger)
	ref := &nextRef{}
	sa, isa, err := sampledarray.ReadPair(dec, ref, n, sampledarray.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	next, err := npa.Read(dec)
	if err != nil {
		return nil, errors.Wrap(err, "read npa")
	}
	if next.Size() != n || sa.Size() != n || isa.Size() != n {
		return nil, errors.Errorf("array sizes %d, %d, %d do not match core size %d", next.Size(), sa.Size(), isa.Size(), n)
	}
	cols := next.ColOffsets()
	if len(cols) != len(colOffsets) {
		return nil, errors.New("npa columns do not match the alphabet")
	}
	for i, off := range cols {
		if off != colOffsets[i] {
			return nil, errors.New("npa columns do not match the alphabet")
		}
	}
	ref.NPA = next
	c.npa, c.sa, c.isa = next, sa, isa
	return c, nil
}
