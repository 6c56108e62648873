// Package core implements the succinct self-index over a byte text.
//
// A Core stores the text as three compressed arrays over the sorted suffixes
// of text+"\x00": the next pointer array (NPA), and sampled suffix and inverse
// suffix arrays. Together they answer random access, counting and search
// without keeping the text itself.
package core

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/internal/mmapfile"
	"github.com/vsivsi/succinct/invariants"
	"github.com/vsivsi/succinct/npa"
	"github.com/vsivsi/succinct/sampledarray"
)

// Sentinel terminates the indexed text. Inputs must not contain it.
const Sentinel byte = 0

var (
	// ErrUnsupportedMode is returned for ConstructMemoryMapped.
	ErrUnsupportedMode = errors.Wrap(invariants.ErrPrecondition, "unsupported mode")
	// ErrSentinelInInput is returned when the input contains the sentinel byte.
	ErrSentinelInInput = errors.Wrap(invariants.ErrPrecondition, "input contains the sentinel byte")
	// ErrCorrupt is returned when a serialized core cannot be decoded.
	ErrCorrupt = errors.New("corrupt serialized core")
)

// Mode selects how a Core comes into existence.
type Mode uint8

const (
	// ConstructInMemory builds the core from raw input.
	ConstructInMemory Mode = iota
	// ConstructMemoryMapped is not supported.
	ConstructMemoryMapped
	// LoadInMemory decodes a serialized core into the heap.
	LoadInMemory
	// LoadMemoryMapped reads a serialized core in place from a file mapping.
	LoadMemoryMapped
)

func (m Mode) String() string {
	switch m {
	case ConstructInMemory:
		return "construct-in-memory"
	case ConstructMemoryMapped:
		return "construct-memory-mapped"
	case LoadInMemory:
		return "load-in-memory"
	case LoadMemoryMapped:
		return "load-memory-mapped"
	default:
		return "unknown"
	}
}

// Core is an immutable succinct index. All lookups and searches are safe for
// concurrent use. Layer changes on layered SA and ISA arrays may run
// concurrently with them.
type Core struct {
	n          uint64
	alphabet   []byte
	index      [256]int32 // alphabet index of each byte, -1 when absent
	colOffsets []uint64

	npa npa.NPA
	sa  sampledarray.SampledArray
	isa sampledarray.SampledArray

	mode    Mode
	mapping *mmapfile.File
	logger  logrus.FieldLogger
}

func newCore(n uint64, alphabet []byte, colOffsets []uint64, mode Mode, logger logrus.FieldLogger) *Core {
	c := &Core{
		n:          n,
		alphabet:   alphabet,
		colOffsets: colOffsets,
		mode:       mode,
		logger:     logger,
	}
	for i := range c.index {
		c.index[i] = -1
	}
	for i, ch := range alphabet {
		c.index[ch] = int32(i)
	}
	return c
}

// Size returns the length of the indexed text including the sentinel.
func (c *Core) Size() uint64 {
	return c.n
}

// Mode returns how the core was created.
func (c *Core) Mode() Mode {
	return c.mode
}

// Alphabet returns the distinct bytes of the text in increasing order,
// starting with the sentinel.
func (c *Core) Alphabet() []byte {
	return append([]byte(nil), c.alphabet...)
}

// ColOffsets returns the first row of every alphabet symbol followed by Size.
func (c *Core) ColOffsets() []uint64 {
	return append([]uint64(nil), c.colOffsets...)
}

func (c *Core) GetNPA() npa.NPA                   { return c.npa }
func (c *Core) GetSA() sampledarray.SampledArray  { return c.sa }
func (c *Core) GetISA() sampledarray.SampledArray { return c.isa }

// LookupNPA returns the row of the suffix one position after that of row i.
func (c *Core) LookupNPA(i uint64) uint64 {
	invariants.CheckIndex(i, c.n)
	return c.npa.Lookup(i)
}

// LookupSA returns the text offset of the suffix at row i.
func (c *Core) LookupSA(i uint64) uint64 {
	return c.sa.Lookup(i)
}

// LookupISA returns the row of the suffix at text offset i.
func (c *Core) LookupISA(i uint64) uint64 {
	return c.isa.Lookup(i)
}

// LookupC returns the alphabet index of the first byte of the suffix at
// row i.
func (c *Core) LookupC(i uint64) uint64 {
	invariants.CheckIndex(i, c.n)
	return c.npa.LookupC(i)
}

// RowChar returns the first byte of the suffix at row i.
func (c *Core) RowChar(i uint64) byte {
	return c.alphabet[c.LookupC(i)]
}

// CharAt returns the byte at text offset i.
func (c *Core) CharAt(i uint64) byte {
	return c.RowChar(c.LookupISA(i))
}

// Extract returns length bytes starting at text offset off, wrapping past
// the sentinel to the start of the text. It hops the NPA from row to row and
// re-anchors through the ISA whenever the next offset is sampled there.
func (c *Core) Extract(off, length uint64) []byte {
	invariants.CheckIndex(off, c.n)
	out := make([]byte, length)
	if length == 0 {
		return out
	}
	row := c.isa.Lookup(off)
	for k := uint64(0); ; k++ {
		out[k] = c.alphabet[c.npa.LookupC(row)]
		if k+1 == length {
			return out
		}
		pos := (off + k + 1) % c.n
		if c.isa.IsSampled(pos) {
			row = c.isa.Lookup(pos)
		} else {
			row = c.npa.Lookup(row)
		}
	}
}

// StorageSize returns the number of bytes Serialize writes.
func (c *Core) StorageSize() uint64 {
	sigma := uint64(len(c.alphabet))
	return 8 + 8 + sigma*(1+8+4) + 4 + sigma + 1 +
		sampledarray.PairStorageSize(c.sa, c.isa) +
		c.npa.StorageSize()
}

// Close releases the file mapping of a core loaded with LoadMemoryMapped.
// The core must not be used afterwards.
func (c *Core) Close() error {
	if c.mapping == nil {
		return nil
	}
	err := c.mapping.Close()
	c.mapping = nil
	return err
}
