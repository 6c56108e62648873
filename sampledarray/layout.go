package sampledarray

import (
	"math/bits"

	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/invariants"
)

// layout maps sampled indices to layers. With target rate r and base rate
// R = r * 2^m there are m+1 layers. Layer 0 holds the multiples of R. Layer
// l >= 1 holds the multiples of r * 2^(m-l) that are not multiples of
// r * 2^(m-l+1), so every block of R indices contributes 2^(l-1) of its
// indices to layer l.
type layout struct {
	n          uint64
	target     uint64
	base       uint64
	m          uint
	targetBits uint
	baseBits   uint
	width      uint8
}

func newLayout(n uint64, target, base uint32) (layout, error) {
	if err := checkRate(target, true); err != nil {
		return layout{}, err
	}
	if err := checkRate(base, true); err != nil {
		return layout{}, err
	}
	if target >= base {
		return layout{}, invariants.Errorf("target sampling rate %d must be below base rate %d", target, base)
	}
	tb := uint(bits.TrailingZeros32(target))
	bb := uint(bits.TrailingZeros32(base))
	return layout{
		n:          n,
		target:     uint64(target),
		base:       uint64(base),
		m:          bb - tb,
		targetBits: tb,
		baseBits:   bb,
		width:      bitmap.WidthFor(n),
	}, nil
}

func (g layout) numLayers() int {
	return int(g.m) + 1
}

// slots returns the number of entries allocated for layer l.
func (g layout) slots(l int) uint64 {
	blocks := ceilDiv(g.n, g.base)
	if l == 0 {
		return blocks
	}
	return blocks << uint(l-1)
}

// locate returns the layer and slot of p, a multiple of the target rate.
func (g layout) locate(p uint64) (int, uint64) {
	block := p >> g.baseBits
	k := (p & (g.base - 1)) >> g.targetBits
	if k == 0 {
		return 0, block
	}
	l := int(g.m) - bits.TrailingZeros64(k)
	return l, block<<uint(l-1) | k>>(g.m-uint(l)+1)
}

// position is the inverse of locate.
func (g layout) position(l int, e uint64) uint64 {
	if l == 0 {
		return e << g.baseBits
	}
	per := uint(l - 1)
	block, t := e>>per, e&(1<<per-1)
	k := (2*t + 1) << (g.m - uint(l))
	return block<<g.baseBits + k<<g.targetBits
}

// validSlots counts the entries of layer l that address an index below n.
func (g layout) validSlots(l int) uint64 {
	var c uint64
	for e := uint64(0); e < g.slots(l); e++ {
		if g.position(l, e) < g.n {
			c++
		}
	}
	return c
}

// build samples vals at every position of layer l.
func (g layout) build(l int, value func(uint64) uint64) *bitmap.Packed {
	p := bitmap.NewPacked(g.slots(l), g.width)
	for e := uint64(0); e < p.Len(); e++ {
		if pos := g.position(l, e); pos < g.n {
			p.Set(e, value(pos))
		}
	}
	return p
}

func (g layout) checkLayer(id int) error {
	if id < 0 || id >= g.numLayers() {
		return invariants.Errorf("layer %d not in [0, %d)", id, g.numLayers())
	}
	return nil
}
