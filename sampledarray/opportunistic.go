package sampledarray

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

// Layer states as serialized.
const (
	layerAbsent uint8 = iota
	layerCreating
	layerLive
)

// opportunisticLayer is absent when values is nil, being created when
// filled is non-nil, and live otherwise.
type opportunisticLayer struct {
	mu      sync.RWMutex
	values  *bitmap.Packed
	filled  *bitmap.BitMap
	missing uint64
}

func (ly *opportunisticLayer) state() uint8 {
	switch {
	case ly.values == nil:
		return layerAbsent
	case ly.filled != nil:
		return layerCreating
	default:
		return layerLive
	}
}

// probe results.
const (
	probeMiss = iota
	probeHit
	probeFillable
)

// Opportunistic is a layered array whose rebuilt layers start empty and are
// filled by the lookups that walk through them.
type Opportunistic struct {
	layout
	kind       Kind
	layers     []opportunisticLayer
	numSampled atomic.Int64
	next       NextPointer
	logger     logrus.FieldLogger
}

// NewOpportunistic samples vals like NewLayered, with every layer fully
// populated.
func NewOpportunistic(kind Kind, vals Values, target, base uint32, next NextPointer, opts ...Option) (*Opportunistic, error) {
	g, err := newLayout(vals.Len(), target, base)
	if err != nil {
		return nil, err
	}
	a := newOpportunistic(kind, g, next, opts)
	for l := range a.layers {
		a.layers[l].values = g.build(l, vals.Get)
		a.numSampled.Add(int64(g.validSlots(l)))
	}
	return a, nil
}

func newOpportunistic(kind Kind, g layout, next NextPointer, opts []Option) *Opportunistic {
	c := newConfig(opts)
	return &Opportunistic{
		layout: g,
		kind:   kind,
		layers: make([]opportunisticLayer, g.numLayers()),
		next:   next,
		logger: c.logger.WithField("array", kind.String()),
	}
}

// probe looks up p, a multiple of the target rate.
func (a *Opportunistic) probe(p uint64) (uint64, int) {
	l, e := a.locate(p)
	if l == 0 {
		return a.layers[0].values.Get(e), probeHit
	}
	ly := &a.layers[l]
	ly.mu.RLock()
	defer ly.mu.RUnlock()
	switch {
	case ly.values == nil:
		return 0, probeMiss
	case ly.filled != nil && !ly.filled.GetBit(e):
		return 0, probeFillable
	default:
		return ly.values.Get(e), probeHit
	}
}

// store fills the slot of p if its layer is still being created and the
// slot is empty.
func (a *Opportunistic) store(p, v uint64) {
	l, e := a.locate(p)
	ly := &a.layers[l]
	ly.mu.Lock()
	defer ly.mu.Unlock()
	if ly.filled == nil || ly.filled.GetBit(e) {
		return
	}
	ly.values.Set(e, v)
	ly.filled.SetBit(e)
	a.numSampled.Add(1)
	if ly.missing--; ly.missing == 0 {
		ly.filled = nil
		a.logger.WithField("layer", l).Debug("layer fully populated")
	}
}

type pendingSlot struct {
	pos  uint64
	hops uint64
}

// Lookup returns the value at index i, filling the empty slots of layers
// under creation that the walk passes.
func (a *Opportunistic) Lookup(i uint64) uint64 {
	invariants.CheckIndex(i, a.n)
	if a.kind == SA {
		var pending []pendingSlot
		var j uint64
		for {
			if i&(a.target-1) == 0 {
				v, res := a.probe(i)
				if res == probeHit {
					sa := (v + a.n - j%a.n) % a.n
					for _, s := range pending {
						a.store(s.pos, (sa+s.hops)%a.n)
					}
					return sa
				}
				if res == probeFillable {
					pending = append(pending, pendingSlot{pos: i, hops: j})
				}
			}
			i = a.next.Lookup(i)
			j++
		}
	}

	var pending []uint64
	p := i &^ (a.target - 1)
	v, res := a.probe(p)
	for res != probeHit {
		if res == probeFillable {
			pending = append(pending, p)
		}
		p -= a.target
		v, res = a.probe(p)
	}
	for ; p < i; p++ {
		v = a.next.Lookup(v)
		if k := len(pending) - 1; k >= 0 && pending[k] == p+1 {
			a.store(p+1, v)
			pending = pending[:k]
		}
	}
	return v
}

// IsSampled reports whether slot i currently holds its value.
func (a *Opportunistic) IsSampled(i uint64) bool {
	if i&(a.target-1) != 0 {
		return false
	}
	_, res := a.probe(i)
	return res == probeHit
}

// SamplingRate returns the target rate, the finest rate a layer samples at.
func (a *Opportunistic) SamplingRate() uint32 { return uint32(a.target) }

// BaseSamplingRate returns the rate of the permanent layer.
func (a *Opportunistic) BaseSamplingRate() uint32 { return uint32(a.base) }

func (a *Opportunistic) Scheme() Scheme { return OpportunisticLayeredSampleByIndex }
func (a *Opportunistic) Kind() Kind     { return a.kind }
func (a *Opportunistic) Size() uint64   { return a.n }
func (a *Opportunistic) NumLayers() int { return a.numLayers() }

// NumSampledValues returns the number of slots that currently hold a value.
func (a *Opportunistic) NumSampledValues() uint64 {
	return uint64(a.numSampled.Load())
}

// IsLayerExistent reports whether layer id is live or being created.
func (a *Opportunistic) IsLayerExistent(id int) bool {
	if a.checkLayer(id) != nil {
		return false
	}
	ly := &a.layers[id]
	ly.mu.RLock()
	defer ly.mu.RUnlock()
	return ly.values != nil
}

// IsLayerPopulated reports whether every slot of layer id holds its value.
func (a *Opportunistic) IsLayerPopulated(id int) bool {
	if a.checkLayer(id) != nil {
		return false
	}
	ly := &a.layers[id]
	ly.mu.RLock()
	defer ly.mu.RUnlock()
	return ly.state() == layerLive
}

// DestroyLayer drops layer id and every value it held. Layer 0 cannot be
// destroyed.
func (a *Opportunistic) DestroyLayer(id int) error {
	if err := a.checkLayer(id); err != nil {
		return err
	}
	if id == 0 {
		return invariants.Errorf("layer 0 cannot be destroyed")
	}
	ly := &a.layers[id]
	ly.mu.Lock()
	defer ly.mu.Unlock()
	var cleared uint64
	switch ly.state() {
	case layerAbsent:
		return nil
	case layerCreating:
		cleared = popcount(ly.filled)
	case layerLive:
		cleared = a.validSlots(id)
	}
	ly.values, ly.filled, ly.missing = nil, nil, 0
	a.numSampled.Add(-int64(cleared))
	a.logger.WithFields(logrus.Fields{"layer": id, "cleared": cleared}).Debug("destroyed layer")
	return nil
}

// ReconstructLayer marks layer id for creation. Its slots are filled by
// later lookups, or all at once by Populate.
func (a *Opportunistic) ReconstructLayer(id int) error {
	if err := a.checkLayer(id); err != nil {
		return err
	}
	ly := &a.layers[id]
	ly.mu.Lock()
	defer ly.mu.Unlock()
	if ly.values != nil {
		return nil
	}
	a.startLayer(id)
	a.logger.WithField("layer", id).Debug("marked layer for creation")
	return nil
}

// startLayer allocates empty storage for layer id. The caller holds its lock.
func (a *Opportunistic) startLayer(id int) {
	ly := &a.layers[id]
	slots := a.slots(id)
	ly.values = bitmap.NewPacked(slots, a.width)
	ly.filled = bitmap.New(slots)
	ly.missing = a.validSlots(id)
	if ly.missing == 0 {
		ly.filled = nil
	}
}

// Populate reconstructs layer id and fills all of its slots.
func (a *Opportunistic) Populate(id int) error {
	if err := a.ReconstructLayer(id); err != nil {
		return err
	}
	for e := uint64(0); e < a.slots(id); e++ {
		pos := a.position(id, e)
		if pos >= a.n {
			continue
		}
		if _, res := a.probe(pos); res == probeFillable {
			a.Lookup(pos)
		}
	}
	return nil
}

func popcount(b *bitmap.BitMap) uint64 {
	w := b.Words()
	var c uint64
	for i := uint64(0); i < w.Len(); i++ {
		c += uint64(bits.OnesCount64(w.Get(i)))
	}
	return c
}

// StorageSize returns the serialized size in bytes.
func (a *Opportunistic) StorageSize() uint64 {
	size := uint64(headerSize + 4)
	for l := range a.layers {
		ly := &a.layers[l]
		ly.mu.RLock()
		size++
		if ly.state() == layerLive {
			size += ly.values.StorageSize()
		}
		ly.mu.RUnlock()
	}
	return size
}

// Serialize writes [header][base rate][per layer: state, values if live].
// Layers still being created are written empty and restart on load.
func (a *Opportunistic) Serialize(enc *codec.Encoder) error {
	header{OpportunisticLayeredSampleByIndex, a.kind, a.n, uint32(a.target)}.write(enc)
	enc.Uint32(uint32(a.base))
	for l := range a.layers {
		ly := &a.layers[l]
		ly.mu.RLock()
		st := ly.state()
		enc.Uint8(st)
		if st == layerLive {
			bitmap.WritePacked(enc, ly.values)
		}
		ly.mu.RUnlock()
	}
	return errors.Wrap(enc.Err(), "serialize opportunistic sampled array")
}

func readOpportunistic(dec *codec.Decoder, h header, next NextPointer, opts []Option) (*Opportunistic, error) {
	g, err := readLayers(dec, h)
	if err != nil {
		return nil, err
	}
	a := newOpportunistic(h.kind, g, next, opts)
	for l := range a.layers {
		st := dec.Uint8()
		if err := dec.Err(); err != nil {
			return nil, errors.Wrapf(err, "read layer %d state", l)
		}
		if l == 0 && st != layerLive {
			return nil, errors.New("opportunistic sampled array without layer 0")
		}
		switch st {
		case layerAbsent:
		case layerCreating:
			a.startLayer(l)
			a.numSampled.Add(int64(a.validSlots(l) - a.layers[l].missing))
		case layerLive:
			if a.layers[l].values, err = readLayer(dec, g, l); err != nil {
				return nil, err
			}
			a.numSampled.Add(int64(g.validSlots(l)))
		default:
			return nil, errors.Errorf("layer %d has unknown state %d", l, st)
		}
	}
	return a, nil
}
