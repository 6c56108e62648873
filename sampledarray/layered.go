package sampledarray

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
	"github.com/vsivsi/succinct/invariants"
)

// Layered samples indices at the base rate in a permanent layer and at
// progressively finer rates, down to the target rate, in layers that can be
// destroyed and rebuilt.
//
// Each layer is published through an atomic pointer. Destroying a layer
// unpublishes it; lookups that loaded it before keep reading the old
// storage, which the garbage collector reclaims after they finish.
// Rebuilding fills a fresh layer before publishing it.
type Layered struct {
	layout
	kind   Kind
	layers []atomic.Pointer[bitmap.Packed]
	next   NextPointer
	logger logrus.FieldLogger

	// mu serializes DestroyLayer and ReconstructLayer.
	mu sync.Mutex
}

// NewLayered samples vals at every multiple of target, grouped into layers
// up to base. Both rates must be powers of two with target < base.
func NewLayered(kind Kind, vals Values, target, base uint32, next NextPointer, opts ...Option) (*Layered, error) {
	g, err := newLayout(vals.Len(), target, base)
	if err != nil {
		return nil, err
	}
	a := newLayered(kind, g, next, opts)
	for l := range a.layers {
		a.layers[l].Store(g.build(l, vals.Get))
	}
	return a, nil
}

func newLayered(kind Kind, g layout, next NextPointer, opts []Option) *Layered {
	c := newConfig(opts)
	return &Layered{
		layout: g,
		kind:   kind,
		layers: make([]atomic.Pointer[bitmap.Packed], g.numLayers()),
		next:   next,
		logger: c.logger.WithField("array", kind.String()),
	}
}

// sample returns the value at p, a multiple of the target rate, if its layer
// is live.
func (a *Layered) sample(p uint64) (uint64, bool) {
	l, e := a.locate(p)
	layer := a.layers[l].Load()
	if layer == nil {
		return 0, false
	}
	return layer.Get(e), true
}

// Lookup returns the value at index i.
func (a *Layered) Lookup(i uint64) uint64 {
	invariants.CheckIndex(i, a.n)
	if a.kind == SA {
		var j uint64
		for {
			if i&(a.target-1) == 0 {
				if v, ok := a.sample(i); ok {
					return (v + a.n - j%a.n) % a.n
				}
			}
			i = a.next.Lookup(i)
			j++
		}
	}

	// Nearest live sample at or before i.
	p := i &^ (a.target - 1)
	v, ok := a.sample(p)
	for !ok {
		p -= a.target
		v, ok = a.sample(p)
	}
	for ; p < i; p++ {
		v = a.next.Lookup(v)
	}
	return v
}

// IsSampled reports whether i is held by a live layer.
func (a *Layered) IsSampled(i uint64) bool {
	if i&(a.target-1) != 0 {
		return false
	}
	_, ok := a.sample(i)
	return ok
}

// SamplingRate returns the target rate, the finest rate a layer samples at.
func (a *Layered) SamplingRate() uint32 { return uint32(a.target) }

// BaseSamplingRate returns the rate of the permanent layer.
func (a *Layered) BaseSamplingRate() uint32 { return uint32(a.base) }

func (a *Layered) Scheme() Scheme { return LayeredSampleByIndex }
func (a *Layered) Kind() Kind     { return a.kind }
func (a *Layered) Size() uint64   { return a.n }
func (a *Layered) NumLayers() int { return a.numLayers() }

// IsLayerExistent reports whether layer id is live.
func (a *Layered) IsLayerExistent(id int) bool {
	return a.checkLayer(id) == nil && a.layers[id].Load() != nil
}

// DestroyLayer drops layer id. Layer 0 cannot be destroyed.
func (a *Layered) DestroyLayer(id int) error {
	if err := a.checkLayer(id); err != nil {
		return err
	}
	if id == 0 {
		return invariants.Errorf("layer 0 cannot be destroyed")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.layers[id].Swap(nil) != nil {
		a.logger.WithField("layer", id).Debug("destroyed layer")
	}
	return nil
}

// ReconstructLayer rebuilds layer id from the live layers. It is a no-op for
// a live layer.
func (a *Layered) ReconstructLayer(id int) error {
	if err := a.checkLayer(id); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.layers[id].Load() != nil {
		return nil
	}
	a.layers[id].Store(a.build(id, a.Lookup))
	a.logger.WithField("layer", id).Debug("reconstructed layer")
	return nil
}

// StorageSize returns the serialized size in bytes.
func (a *Layered) StorageSize() uint64 {
	size := uint64(headerSize + 4)
	for l := range a.layers {
		size++
		if layer := a.layers[l].Load(); layer != nil {
			size += layer.StorageSize()
		}
	}
	return size
}

// Serialize writes [header][base rate][per layer: live flag, values].
func (a *Layered) Serialize(enc *codec.Encoder) error {
	header{LayeredSampleByIndex, a.kind, a.n, uint32(a.target)}.write(enc)
	enc.Uint32(uint32(a.base))
	for l := range a.layers {
		layer := a.layers[l].Load()
		if layer == nil {
			enc.Uint8(0)
			continue
		}
		enc.Uint8(1)
		bitmap.WritePacked(enc, layer)
	}
	return errors.Wrap(enc.Err(), "serialize layered sampled array")
}

func readLayers(dec *codec.Decoder, h header) (layout, error) {
	base := dec.Uint32()
	if err := dec.Err(); err != nil {
		return layout{}, errors.Wrap(err, "read base sampling rate")
	}
	return newLayout(h.size, h.rate, base)
}

func readLayer(dec *codec.Decoder, g layout, l int) (*bitmap.Packed, error) {
	p, err := bitmap.ReadPacked(dec)
	if err != nil {
		return nil, errors.Wrapf(err, "read layer %d", l)
	}
	if p.Len() != g.slots(l) || p.Width() != g.width {
		return nil, errors.Errorf("layer %d holds %d x %d bits, want %d x %d", l, p.Len(), p.Width(), g.slots(l), g.width)
	}
	return p, nil
}

func readLayered(dec *codec.Decoder, h header, next NextPointer, opts []Option) (*Layered, error) {
	g, err := readLayers(dec, h)
	if err != nil {
		return nil, err
	}
	a := newLayered(h.kind, g, next, opts)
	for l := range a.layers {
		live := dec.Uint8()
		if err := dec.Err(); err != nil {
			return nil, errors.Wrapf(err, "read layer %d flag", l)
		}
		if live == 0 {
			if l == 0 {
				return nil, errors.New("layered sampled array without layer 0")
			}
			continue
		}
		p, err := readLayer(dec, g, l)
		if err != nil {
			return nil, err
		}
		a.layers[l].Store(p)
	}
	return a, nil
}
