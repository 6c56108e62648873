package npa

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/internal/codec"
)

// WaveletEncoded stores next pointers grouped by context.
//
// Every row r in column c points into the block of rows whose suffixes start
// with the context x following the symbol of r. Within that block the rows
// reached from column c are exactly those whose preceding symbol is c, in
// order. So NPA[r] is the start of block x plus the position of the k-th
// occurrence of c in the block's sequence of preceding symbols, which a
// wavelet tree over that sequence answers with select.
type WaveletEncoded struct {
	*columns
	contextLen uint32

	// Per context, in sorted order.
	ctxStart     *bitmap.Packed // first row of the block, plus a final size
	ctxRoot      *bitmap.Packed // root node index + 1, 0 when one symbol
	ctxAlphaFrom *bitmap.Packed // start of the local alphabet, plus a final total
	localAlpha   *bitmap.Packed // concatenated sorted column ids

	// Per column, the runs of rows sharing a context.
	colGroupFrom *bitmap.Packed // first group of each column, plus a final total
	groupOffset  *bitmap.Packed // first row of the group, relative to the column
	groupContext *bitmap.Packed // context index of the group

	nodes []waveletNode
}

// waveletNode splits local alphabet indices [lo, hi) at (lo+hi)/2. Bits set
// in dict mark entries routed to the upper half. Children are node index + 1,
// 0 for a single-symbol leaf.
type waveletNode struct {
	lo, hi      uint32
	left, right uint32
	dict        *bitmap.Dictionary
}

func contextValue(text []byte, pos uint64, k uint32) uint64 {
	n := uint64(len(text))
	var v uint64
	for j := uint64(0); j < uint64(k); j++ {
		v = v<<8 | uint64(text[(pos+j)%n])
	}
	return v
}

func buildWaveletTree(in BuildInput) (*WaveletEncoded, error) {
	n := in.Size
	w := &WaveletEncoded{
		columns:    newColumns(n, in.ColOffsets),
		contextLen: in.ContextLen,
	}
	sigma := w.numColumns()

	var colOf [256]uint32
	for c := 0; c < sigma; c++ {
		colOf[in.Text[in.SA.Get(in.ColOffsets[c])]] = uint32(c)
	}

	// Context blocks over the sorted rows.
	var ctxValues, ctxStarts []uint64
	for r := uint64(0); r < n; r++ {
		v := contextValue(in.Text, in.SA.Get(r), in.ContextLen)
		if len(ctxValues) == 0 || ctxValues[len(ctxValues)-1] != v {
			if len(ctxValues) > 0 && ctxValues[len(ctxValues)-1] > v {
				return nil, errors.Errorf("npa: contexts out of order at row %d", r)
			}
			ctxValues = append(ctxValues, v)
			ctxStarts = append(ctxStarts, r)
		}
	}
	numCtx := uint64(len(ctxValues))
	ctxStarts = append(ctxStarts, n)

	wn := bitmap.WidthFor(n)
	w.ctxStart = bitmap.NewPacked(numCtx+1, wn)
	w.ctxRoot = bitmap.NewPacked(numCtx, 32)
	w.ctxAlphaFrom = bitmap.NewPacked(numCtx+1, wn)
	for x, s := range ctxStarts {
		w.ctxStart.Set(uint64(x), s)
	}

	// One wavelet tree per context over the preceding symbols.
	var alpha []uint64
	seq := make([]uint32, 0)
	for x := uint64(0); x < numCtx; x++ {
		seq = seq[:0]
		var present [256]bool
		for r := ctxStarts[x]; r < ctxStarts[x+1]; r++ {
			prev := (in.SA.Get(r) + n - 1) % n
			c := colOf[in.Text[prev]]
			present[c] = true
			seq = append(seq, c)
		}
		var local [256]uint32
		w.ctxAlphaFrom.Set(x, uint64(len(alpha)))
		base := len(alpha)
		for c := 0; c < sigma; c++ {
			if present[c] {
				local[c] = uint32(len(alpha) - base)
				alpha = append(alpha, uint64(c))
			}
		}
		for i, c := range seq {
			seq[i] = local[c]
		}
		w.ctxRoot.Set(x, uint64(w.buildNode(seq, 0, uint32(len(alpha)-base))))
	}
	w.ctxAlphaFrom.Set(numCtx, uint64(len(alpha)))
	w.localAlpha = bitmap.NewPacked(uint64(len(alpha)), bitmap.WidthFor(uint64(sigma)))
	for i, c := range alpha {
		w.localAlpha.Set(uint64(i), c)
	}

	// Context runs inside every column.
	var groupFrom, groupOffsets, groupCtx []uint64
	for c := 0; c < sigma; c++ {
		groupFrom = append(groupFrom, uint64(len(groupOffsets)))
		last := uint64(1<<64 - 1)
		for r := in.ColOffsets[c]; r < in.ColOffsets[c+1]; r++ {
			next := in.ISA.Get((in.SA.Get(r) + 1) % n)
			x := uint64(sort.Search(int(numCtx), func(i int) bool { return ctxStarts[i+1] > next }))
			if x != last {
				groupOffsets = append(groupOffsets, r-in.ColOffsets[c])
				groupCtx = append(groupCtx, x)
				last = x
			}
		}
	}
	groupFrom = append(groupFrom, uint64(len(groupOffsets)))
	w.colGroupFrom = packAll(groupFrom)
	w.groupOffset = packAll(groupOffsets)
	w.groupContext = packAll(groupCtx)
	return w, nil
}

func packAll(vals []uint64) *bitmap.Packed {
	var top uint64
	for _, v := range vals {
		top = max(top, v)
	}
	p := bitmap.NewPacked(uint64(len(vals)), bitmap.WidthFor(top))
	for i, v := range vals {
		p.Set(uint64(i), v)
	}
	return p
}

func (w *WaveletEncoded) buildNode(seq []uint32, lo, hi uint32) uint32 {
	if hi-lo < 2 {
		return 0
	}
	mid := (lo + hi) / 2
	b := bitmap.New(uint64(len(seq)))
	var left, right []uint32
	for i, a := range seq {
		if a >= mid {
			b.SetBit(uint64(i))
			right = append(right, a)
		} else {
			left = append(left, a)
		}
	}
	idx := len(w.nodes)
	w.nodes = append(w.nodes, waveletNode{lo: lo, hi: hi, dict: bitmap.NewDictionary(b)})
	l := w.buildNode(left, lo, mid)
	r := w.buildNode(right, mid, hi)
	w.nodes[idx].left, w.nodes[idx].right = l, r
	return uint32(idx + 1)
}

// selectIn returns the position of the (k+1)-th occurrence of local symbol
// a in the sequence below node.
func (w *WaveletEncoded) selectIn(node uint32, a uint32, k uint64) uint64 {
	if node == 0 {
		return k
	}
	nd := &w.nodes[node-1]
	if a < (nd.lo+nd.hi)/2 {
		return nd.dict.Select0(w.selectIn(nd.left, a, k))
	}
	return nd.dict.Select1(w.selectIn(nd.right, a, k))
}

// Lookup returns the next pointer of row i.
func (w *WaveletEncoded) Lookup(i uint64) uint64 {
	c := w.LookupC(i)
	k := i - w.offsets[c]

	gFrom, gTo := w.colGroupFrom.Get(c), w.colGroupFrom.Get(c+1)
	g := gFrom + uint64(sort.Search(int(gTo-gFrom), func(j int) bool {
		return w.groupOffset.Get(gFrom+uint64(j)) > k
	})) - 1
	x := w.groupContext.Get(g)
	k -= w.groupOffset.Get(g)

	aFrom, aTo := w.ctxAlphaFrom.Get(x), w.ctxAlphaFrom.Get(x+1)
	a := uint32(sort.Search(int(aTo-aFrom), func(j int) bool {
		return w.localAlpha.Get(aFrom+uint64(j)) >= c
	}))
	return w.ctxStart.Get(x) + w.selectIn(uint32(w.ctxRoot.Get(x)), a, k)
}

// BinarySearch binary searches over Lookup.
func (w *WaveletEncoded) BinarySearch(val uint64, lo, hi int64, roundUp bool) int64 {
	return searchByLookup(w, val, lo, hi, roundUp)
}

// Scheme returns WaveletTree.
func (w *WaveletEncoded) Scheme() EncodingScheme {
	return WaveletTree
}

// SamplingRate is 0: the encoding keeps no samples.
func (w *WaveletEncoded) SamplingRate() uint32 {
	return 0
}

// ContextLen returns the context length in bytes.
func (w *WaveletEncoded) ContextLen() uint32 {
	return w.contextLen
}

// StorageSize returns the serialized size in bytes.
func (w *WaveletEncoded) StorageSize() uint64 {
	size := 4 + w.columns.storageSize() + 4 + 8
	for _, p := range w.packed() {
		size += p.StorageSize()
	}
	for _, nd := range w.nodes {
		size += 16 + nd.dict.AllocSize()
	}
	return size
}

func (w *WaveletEncoded) packed() []*bitmap.Packed {
	return []*bitmap.Packed{
		w.ctxStart, w.ctxRoot, w.ctxAlphaFrom, w.localAlpha,
		w.colGroupFrom, w.groupOffset, w.groupContext,
	}
}

// Serialize writes [scheme][columns][context length][arrays][nodes].
func (w *WaveletEncoded) Serialize(enc *codec.Encoder) error {
	enc.Uint32(uint32(WaveletTree))
	w.columns.write(enc)
	enc.Uint32(w.contextLen)
	for _, p := range w.packed() {
		bitmap.WritePacked(enc, p)
	}
	enc.Uint64(uint64(len(w.nodes)))
	for _, nd := range w.nodes {
		enc.Uint32(nd.lo)
		enc.Uint32(nd.hi)
		enc.Uint32(nd.left)
		enc.Uint32(nd.right)
		bitmap.WriteDictionary(enc, nd.dict)
	}
	return errors.Wrap(enc.Err(), "serialize npa")
}

func readWaveletTree(dec *codec.Decoder) (*WaveletEncoded, error) {
	cols, err := readColumns(dec)
	if err != nil {
		return nil, err
	}
	w := &WaveletEncoded{columns: cols, contextLen: dec.Uint32()}
	targets := []**bitmap.Packed{
		&w.ctxStart, &w.ctxRoot, &w.ctxAlphaFrom, &w.localAlpha,
		&w.colGroupFrom, &w.groupOffset, &w.groupContext,
	}
	for _, t := range targets {
		if *t, err = bitmap.ReadPacked(dec); err != nil {
			return nil, errors.Wrap(err, "read wavelet tree arrays")
		}
	}
	numNodes := dec.Uint64()
	if err := dec.Err(); err != nil {
		return nil, errors.Wrap(err, "read wavelet tree node count")
	}
	if numNodes > uint64(dec.Remaining()) {
		return nil, errors.Errorf("npa: wavelet tree node count %d exceeds input", numNodes)
	}
	w.nodes = make([]waveletNode, numNodes)
	for i := range w.nodes {
		nd := &w.nodes[i]
		nd.lo, nd.hi, nd.left, nd.right = dec.Uint32(), dec.Uint32(), dec.Uint32(), dec.Uint32()
		if nd.dict, err = bitmap.ReadDictionary(dec); err != nil {
			return nil, errors.Wrapf(err, "read wavelet tree node %d", i)
		}
	}
	return w, nil
}
