package bitmap

const (
	wordSize = 64

	// Dictionary block geometry: absolute checkpoints every 2^32 bits (L3),
	// relative checkpoints every 2048 bits (L2) holding three 512 bit
	// sub-block deltas (L1), and 16 bit coded chunks.
	l3Shift         = 32
	l3BlockSize     = 1 << l3Shift
	l2Shift         = 11
	l2BlockSize     = 1 << l2Shift
	l1Shift         = 9
	l1BlockSize     = 1 << l1Shift
	l2PerL3         = l3BlockSize / l2BlockSize
	chunkSize       = 16
	chunkShift      = 4
	classWidth      = 5
	l1DeltaWidth    = 10
	l1DeltaMask     = 1<<l1DeltaWidth - 1
	l12HighShift    = 32
	numChunkClasses = chunkSize + 1
)

// l1Shifts gives the position of each sub-block delta inside a packed L12 word.
var l1Shifts = [3]uint{2 * l1DeltaWidth, l1DeltaWidth, 0}
