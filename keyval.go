package succinct

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/internal/codec"
)

// recordOffsets returns the offset of the first byte of every newline
// terminated record in text.
func recordOffsets(text []byte) []int64 {
	var offsets []int64
	start := 0
	for i, b := range text {
		if b == '\n' {
			offsets = append(offsets, int64(start))
			start = i + 1
		}
	}
	return offsets
}

// keyOf returns the record containing offset.
func keyOf(offsets []int64, offset int64) int64 {
	return int64(sort.Search(len(offsets), func(k int) bool { return offsets[k] > offset })) - 1
}

// writeKeyval stores offsets as [uint64 count][int64 offsets...].
func writeKeyval(dir string, offsets []int64) error {
	f, err := os.Create(filepath.Join(dir, keyvalFile))
	if err != nil {
		return errors.Wrap(err, "create keyval file")
	}
	enc := codec.NewEncoder(f)
	enc.Uint64(uint64(len(offsets)))
	for _, off := range offsets {
		enc.Int64(off)
	}
	if err := enc.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "write keyval file")
	}
	return errors.Wrap(f.Close(), "close keyval file")
}

// readKeyval loads the record offsets of a shard over size input bytes.
func readKeyval(dir string, size uint64) ([]int64, error) {
	buf, err := os.ReadFile(filepath.Join(dir, keyvalFile))
	if err != nil {
		return nil, errors.Wrap(err, "read keyval file")
	}
	dec := codec.NewDecoder(buf, false)
	n := dec.Uint64()
	if err := dec.Err(); err != nil {
		return nil, corrupt(err, "read keyval header")
	}
	if rem := dec.Remaining(); rem%8 != 0 || n != uint64(rem/8) {
		return nil, corrupt(nil, "keyval file of %d bytes holds %d keys", len(buf), n)
	}
	offsets := make([]int64, n)
	for k := range offsets {
		offsets[k] = dec.Int64()
		if offsets[k] < 0 || uint64(offsets[k]) >= size || (k > 0 && offsets[k] <= offsets[k-1]) {
			return nil, corrupt(nil, "record offset %d of key %d", offsets[k], k)
		}
	}
	if n > 0 && offsets[0] != 0 {
		return nil, corrupt(nil, "first record starts at %d", offsets[0])
	}
	return offsets, dec.Err()
}
