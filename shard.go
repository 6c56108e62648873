package succinct

import (
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/core"
	"github.com/vsivsi/succinct/invariants"
)

// Shard is a compressed key-value store over newline-delimited records.
// Key k names the k-th record; its value is the record without the
// newline. A Shard is safe for concurrent use.
type Shard struct {
	core    *core.Core
	offsets []int64
	logger  logrus.FieldLogger
}

// NewShard builds a Shard over the records in data. A newline is appended
// when data does not end with one. Data must not contain the zero byte.
func NewShard(data []byte, opts ...Option) (*Shard, error) {
	o := newOptions(opts)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data[:len(data):len(data)], '\n')
	}
	c, err := core.New(data, o.coreOptions()...)
	if err != nil {
		return nil, err
	}
	s := &Shard{core: c, offsets: recordOffsets(data), logger: o.logger}
	o.logger.WithFields(logrus.Fields{"action": "construct", "keys": len(s.offsets)}).Debug("built shard")
	return s, nil
}

// NewShardFromFile builds a Shard over the records in the file at path.
func NewShardFromFile(path string, opts ...Option) (*Shard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read shard input")
	}
	return NewShard(data, opts...)
}

// OpenShard opens a Shard saved in dir. Mode must be core.LoadInMemory or
// core.LoadMemoryMapped.
func OpenShard(dir string, mode core.Mode, opts ...Option) (*Shard, error) {
	o := newOptions(opts)
	c, m, err := openCore(dir, kindShard, mode, o)
	if err != nil {
		return nil, err
	}
	offsets, err := readKeyval(dir, c.Size()-1)
	if err == nil && uint64(len(offsets)) != m.NumKeys {
		err = corrupt(nil, "keyval holds %d keys, meta %d", len(offsets), m.NumKeys)
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	o.logger.WithFields(logrus.Fields{"action": "load", "dir": dir, "mode": mode.String()}).Info("opened shard")
	return &Shard{core: c, offsets: offsets, logger: o.logger}, nil
}

// Save writes the Shard to dir, creating it if needed.
func (s *Shard) Save(dir string) error {
	if err := saveCore(dir, s.core); err != nil {
		return err
	}
	if err := writeKeyval(dir, s.offsets); err != nil {
		return err
	}
	if err := writeMeta(dir, metaOf(kindShard, s.core, uint64(len(s.offsets)))); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"action": "save", "dir": dir}).Info("saved shard")
	return nil
}

// NumKeys returns the number of records.
func (s *Shard) NumKeys() int64 {
	return int64(len(s.offsets))
}

// bounds returns the text range of the value of key.
func (s *Shard) bounds(key int64) (int64, int64, error) {
	if key < 0 || key >= int64(len(s.offsets)) {
		return 0, 0, errors.Wrapf(ErrKeyNotFound, "key %d", key)
	}
	end := int64(s.core.Size()) - 1
	if key+1 < int64(len(s.offsets)) {
		end = s.offsets[key+1]
	}
	return s.offsets[key], end - 1, nil
}

// Get returns the value of key.
func (s *Shard) Get(key int64) ([]byte, error) {
	start, end, err := s.bounds(key)
	if err != nil {
		return nil, err
	}
	if start == end {
		return []byte{}, nil
	}
	return s.core.Extract(uint64(start), uint64(end-start)), nil
}

// Access returns up to length bytes of the value of key starting offset
// bytes into it. The result is clipped to the end of the value.
func (s *Shard) Access(key, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, invariants.Errorf("negative offset %d or length %d", offset, length)
	}
	start, end, err := s.bounds(key)
	if err != nil {
		return nil, err
	}
	if offset >= end-start {
		return []byte{}, nil
	}
	start += offset
	return s.core.Extract(uint64(start), uint64(min(length, end-start))), nil
}

// Search returns the keys whose records contain pattern, in increasing
// order. A key is reported once however often pattern occurs in it.
func (s *Shard) Search(pattern []byte) []int64 {
	keys := roaring64.New()
	for _, off := range s.core.Search(pattern) {
		keys.Add(uint64(keyOf(s.offsets, off)))
	}
	out := make([]int64, 0, keys.GetCardinality())
	it := keys.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out
}

// Count returns the number of keys whose records contain pattern.
func (s *Shard) Count(pattern []byte) int64 {
	return int64(len(s.Search(pattern)))
}

// FlatCount returns the number of occurrences of pattern across all
// records.
func (s *Shard) FlatCount(pattern []byte) int64 {
	return s.core.Count(pattern)
}

// FlatSearch returns the text offsets of every occurrence of pattern in
// increasing order.
func (s *Shard) FlatSearch(pattern []byte) []int64 {
	offsets := s.core.Search(pattern)
	sort.Slice(offsets, func(a, b int) bool { return offsets[a] < offsets[b] })
	return offsets
}

// StorageSize returns the size of the serialized core and record offsets
// in bytes.
func (s *Shard) StorageSize() uint64 {
	return s.core.StorageSize() + 8 + 8*uint64(len(s.offsets))
}

// Core returns the underlying index, for layer management and raw lookups.
func (s *Shard) Core() *core.Core {
	return s.core
}

// Close releases the file mapping of a memory-mapped Shard.
func (s *Shard) Close() error {
	return s.core.Close()
}
