package succinct

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/core"
	"github.com/vsivsi/succinct/invariants"
)

// File is a compressed byte string supporting random access and search.
// It is safe for concurrent use.
type File struct {
	core   *core.Core
	logger logrus.FieldLogger
}

// NewFile builds a File over data. Data must not contain the zero byte.
func NewFile(data []byte, opts ...Option) (*File, error) {
	o := newOptions(opts)
	c, err := core.New(data, o.coreOptions()...)
	if err != nil {
		return nil, err
	}
	return &File{core: c, logger: o.logger}, nil
}

// NewFileFromPath builds a File over the contents of the file at path.
func NewFileFromPath(path string, opts ...Option) (*File, error) {
	o := newOptions(opts)
	c, err := core.Load(path, core.ConstructInMemory, o.coreOptions()...)
	if err != nil {
		return nil, err
	}
	o.logger.WithFields(logrus.Fields{"action": "construct", "path": path}).Info("built file index")
	return &File{core: c, logger: o.logger}, nil
}

// OpenFile opens a File saved in dir. Mode must be core.LoadInMemory or
// core.LoadMemoryMapped.
func OpenFile(dir string, mode core.Mode, opts ...Option) (*File, error) {
	o := newOptions(opts)
	c, _, err := openCore(dir, kindFile, mode, o)
	if err != nil {
		return nil, err
	}
	return &File{core: c, logger: o.logger}, nil
}

// Save writes the File to dir, creating it if needed.
func (f *File) Save(dir string) error {
	if err := saveCore(dir, f.core); err != nil {
		return err
	}
	if err := writeMeta(dir, metaOf(kindFile, f.core, 0)); err != nil {
		return err
	}
	f.logger.WithFields(logrus.Fields{"action": "save", "dir": dir}).Info("saved file index")
	return nil
}

func saveCore(dir string, c *core.Core) error {
	if err := checkDir(dir, true); err != nil {
		return err
	}
	if err := removeIndex(dir); err != nil {
		return err
	}
	return c.WriteFile(filepath.Join(dir, coreFile))
}

// Size returns the length of the input in bytes.
func (f *File) Size() uint64 {
	return f.core.Size() - 1
}

// Extract returns up to length bytes of the input starting at offset. The
// result is clipped to the end of the input and is empty when offset is past
// it.
func (f *File) Extract(offset, length uint64) []byte {
	if offset >= f.Size() {
		return []byte{}
	}
	return f.core.Extract(offset, min(length, f.Size()-offset))
}

// CharAt returns the input byte at offset.
func (f *File) CharAt(offset uint64) byte {
	invariants.CheckIndex(offset, f.Size())
	return f.core.CharAt(offset)
}

// Count returns the number of occurrences of pattern in the input.
func (f *File) Count(pattern []byte) int64 {
	return f.core.Count(pattern)
}

// Search returns the offsets of every occurrence of pattern in increasing
// order.
func (f *File) Search(pattern []byte) []int64 {
	offsets := f.core.Search(pattern)
	sort.Slice(offsets, func(a, b int) bool { return offsets[a] < offsets[b] })
	return offsets
}

// StorageSize returns the size of the serialized core in bytes.
func (f *File) StorageSize() uint64 {
	return f.core.StorageSize()
}

// Core returns the underlying index, for layer management and raw lookups.
func (f *File) Core() *core.Core {
	return f.core
}

// Close releases the file mapping of a memory-mapped File.
func (f *File) Close() error {
	return f.core.Close()
}

// removeIndex deletes the files of an index saved in dir, leaving dir
// itself in place.
func removeIndex(dir string) error {
	for _, name := range []string{coreFile, keyvalFile, metaFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", name)
		}
	}
	return nil
}
