// Package mmapfile maps serialized structures read-only into memory.
package mmapfile

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// File is a read-only mapping of a whole file.
type File struct {
	Data mmap.MMap
	f    *os.File
}

// Open maps the file at path. An empty file maps to a nil Data slice.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open file")
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "stat file")
	}

	if fi.Size() == 0 {
		return &File{f: f}, nil
	}

	data, err := mmap.MapRegion(f, int(fi.Size()), mmap.RDONLY, 0, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "mmap file")
	}

	return &File{Data: data, f: f}, nil
}

// Close unmaps the memory and closes the file. It is safe to call Close
// more than once.
func (m *File) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.Data != nil {
		err = m.Data.Unmap()
		m.Data = nil
	}
	if m.f != nil {
		if cerr := m.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		m.f = nil
	}
	return errors.Wrap(err, "unmap file")
}
