package succinct

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
	"github.com/vsivsi/succinct/core"
)

const (
	coreFile    = "core"
	keyvalFile  = "keyval"
	metaFile    = "meta"
	metaVersion = 1

	kindFile  = "file"
	kindShard = "shard"
)

// Meta describes a saved index. It is stored in msgpack form next to the
// core so an index can be inspected without loading it.
type Meta struct {
	Version     int    `codec:"version"`
	Kind        string `codec:"kind"`
	Size        uint64 `codec:"size"`
	NumKeys     uint64 `codec:"num_keys"`
	SAScheme    string `codec:"sa_scheme"`
	SARate      uint32 `codec:"sa_rate"`
	ISAScheme   string `codec:"isa_scheme"`
	ISARate     uint32 `codec:"isa_rate"`
	NPAScheme   string `codec:"npa_scheme"`
	NPARate     uint32 `codec:"npa_rate"`
	StorageSize uint64 `codec:"storage_size"`
}

func metaOf(kind string, c *core.Core, numKeys uint64) Meta {
	return Meta{
		Version:     metaVersion,
		Kind:        kind,
		Size:        c.Size(),
		NumKeys:     numKeys,
		SAScheme:    c.GetSA().Scheme().String(),
		SARate:      c.GetSA().SamplingRate(),
		ISAScheme:   c.GetISA().Scheme().String(),
		ISARate:     c.GetISA().SamplingRate(),
		NPAScheme:   c.GetNPA().Scheme().String(),
		NPARate:     c.GetNPA().SamplingRate(),
		StorageSize: c.StorageSize(),
	}
}

// matches checks that a loaded core is the one m describes. The storage
// size is not compared since opportunistic layers fill after loading.
func (m Meta) matches(c *core.Core) error {
	got := metaOf(m.Kind, c, m.NumKeys)
	got.StorageSize = m.StorageSize
	if got != m {
		return corrupt(nil, "core does not match its metadata")
	}
	return nil
}

func writeMeta(dir string, m Meta) error {
	f, err := os.Create(filepath.Join(dir, metaFile))
	if err != nil {
		return errors.Wrap(err, "create meta file")
	}
	var mh codec.MsgpackHandle
	if err := codec.NewEncoder(f, &mh).Encode(m); err != nil {
		f.Close()
		return errors.Wrap(err, "encode meta")
	}
	return errors.Wrap(f.Close(), "close meta file")
}

// ReadMeta returns the description of the index saved in dir.
func ReadMeta(dir string) (Meta, error) {
	var m Meta
	if err := checkDir(dir, false); err != nil {
		return m, err
	}
	buf, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return m, errors.Wrap(err, "read meta file")
	}
	var mh codec.MsgpackHandle
	if err := codec.NewDecoderBytes(buf, &mh).Decode(&m); err != nil {
		return m, corrupt(err, "decode meta")
	}
	if m.Version != metaVersion {
		return m, corrupt(nil, "meta version %d", m.Version)
	}
	return m, nil
}

// checkDir verifies that dir is a directory, creating it when create is set.
func checkDir(dir string, create bool) error {
	fi, err := os.Stat(dir)
	switch {
	case err == nil && !fi.IsDir():
		return errors.Wrap(ErrNotDirectory, dir)
	case err == nil:
		return nil
	case os.IsNotExist(err) && create:
		return errors.Wrap(os.MkdirAll(dir, 0o755), "create index directory")
	default:
		return errors.Wrap(err, "stat index directory")
	}
}

// openCore reads the meta file and core of the index saved in dir.
func openCore(dir, kind string, mode core.Mode, o options) (*core.Core, Meta, error) {
	switch mode {
	case core.LoadInMemory, core.LoadMemoryMapped:
	default:
		return nil, Meta{}, errors.Wrapf(core.ErrUnsupportedMode, "open %s", mode)
	}
	m, err := ReadMeta(dir)
	if err != nil {
		return nil, m, err
	}
	if m.Kind != kind {
		return nil, m, errors.Wrapf(ErrWrongKind, "%s is a %s", dir, m.Kind)
	}
	c, err := core.Load(filepath.Join(dir, coreFile), mode, core.WithLogger(o.logger))
	if err != nil {
		return nil, m, err
	}
	if err := m.matches(c); err != nil {
		c.Close()
		return nil, m, err
	}
	return c, m, nil
}
