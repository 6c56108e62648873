package succinct

import (
	"github.com/pkg/errors"
	"github.com/vsivsi/succinct/core"
	"github.com/vsivsi/succinct/invariants"
)

var (
	// ErrKeyNotFound is returned for keys outside [0, NumKeys).
	ErrKeyNotFound = errors.New("key not found")
	// ErrNotDirectory is returned when a save or open path exists but is
	// not a directory.
	ErrNotDirectory = errors.Wrap(invariants.ErrPrecondition, "not a directory")
	// ErrWrongKind is returned when opening a saved File as a Shard or the
	// other way around.
	ErrWrongKind = errors.Wrap(invariants.ErrPrecondition, "saved index is of another kind")
)

// corrupt wraps err as a decoding failure of a saved index.
func corrupt(err error, format string, args ...interface{}) error {
	if err != nil {
		return errors.Wrapf(core.ErrCorrupt, format+": %v", append(args, err)...)
	}
	return errors.Wrapf(core.ErrCorrupt, format, args...)
}
