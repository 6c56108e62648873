package succinct

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/core"
)

type options struct {
	core   []core.Option
	logger logrus.FieldLogger
}

// Option configures a File or Shard.
type Option func(*options)

// WithCoreOptions passes options through to the underlying core. They
// only affect construction; a saved index keeps the settings it was built
// with.
func WithCoreOptions(opts ...core.Option) Option {
	return func(o *options) {
		o.core = append(o.core, opts...)
	}
}

// WithLogger sets the logger used by the index and its core. By default
// nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		logger := logrus.New()
		logger.Out = io.Discard
		o.logger = logger
	}
	return o
}

func (o options) coreOptions() []core.Option {
	return append(append([]core.Option(nil), o.core...), core.WithLogger(o.logger))
}
