package core

import (
	"io"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/vsivsi/succinct/bitmap"
	"github.com/vsivsi/succinct/invariants"
	"github.com/vsivsi/succinct/npa"
	"github.com/vsivsi/succinct/sampledarray"
)

const (
	DefaultSASamplingRate  = 32
	DefaultISASamplingRate = 32
	DefaultNPASamplingRate = 128
	DefaultContextLen      = 3
)

type options struct {
	saRate     uint32
	isaRate    uint32
	npaRate    uint32
	saTarget   uint32
	isaTarget  uint32
	saScheme   sampledarray.Scheme
	isaScheme  sampledarray.Scheme
	npaScheme  npa.EncodingScheme
	contextLen uint32
	workers    int
	spillDir   string
	logger     logrus.FieldLogger
}

// Option configures how a Core is built or loaded.
type Option func(*options)

// WithSASamplingRate sets the SA sampling rate, the base rate for layered
// schemes.
func WithSASamplingRate(rate uint32) Option {
	return func(o *options) {
		o.saRate = rate
	}
}

// WithISASamplingRate sets the ISA sampling rate, the base rate for layered
// schemes.
func WithISASamplingRate(rate uint32) Option {
	return func(o *options) {
		o.isaRate = rate
	}
}

// WithNPASamplingRate sets the sample interval of the Elias encodings.
func WithNPASamplingRate(rate uint32) Option {
	return func(o *options) {
		o.npaRate = rate
	}
}

// WithSATargetSamplingRate sets the finest SA rate of layered schemes.
func WithSATargetSamplingRate(rate uint32) Option {
	return func(o *options) {
		o.saTarget = rate
	}
}

// WithISATargetSamplingRate sets the finest ISA rate of layered schemes.
func WithISATargetSamplingRate(rate uint32) Option {
	return func(o *options) {
		o.isaTarget = rate
	}
}

func WithSAScheme(s sampledarray.Scheme) Option {
	return func(o *options) {
		o.saScheme = s
	}
}

func WithISAScheme(s sampledarray.Scheme) Option {
	return func(o *options) {
		o.isaScheme = s
	}
}

func WithNPAScheme(s npa.EncodingScheme) Option {
	return func(o *options) {
		o.npaScheme = s
	}
}

// WithContextLen sets the context length of the wavelet tree encoding, in
// bytes.
func WithContextLen(n uint32) Option {
	return func(o *options) {
		o.contextLen = n
	}
}

// WithWorkers bounds the goroutines encoding NPA columns concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithSpillDir makes construction write the full SA and ISA to temporary
// files in dir and read them back through memory maps.
func WithSpillDir(dir string) Option {
	return func(o *options) {
		o.spillDir = dir
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) (options, error) {
	o := options{
		saRate:     DefaultSASamplingRate,
		isaRate:    DefaultISASamplingRate,
		npaRate:    DefaultNPASamplingRate,
		saScheme:   sampledarray.FlatSampleByIndex,
		isaScheme:  sampledarray.FlatSampleByIndex,
		npaScheme:  npa.EliasGamma,
		contextLen: DefaultContextLen,
		workers:    runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		logger := logrus.New()
		logger.Out = io.Discard
		o.logger = logger
	}
	if o.saTarget == 0 {
		o.saTarget = max(o.saRate/4, 1)
	}
	if o.isaTarget == 0 {
		o.isaTarget = max(o.isaRate/4, 1)
	}
	return o, o.validate()
}

func (o *options) validate() error {
	if o.saRate == 0 || o.isaRate == 0 || o.npaRate == 0 {
		return invariants.Errorf("sampling rates must be positive")
	}
	if o.workers <= 0 {
		return invariants.Errorf("worker count %d must be positive", o.workers)
	}
	if err := validateScheme("sa", o.saScheme, o.saRate, o.saTarget); err != nil {
		return err
	}
	if err := validateScheme("isa", o.isaScheme, o.isaRate, o.isaTarget); err != nil {
		return err
	}
	if o.isaScheme == sampledarray.FlatSampleByValue &&
		(o.saScheme != sampledarray.FlatSampleByValue || o.saRate != o.isaRate) {
		return invariants.Errorf("isa sampled by value needs an sa sampled by value at the same rate")
	}
	switch o.npaScheme {
	case npa.EliasGamma, npa.EliasDelta:
	case npa.WaveletTree:
		if o.contextLen == 0 || o.contextLen > 8 {
			return invariants.Errorf("context length %d not in [1, 8]", o.contextLen)
		}
	default:
		return invariants.Errorf("unknown npa encoding scheme %d", o.npaScheme)
	}
	return nil
}

func validateScheme(name string, s sampledarray.Scheme, rate, target uint32) error {
	switch s {
	case sampledarray.FlatSampleByIndex:
	case sampledarray.FlatSampleByValue:
		if !bitmap.IsPowerOfTwo(uint64(rate)) {
			return invariants.Errorf("%s rate %d must be a power of two to sample by value", name, rate)
		}
	case sampledarray.LayeredSampleByIndex, sampledarray.OpportunisticLayeredSampleByIndex:
		if !bitmap.IsPowerOfTwo(uint64(rate)) || !bitmap.IsPowerOfTwo(uint64(target)) || target >= rate {
			return invariants.Errorf("%s layered rates need powers of two with target %d below base %d", name, target, rate)
		}
	default:
		return invariants.Errorf("unknown %s sampling scheme %d", name, s)
	}
	return nil
}
