// Package nlpd implements the Normalized Laplacian Pyramid (NLP) transform
// and the NLPD distance built on it.
//
// An NLP is configured once and is safe to use from multiple goroutines: its
// fields are unexported and never modified after New returns.
package nlpd

import (
	"errors"
	"fmt"
	"math"
)

// DataFormat names the dimension ordering of an image tensor.
type DataFormat string

const (
	// ChannelsFirst puts the two spatial dimensions last: (..., H, W).
	ChannelsFirst DataFormat = "channels_first"
	// ChannelsLast uses (batch..., H, W, C).
	ChannelsLast DataFormat = "channels_last"
)

// Defaults used when an option is not given.
const (
	DefaultNumLevels  = 6
	DefaultGamma      = 2.6
	DefaultDataFormat = ChannelsLast
)

var (
	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("nlpd: invalid configuration")

	// ErrInvalidShape is returned when an input has too few dimensions for the
	// configured data format or its data does not fill its shape.
	ErrInvalidShape = errors.New("nlpd: invalid input shape")

	// ErrShapeMismatch is returned by Distance for inputs of different shapes.
	ErrShapeMismatch = errors.New("nlpd: input shapes differ")
)

// ParseDataFormat validates s as a DataFormat.
func ParseDataFormat(s string) (DataFormat, error) {
	switch DataFormat(s) {
	case ChannelsFirst, ChannelsLast:
		return DataFormat(s), nil
	default:
		return "", fmt.Errorf("%w: data_format must be %q or %q, got %q", ErrInvalidConfig, ChannelsFirst, ChannelsLast, s)
	}
}

// minRank is the smallest input rank accepted for the format.
func (f DataFormat) minRank() int {
	if f == ChannelsLast {
		return 4
	}
	return 2
}

// Config holds NLP parameters in serializable form. Zero values are replaced
// by defaults in NewFromConfig.
type Config struct {
	NumLevels  int     `json:"num_levels,omitempty" yaml:"num_levels"`
	Gamma      float64 `json:"gamma,omitempty" yaml:"gamma"`
	DataFormat string  `json:"data_format,omitempty" yaml:"data_format"`
}

// Option configures New.
type Option func(*Config)

// WithNumLevels sets the number of pyramid levels.
func WithNumLevels(n int) Option {
	return func(c *Config) { c.NumLevels = n }
}

// WithGamma sets the exponent of the input power nonlinearity x^(1/gamma).
func WithGamma(g float64) Option {
	return func(c *Config) { c.Gamma = g }
}

// WithDataFormat sets the dimension ordering of inputs.
func WithDataFormat(f string) Option {
	return func(c *Config) { c.DataFormat = f }
}

// NLP is a configured Normalized Laplacian Pyramid.
type NLP struct {
	numLevels  int
	gamma      float64
	dataFormat DataFormat
}

// New builds an NLP from options, starting from the package defaults.
// Options are validated as given: an explicit zero is an error, not a request
// for the default.
func New(opts ...Option) (*NLP, error) {
	cfg := Config{
		NumLevels:  DefaultNumLevels,
		Gamma:      DefaultGamma,
		DataFormat: string(DefaultDataFormat),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return build(cfg)
}

// NewFromConfig builds an NLP from cfg. Unset (zero) fields take defaults;
// negative or unrecognized values are rejected.
func NewFromConfig(cfg Config) (*NLP, error) {
	if cfg.NumLevels == 0 {
		cfg.NumLevels = DefaultNumLevels
	}
	if cfg.Gamma == 0 {
		cfg.Gamma = DefaultGamma
	}
	if cfg.DataFormat == "" {
		cfg.DataFormat = string(DefaultDataFormat)
	}
	return build(cfg)
}

func build(cfg Config) (*NLP, error) {
	if cfg.NumLevels <= 0 {
		return nil, fmt.Errorf("%w: num_levels must be positive, got %d", ErrInvalidConfig, cfg.NumLevels)
	}
	if !(cfg.Gamma > 0) || math.IsInf(cfg.Gamma, 0) {
		return nil, fmt.Errorf("%w: gamma must be a positive number, got %v", ErrInvalidConfig, cfg.Gamma)
	}
	format, err := ParseDataFormat(cfg.DataFormat)
	if err != nil {
		return nil, err
	}
	return &NLP{
		numLevels:  cfg.NumLevels,
		gamma:      cfg.Gamma,
		dataFormat: format,
	}, nil
}

// NumLevels returns the number of subbands produced per call.
func (n *NLP) NumLevels() int { return n.numLevels }

// Gamma returns the power nonlinearity exponent.
func (n *NLP) Gamma() float64 { return n.gamma }

// DataFormat returns the expected input dimension ordering.
func (n *NLP) DataFormat() DataFormat { return n.dataFormat }

// Config returns the configuration the NLP was built with.
func (n *NLP) Config() Config {
	return Config{
		NumLevels:  n.numLevels,
		Gamma:      n.gamma,
		DataFormat: string(n.dataFormat),
	}
}

func (n *NLP) String() string {
	return fmt.Sprintf("NLP(num_levels=%d, gamma=%g, data_format=%s)", n.numLevels, n.gamma, n.dataFormat)
}
