package pim

import (
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/samcharles93/perceptual/internal/nlpd"
)

// Params are the hyperparameters stored in a model's config.json.
type Params struct {
	// NumScales is the number of pyramid levels of the multi-scale frontend.
	NumScales int `json:"num_scales"`
	// Gamma is the frontend's input power nonlinearity exponent.
	Gamma float64 `json:"gamma"`
	// DataFormat is the dimension ordering of model inputs.
	DataFormat string `json:"data_format"`
	// NumFilters is the number of convolution channels per scale.
	NumFilters int `json:"num_filters"`
	// KernelSize is the spatial size of the encoder convolutions.
	KernelSize int `json:"kernel_size"`
	// NumComponents is the number of mixture components: 1 for pim-1, 5 for
	// pim-5.
	NumComponents int `json:"num_components"`
	// EmbeddingDim is the dimensionality of the per-location representation.
	EmbeddingDim int `json:"embedding_dim"`

	// Extra holds keys this package does not interpret, so configs written
	// by newer trainers round-trip.
	Extra map[string]json.RawMessage `json:"-"`
}

// DefaultParams returns the parameters of an untrained model.
func DefaultParams() Params {
	return Params{
		NumScales:     3,
		Gamma:         nlpd.DefaultGamma,
		DataFormat:    string(nlpd.ChannelsLast),
		NumFilters:    64,
		KernelSize:    5,
		NumComponents: 5,
		EmbeddingDim:  10,
	}
}

var knownKeys = []string{
	"num_scales", "gamma", "data_format", "num_filters",
	"kernel_size", "num_components", "embedding_dim",
}

// Validate checks ranges and that the frontend can be built.
func (p Params) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"num_filters", p.NumFilters},
		{"kernel_size", p.KernelSize},
		{"num_components", p.NumComponents},
		{"embedding_dim", p.EmbeddingDim},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrConfig, c.name, c.value)
		}
	}
	if _, err := p.frontend(); err != nil {
		return err
	}
	return nil
}

func (p Params) frontend() (*nlpd.NLP, error) {
	n, err := nlpd.New(
		nlpd.WithNumLevels(p.NumScales),
		nlpd.WithGamma(p.Gamma),
		nlpd.WithDataFormat(p.DataFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return n, nil
}

// UnmarshalJSON decodes known fields on top of the current values and keeps
// the rest in Extra.
func (p *Params) UnmarshalJSON(data []byte) error {
	type plain Params
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		p.Extra = all
	} else {
		p.Extra = nil
	}
	return nil
}

// MarshalJSON writes known fields and Extra as one object.
func (p Params) MarshalJSON() ([]byte, error) {
	type plain Params
	known, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if !slices.Contains(knownKeys, k) {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// ReadParams parses a config.json file. Fields missing from the file keep
// their DefaultParams values.
func ReadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	params := DefaultParams()
	if err := json.Unmarshal(data, &params); err != nil {
		return Params{}, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}
	return params, nil
}

// WriteParams stores p as indented JSON at path.
func WriteParams(path string, p Params) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
