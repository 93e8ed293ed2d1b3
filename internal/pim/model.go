package pim

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/samcharles93/perceptual/internal/nlpd"
	"github.com/samcharles93/perceptual/internal/safetensors"
	"github.com/samcharles93/perceptual/internal/tensor"
)

// weightsFileExt is tried after the bare weights path.
const weightsFileExt = ".safetensors"

// Model is a configured PIM model: its parameters, its multi-scale frontend
// and, once LoadWeights has run, its trained variables.
type Model struct {
	params   Params
	frontend *nlpd.NLP
	weights  map[string]tensor.Tensor
	source   string
}

// NewModel builds an untrained model from params.
func NewModel(params Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	frontend, err := params.frontend()
	if err != nil {
		return nil, err
	}
	return &Model{
		params:   params,
		frontend: frontend,
		weights:  map[string]tensor.Tensor{},
	}, nil
}

// Params returns the model's hyperparameters.
func (m *Model) Params() Params { return m.params }

// Frontend returns the Laplacian pyramid that feeds the encoder.
func (m *Model) Frontend() *nlpd.NLP { return m.frontend }

// WeightsSource is the file the weights were loaded from, empty for an
// untrained model.
func (m *Model) WeightsSource() string { return m.source }

// WeightNames lists loaded variables in sorted order.
func (m *Model) WeightNames() []string {
	names := make([]string, 0, len(m.weights))
	for name := range m.weights {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Weight returns a loaded variable by name.
func (m *Model) Weight(name string) (tensor.Tensor, bool) {
	t, ok := m.weights[name]
	return t, ok
}

// NumParameters counts the scalar values across all loaded variables.
func (m *Model) NumParameters() int {
	n := 0
	for _, t := range m.weights {
		n += t.Len()
	}
	return n
}

// LoadWeights replaces the model's variables with those stored at path. The
// path may name a safetensors file directly or be a prefix to which
// ".safetensors" is appended.
func (m *Model) LoadWeights(path string) error {
	file, err := resolveWeightsFile(path)
	if err != nil {
		return err
	}
	st, err := safetensors.Open(file)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWeights, err)
	}
	weights := make(map[string]tensor.Tensor, len(st.Tensors))
	for _, name := range st.Names() {
		t, err := st.ReadTensorF32(name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWeights, err)
		}
		weights[name] = t
	}
	m.weights = weights
	m.source = file
	return nil
}

// SaveWeights writes the model's variables as a safetensors file.
func (m *Model) SaveWeights(path string) error {
	return safetensors.Write(path, m.weights, map[string]string{"format": "pim"})
}

// SetWeight adds or replaces a variable.
func (m *Model) SetWeight(name string, t tensor.Tensor) error {
	if err := t.Check(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWeights, name, err)
	}
	m.weights[name] = t
	return nil
}

func resolveWeightsFile(path string) (string, error) {
	for _, candidate := range []string{path, path + weightsFileExt} {
		st, err := os.Stat(candidate)
		if err == nil && st.Mode().IsRegular() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", ErrWeights, err)
		}
	}
	if _, err := os.Stat(path + ".index"); err == nil {
		return "", fmt.Errorf("%w: %s.index is a TensorFlow checkpoint, which is not supported; convert it to safetensors",
			ErrWeights, filepath.Clean(path))
	}
	return "", fmt.Errorf("%w: no weights at %s", ErrWeights, filepath.Clean(path))
}
