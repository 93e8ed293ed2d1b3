package api

import (
	"github.com/samcharles93/perceptual/internal/pim"
	"github.com/samcharles93/perceptual/internal/tensor"
)

// TransformOptions selects the NLP configuration for a request. Omitted
// fields take the server defaults.
type TransformOptions struct {
	NumLevels  *int     `json:"num_levels,omitempty"`
	Gamma      *float64 `json:"gamma,omitempty"`
	DataFormat *string  `json:"data_format,omitempty"`
}

// SubbandsRequest asks for the subband shapes of an input shape.
type SubbandsRequest struct {
	TransformOptions
	Shape []int `json:"shape"`
}

// SubbandsResponse lists one shape per pyramid level, finest first.
type SubbandsResponse struct {
	ID         string  `json:"id"`
	Object     string  `json:"object"`
	NumLevels  int     `json:"num_levels"`
	Gamma      float64 `json:"gamma"`
	DataFormat string  `json:"data_format"`
	Shapes     [][]int `json:"shapes"`
}

// Image is a tensor on the wire: a shape and its row-major values.
type Image struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

func (img Image) tensor() (tensor.Tensor, error) {
	return tensor.FromData(tensor.Shape(img.Shape), img.Data)
}

// DistanceRequest carries two images of the same shape.
type DistanceRequest struct {
	TransformOptions
	A Image `json:"a"`
	B Image `json:"b"`
}

// DistanceResponse holds the NLPD between the two request images.
type DistanceResponse struct {
	ID       string  `json:"id"`
	Object   string  `json:"object"`
	Metric   string  `json:"metric"`
	Distance float64 `json:"distance"`
}

// ModelList lists the models present in the weights cache.
type ModelList struct {
	Object string            `json:"object"`
	Data   []pim.CachedModel `json:"data"`
}

// ModelInfo describes a loaded PIM model.
type ModelInfo struct {
	ID            string     `json:"id"`
	Object        string     `json:"object"`
	Params        pim.Params `json:"params"`
	Frontend      string     `json:"frontend"`
	NumParameters int        `json:"num_parameters"`
	Weights       []string   `json:"weights"`
}

// ResponseError is the body of the {"error": ...} envelope.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
