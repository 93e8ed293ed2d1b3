package tensor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShape is returned for negative or overflowing dimensions.
	ErrInvalidShape = errors.New("tensor: invalid shape")

	// ErrDataMismatch is returned when a data slice does not fill its shape.
	ErrDataMismatch = errors.New("tensor: data length does not match shape")
)

// Tensor is a dense row-major tensor of float32 values.
//
// Data is shared, not copied, by FromData and Reshape. Callers that need an
// independent tensor use Clone.
type Tensor struct {
	shape Shape
	Data  []float32
}

// Zeros allocates a zero-filled tensor.
func Zeros(shape Shape) (Tensor, error) {
	if err := shape.Validate(); err != nil {
		return Tensor{}, err
	}
	return Tensor{
		shape: shape.Clone(),
		Data:  make([]float32, shape.NumElements()),
	}, nil
}

// MustZeros is Zeros for shapes known to be valid. It panics otherwise.
func MustZeros(dims ...int) Tensor {
	t, err := Zeros(Shape(dims))
	if err != nil {
		panic(err)
	}
	return t
}

// FromData wraps data in a tensor of the given shape.
func FromData(shape Shape, data []float32) (Tensor, error) {
	if err := shape.Validate(); err != nil {
		return Tensor{}, err
	}
	if want := shape.NumElements(); want != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %s wants %d values, got %d", ErrDataMismatch, shape, want, len(data))
	}
	return Tensor{shape: shape.Clone(), Data: data}, nil
}

// Shape returns a copy of the tensor's shape.
func (t Tensor) Shape() Shape { return t.shape.Clone() }

// Rank returns the number of dimensions.
func (t Tensor) Rank() int { return len(t.shape) }

// Dim returns dimension i. Negative indices count from the end.
func (t Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Len returns the number of elements.
func (t Tensor) Len() int { return len(t.Data) }

// Check verifies that Data fills the shape exactly.
func (t Tensor) Check() error {
	if err := t.shape.Validate(); err != nil {
		return err
	}
	if want := t.shape.NumElements(); want != len(t.Data) {
		return fmt.Errorf("%w: shape %s wants %d values, got %d", ErrDataMismatch, t.shape, want, len(t.Data))
	}
	return nil
}

// Clone deep-copies the tensor.
func (t Tensor) Clone() Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return Tensor{shape: t.shape.Clone(), Data: data}
}

// Reshape returns a view of the same data with a new shape.
func (t Tensor) Reshape(shape Shape) (Tensor, error) {
	return FromData(shape, t.Data)
}

// At returns the element at the given multi-index. It panics on a rank
// mismatch or out-of-range index, like slice indexing.
func (t Tensor) At(idx ...int) float32 {
	return t.Data[t.offset(idx)]
}

// Set stores v at the given multi-index.
func (t Tensor) Set(v float32, idx ...int) {
	t.Data[t.offset(idx)] = v
}

func (t Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index rank %d for shape %s", len(idx), t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dim %d of %s", v, i, t.shape))
		}
		off = off*t.shape[i] + v
	}
	return off
}
