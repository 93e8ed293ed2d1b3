package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape lists the dimensions of a tensor, outermost first.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// NumElements returns the product of all dimensions. A rank-0 shape holds a
// single element.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate reports an error if any dimension is negative or the element count
// overflows int. Zero-sized dimensions are allowed; they occur naturally at
// the coarse end of a pyramid.
func (s Shape) Validate() error {
	n := 1
	for i, d := range s {
		if d < 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrInvalidShape, i, d)
		}
		if d != 0 && n > (int(^uint(0)>>1))/d {
			return fmt.Errorf("%w: too many elements", ErrInvalidShape)
		}
		n *= d
	}
	return nil
}

// Equal reports whether both shapes have the same rank and dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Strides returns row-major strides in elements.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// String renders the shape as "(a, b, c)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ParseShape parses "32x16", "32,16" or "(1, 16, 16, 2)".
func ParseShape(text string) (Shape, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "(")
	text = strings.TrimSuffix(text, ")")
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty shape", ErrInvalidShape)
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == 'x' || r == 'X'
	})
	out := make(Shape, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidShape, strings.TrimSpace(f))
		}
		out = append(out, d)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
