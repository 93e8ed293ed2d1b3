package nlpd

import (
	"fmt"
	"math"

	"github.com/samcharles93/perceptual/internal/tensor"
)

// Distance returns the NLPD between a and b: the root mean squared difference
// of each pair of subbands, averaged over levels. Levels that collapse to zero
// elements are skipped. Identical inputs give 0.
func (n *NLP) Distance(a, b tensor.Tensor) (float64, error) {
	if !a.Shape().Equal(b.Shape()) {
		return 0, fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, a.Shape(), b.Shape())
	}
	sa, err := n.Transform(a)
	if err != nil {
		return 0, err
	}
	sb, err := n.Transform(b)
	if err != nil {
		return 0, err
	}

	var total float64
	counted := 0
	for level := range sa {
		x, y := sa[level].Data, sb[level].Data
		if len(x) == 0 {
			continue
		}
		var sq float64
		for i := range x {
			d := float64(x[i]) - float64(y[i])
			sq += d * d
		}
		total += math.Sqrt(sq / float64(len(x)))
		counted++
	}
	if counted == 0 {
		return 0, nil
	}
	return total / float64(counted), nil
}
