package nlpd

import (
	"fmt"

	"github.com/samcharles93/perceptual/internal/tensor"
)

// spatialAxes returns the indices of the height and width dimensions of an
// input of the given rank, or an error when the rank is too small.
func (n *NLP) spatialAxes(rank int) (hAxis, wAxis int, err error) {
	if rank < n.dataFormat.minRank() {
		return 0, 0, fmt.Errorf("%w: %s input needs rank >= %d, got rank %d",
			ErrInvalidShape, n.dataFormat, n.dataFormat.minRank(), rank)
	}
	if n.dataFormat == ChannelsLast {
		return rank - 3, rank - 2, nil
	}
	return rank - 2, rank - 1, nil
}

// SubbandShapes returns the shape of every subband Transform would produce for
// an input of the given shape. Level 0 matches the input; each following level
// halves height and width with floor division and keeps every other
// dimension.
func (n *NLP) SubbandShapes(shape tensor.Shape) ([]tensor.Shape, error) {
	hAxis, wAxis, err := n.spatialAxes(shape.Rank())
	if err != nil {
		return nil, err
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	shapes := make([]tensor.Shape, n.numLevels)
	cur := shape.Clone()
	for level := range n.numLevels {
		shapes[level] = cur
		next := cur.Clone()
		next[hAxis] /= 2
		next[wAxis] /= 2
		cur = next
	}
	return shapes, nil
}

// planeLayout describes a tensor as outer × H × W × inner, where each
// (outer, inner) pair selects one H×W plane.
type planeLayout struct {
	outer, h, w, inner int
}

func (n *NLP) layout(shape tensor.Shape) planeLayout {
	hAxis, wAxis, _ := n.spatialAxes(shape.Rank())
	l := planeLayout{outer: 1, h: shape[hAxis], w: shape[wAxis], inner: 1}
	for i := 0; i < hAxis; i++ {
		l.outer *= shape[i]
	}
	for i := wAxis + 1; i < shape.Rank(); i++ {
		l.inner *= shape[i]
	}
	return l
}

func (l planeLayout) planes() int { return l.outer * l.inner }

// gather copies plane p of data into dst (length h*w).
func (l planeLayout) gather(dst, data []float32, p int) {
	o, c := p/l.inner, p%l.inner
	base := o * l.h * l.w * l.inner
	for y := 0; y < l.h; y++ {
		for x := 0; x < l.w; x++ {
			dst[y*l.w+x] = data[base+(y*l.w+x)*l.inner+c]
		}
	}
}

// scatter writes src (length h*w) into plane p of data.
func (l planeLayout) scatter(data, src []float32, p int) {
	o, c := p/l.inner, p%l.inner
	base := o * l.h * l.w * l.inner
	for y := 0; y < l.h; y++ {
		for x := 0; x < l.w; x++ {
			data[base+(y*l.w+x)*l.inner+c] = src[y*l.w+x]
		}
	}
}
