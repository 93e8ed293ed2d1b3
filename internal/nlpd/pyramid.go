package nlpd

import (
	"fmt"
	"math"

	"github.com/samcharles93/perceptual/internal/tensor"
)

// binomial5 is the separable 5-tap lowpass used for both decimation and the
// local amplitude estimate. It sums to 1.
var binomial5 = [5]float32{0.05, 0.25, 0.4, 0.25, 0.05}

// normSigma is the additive constant of the divisive normalization.
const normSigma = 0.17

// Transform decomposes img into NumLevels normalized subbands. Subband 0 has
// the shape of img; see SubbandShapes for the rest. The last subband is the
// normalized lowpass residual.
func (n *NLP) Transform(img tensor.Tensor) ([]tensor.Tensor, error) {
	shapes, err := n.SubbandShapes(img.Shape())
	if err != nil {
		return nil, err
	}
	if err := img.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}

	layouts := make([]planeLayout, len(shapes))
	out := make([]tensor.Tensor, len(shapes))
	for i, s := range shapes {
		layouts[i] = n.layout(s)
		t, err := tensor.Zeros(s)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}

	top := layouts[0]
	s := newScratch(top.h, top.w)
	for p := range top.planes() {
		cur := s.take(top.h * top.w)
		top.gather(cur, img.Data, p)
		powInPlace(cur, n.gamma)
		h, w := top.h, top.w

		for level := range n.numLevels {
			band := cur
			var low []float32
			if level < n.numLevels-1 {
				low = downsample(cur, h, w, s)
				band = s.take(h * w)
				upsample(band, low, h/2, w/2, h, w, s)
				for i := range band {
					band[i] = cur[i] - band[i]
				}
			}
			normalize(band, h, w, s)
			layouts[level].scatter(out[level].Data, band, p)
			cur = low
			h, w = h/2, w/2
		}
		s.reset()
	}
	return out, nil
}

// scratch is a bump allocator for per-plane temporaries.
type scratch struct {
	buf []float32
	off int
}

func newScratch(h, w int) *scratch {
	// The top level takes about nine h*w buffers and the coarser levels add a
	// third of that again.
	return &scratch{buf: make([]float32, 12*h*w+64)}
}

func (s *scratch) take(n int) []float32 {
	if s.off+n > len(s.buf) {
		grown := make([]float32, 2*(s.off+n))
		s.buf = grown
		s.off = 0
	}
	out := s.buf[s.off : s.off+n : s.off+n]
	s.off += n
	clear(out)
	return out
}

func (s *scratch) reset() { s.off = 0 }

// powInPlace applies the sign-preserving power |x|^(1/gamma).
func powInPlace(x []float32, gamma float64) {
	inv := 1 / gamma
	for i, v := range x {
		a := math.Pow(math.Abs(float64(v)), inv)
		if v < 0 {
			a = -a
		}
		x[i] = float32(a)
	}
}

// reflect maps i into [0, n) by symmetric reflection without repeating the
// edge sample.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// blur convolves src (h×w) with binomial5 along both axes, scaled by gain per
// axis, and writes into dst.
func blur(dst, src []float32, h, w int, gain float32, s *scratch) {
	tmp := s.take(h * w)
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc float32
			for k, c := range binomial5 {
				acc += c * row[reflect(x+k-2, w)]
			}
			tmp[y*w+x] = gain * acc
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float32
			for k, c := range binomial5 {
				acc += c * tmp[reflect(y+k-2, h)*w+x]
			}
			dst[y*w+x] = gain * acc
		}
	}
}

// downsample blurs src and keeps every second sample, producing
// (h/2)×(w/2) with floor division.
func downsample(src []float32, h, w int, s *scratch) []float32 {
	lh, lw := h/2, w/2
	low := s.take(lh * lw)
	if lh == 0 || lw == 0 {
		return low
	}
	blurred := s.take(h * w)
	blur(blurred, src, h, w, 1, s)
	for y := 0; y < lh; y++ {
		for x := 0; x < lw; x++ {
			low[y*lw+x] = blurred[2*y*w+2*x]
		}
	}
	return low
}

// upsample expands low (lh×lw) to h×w by zero insertion followed by an
// interpolating blur, writing into dst.
func upsample(dst, low []float32, lh, lw, h, w int, s *scratch) {
	if h == 0 || w == 0 {
		return
	}
	sparse := s.take(h * w)
	for y := 0; y < lh; y++ {
		for x := 0; x < lw; x++ {
			sparse[2*y*w+2*x] = low[y*lw+x]
		}
	}
	blur(dst, sparse, h, w, 2, s)
}

// normalize divides band by sigma plus its local mean amplitude.
func normalize(band []float32, h, w int, s *scratch) {
	if h == 0 || w == 0 {
		return
	}
	amp := s.take(h * w)
	for i, v := range band {
		if v < 0 {
			v = -v
		}
		amp[i] = v
	}
	local := s.take(h * w)
	blur(local, amp, h, w, 1, s)
	for i := range band {
		band[i] /= normSigma + local[i]
	}
}
