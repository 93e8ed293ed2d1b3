// Package imageio decodes image files into tensors for the perceptual
// transforms.
package imageio

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/samcharles93/perceptual/internal/nlpd"
	"github.com/samcharles93/perceptual/internal/tensor"
)

// ErrUnsupported is returned for images that cannot be decoded.
var ErrUnsupported = errors.New("imageio: unsupported image")

// Options controls how pixels become tensor values.
type Options struct {
	// Gray averages RGB into a single luma channel (Rec. 601 weights).
	Gray bool
	// Format picks the output layout: channels_last gives (1, H, W, C),
	// channels_first gives (C, H, W).
	Format nlpd.DataFormat
	// Scale multiplies 8-bit values; 1/255 maps to [0, 1]. Zero means 1/255.
	Scale float32
}

// Load decodes the PNG or JPEG at path.
func Load(path string, opts Options) (tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return tensor.Tensor{}, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("%w: %s: %v", ErrUnsupported, path, err)
	}
	return FromImage(img, opts)
}

// FromImage converts img to a tensor laid out per opts.
func FromImage(img image.Image, opts Options) (tensor.Tensor, error) {
	if opts.Format == "" {
		opts.Format = nlpd.ChannelsLast
	}
	if _, err := nlpd.ParseDataFormat(string(opts.Format)); err != nil {
		return tensor.Tensor{}, err
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1.0 / 255
	}

	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	c := 3
	if opts.Gray {
		c = 1
	}

	var shape tensor.Shape
	var index func(y, x, ch int) int
	if opts.Format == nlpd.ChannelsLast {
		shape = tensor.Shape{1, h, w, c}
		index = func(y, x, ch int) int { return (y*w+x)*c + ch }
	} else {
		shape = tensor.Shape{c, h, w}
		index = func(y, x, ch int) int { return (ch*h+y)*w + x }
	}
	out, err := tensor.Zeros(shape)
	if err != nil {
		return tensor.Tensor{}, err
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rf, gf, bf := float32(r>>8), float32(g>>8), float32(bl>>8)
			if opts.Gray {
				out.Data[index(y, x, 0)] = scale * (0.299*rf + 0.587*gf + 0.114*bf)
				continue
			}
			out.Data[index(y, x, 0)] = scale * rf
			out.Data[index(y, x, 1)] = scale * gf
			out.Data[index(y, x, 2)] = scale * bf
		}
	}
	return out, nil
}
