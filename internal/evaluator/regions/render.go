package regions

import (
	"image"
	"image/color"
	"math"
)

// Frame is a single-channel image stored row-major.
type Frame struct {
	Width  int
	Height int
	Pix    []float64
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// At returns the value at (row, col).
func (f Frame) At(row, col int) float64 {
	return f.Pix[row*f.Width+col]
}

// Set stores v at (row, col).
func (f Frame) Set(row, col int, v float64) {
	f.Pix[row*f.Width+col] = v
}

// MeanFrame averages equally sized frames pixel by pixel.
func MeanFrame(frames []Frame) (Frame, bool) {
	if len(frames) == 0 {
		return Frame{}, false
	}
	w, h := frames[0].Width, frames[0].Height
	out := NewFrame(w, h)
	for _, f := range frames {
		if f.Width != w || f.Height != h {
			return Frame{}, false
		}
		for i, v := range f.Pix {
			out.Pix[i] += v
		}
	}
	n := float64(len(frames))
	for i := range out.Pix {
		out.Pix[i] /= n
	}
	return out, true
}

// gray rescales the frame into 0..255 by its own range.
func (f Frame) gray() []uint8 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range f.Pix {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]uint8, len(f.Pix))
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		return out
	}
	for i, v := range f.Pix {
		out[i] = uint8(math.Round((v - lo) / span * 255))
	}
	return out
}

var palette = []color.RGBA{
	{R: 230, G: 25, B: 75, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 255, G: 225, B: 25, A: 255},
	{R: 0, G: 130, B: 200, A: 255},
	{R: 245, G: 130, B: 48, A: 255},
	{R: 145, G: 30, B: 180, A: 255},
	{R: 70, G: 240, B: 240, A: 255},
	{R: 240, G: 50, B: 230, A: 255},
}

// Masks draws the sources over base. With no sources the result is the
// grayscale base; otherwise an RGB image with each source tinted.
func (s Set) Masks(base Frame) image.Image {
	rect := image.Rect(0, 0, base.Width, base.Height)
	g := base.gray()
	if len(s) == 0 {
		img := image.NewGray(rect)
		copy(img.Pix, g)
		return img
	}

	img := image.NewRGBA(rect)
	for i, v := range g {
		img.Pix[i*4+0] = v
		img.Pix[i*4+1] = v
		img.Pix[i*4+2] = v
		img.Pix[i*4+3] = 255
	}
	for i, src := range s {
		c := palette[i%len(palette)]
		for _, p := range src.Coordinates {
			row, col := p[0], p[1]
			if row < 0 || col < 0 || row >= base.Height || col >= base.Width {
				continue
			}
			off := (row*base.Width + col) * 4
			img.Pix[off+0] = blend(img.Pix[off+0], c.R)
			img.Pix[off+1] = blend(img.Pix[off+1], c.G)
			img.Pix[off+2] = blend(img.Pix[off+2], c.B)
		}
	}
	return img
}

func blend(a, b uint8) uint8 {
	return uint8((uint16(a) + uint16(b)) / 2)
}
