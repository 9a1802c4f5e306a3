// Package mosaic plans overlapping inference windows over a raster and
// stitches per-window predictions back into one probability grid.
package mosaic

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrBadWindow is returned for windows that fall outside the accumulator.
var ErrBadWindow = errors.New("window outside raster")

// Window is a rectangular region of pixels.
type Window struct {
	X, Y          int
	Width, Height int
}

// Plan returns windows of patch size placed every stride pixels, clipped to
// the raster. The last row and column of windows may be smaller than patch.
func Plan(width, height, patch, stride int) ([]Window, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if patch <= 0 || stride <= 0 {
		return nil, fmt.Errorf("invalid patch %d / stride %d", patch, stride)
	}

	var windows []Window
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			windows = append(windows, Window{
				X:      x,
				Y:      y,
				Width:  min(patch, width-x),
				Height: min(patch, height-y),
			})
		}
	}

	return windows, nil
}

// Crop copies the window out of a full-size band.
func Crop(band []float64, width int, w Window) []float64 {
	out := make([]float64, w.Width*w.Height)
	for r := 0; r < w.Height; r++ {
		src := (w.Y+r)*width + w.X
		copy(out[r*w.Width:(r+1)*w.Width], band[src:src+w.Width])
	}
	return out
}

// PadReflect grows a w x h patch to size x size by mirroring at the right and
// bottom edges, repeating the edge pixel (fedcba|abcdef|fedcba).
func PadReflect(patch []float64, w, h, size int) []float64 {
	if w == size && h == size {
		return patch
	}

	out := make([]float64, size*size)
	for r := 0; r < size; r++ {
		sr := reflect(r, h)
		for c := 0; c < size; c++ {
			out[r*size+c] = patch[sr*w+reflect(c, w)]
		}
	}
	return out
}

func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// Unpad cuts the top-left w x h region out of a size x size prediction.
func Unpad(pred []float64, w, h, size int) []float64 {
	if w == size && h == size {
		return pred
	}

	out := make([]float64, w*h)
	for r := 0; r < h; r++ {
		copy(out[r*w:(r+1)*w], pred[r*size:r*size+w])
	}
	return out
}

// Accumulator sums overlapping window predictions and counts coverage.
type Accumulator struct {
	Width, Height int

	sum   []float64
	count []float64
}

// NewAccumulator allocates an accumulator for a width x height raster.
func NewAccumulator(width, height int) *Accumulator {
	return &Accumulator{
		Width:  width,
		Height: height,
		sum:    make([]float64, width*height),
		count:  make([]float64, width*height),
	}
}

// Add folds a window's prediction (w.Width x w.Height, row-major) into the sums.
func (a *Accumulator) Add(w Window, pred []float64) error {
	if w.X < 0 || w.Y < 0 || w.X+w.Width > a.Width || w.Y+w.Height > a.Height {
		return fmt.Errorf("%w: %+v", ErrBadWindow, w)
	}
	if len(pred) != w.Width*w.Height {
		return fmt.Errorf("prediction has %d values, window needs %d", len(pred), w.Width*w.Height)
	}

	for r := 0; r < w.Height; r++ {
		off := (w.Y+r)*a.Width + w.X
		floats.Add(a.sum[off:off+w.Width], pred[r*w.Width:(r+1)*w.Width])
		floats.AddConst(1, a.count[off:off+w.Width])
	}

	return nil
}

// Probability returns the per-pixel mean of all predictions covering it.
// Pixels never covered are zero.
func (a *Accumulator) Probability() []float64 {
	out := make([]float64, len(a.sum))
	copy(out, a.sum)
	for i, c := range a.count {
		if c > 1 {
			out[i] /= c
		}
	}
	return out
}
