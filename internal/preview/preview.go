// Package preview renders detected polygons over the source image.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/raster"

	"github.com/chai2010/webp"
	"github.com/paulmach/orb"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/stat"
)

// Reprojector moves a collection into the image CRS.
type Reprojector interface {
	Reproject(fc *geo.FeatureCollection, to geo.CRS) (*geo.FeatureCollection, error)
}

// Options controls rendering.
type Options struct {
	// MaxSize caps the longer edge of the output; 0 keeps full size.
	MaxSize int
	// Fill is drawn over every polygon.
	Fill color.NRGBA
	// Low and High are the stretch percentiles in [0,1].
	Low, High float64
}

// DefaultOptions returns a translucent red overlay with a 2-98% stretch.
func DefaultOptions() Options {
	return Options{
		MaxSize: 2048,
		Fill:    color.NRGBA{R: 255, A: 110},
		Low:     0.02,
		High:    0.98,
	}
}

// Render draws fc over the first three bands of img.
func Render(img *raster.Image, fc *geo.FeatureCollection, proj Reprojector, opts Options) (*image.RGBA, error) {
	if len(img.Bands) == 0 {
		return nil, raster.ErrNoBands
	}

	base := composite(img, opts.Low, opts.High)

	if !fc.Empty() {
		if fc.CRS != img.CRS && proj != nil {
			var err error
			if fc, err = proj.Reproject(fc, img.CRS); err != nil {
				return nil, fmt.Errorf("reproject to image crs: %w", err)
			}
		}
		overlay(base, img.Transform, fc, opts.Fill)
	}

	return Fit(base, opts.MaxSize), nil
}

// composite stretches up to three bands into an RGB image. A single band
// is drawn as grey.
func composite(img *raster.Image, low, high float64) *image.RGBA {
	channels := make([][]uint8, 3)
	for i := range channels {
		b := img.Bands[min(i, len(img.Bands)-1)]
		channels[i] = stretch(b, low, high)
	}

	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i := 0; i < img.Width*img.Height; i++ {
		out.Pix[i*4] = channels[0][i]
		out.Pix[i*4+1] = channels[1][i]
		out.Pix[i*4+2] = channels[2][i]
		out.Pix[i*4+3] = 0xff
	}
	return out
}

// stretch maps the low..high percentile range of band linearly onto 0..255.
func stretch(band []float64, low, high float64) []uint8 {
	valid := make([]float64, 0, len(band))
	for _, v := range band {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}

	out := make([]uint8, len(band))
	if len(valid) == 0 {
		return out
	}

	slices.Sort(valid)
	lo := stat.Quantile(low, stat.Empirical, valid, nil)
	hi := stat.Quantile(high, stat.Empirical, valid, nil)
	if hi <= lo {
		hi = lo + 1
	}

	for i, v := range band {
		if math.IsNaN(v) {
			continue
		}
		s := (v - lo) / (hi - lo)
		out[i] = uint8(math.Round(math.Max(0, math.Min(1, s)) * 255))
	}
	return out
}

// overlay fills every polygon, holes excluded, in pixel space.
func overlay(dst *image.RGBA, t geo.Affine, fc *geo.FeatureCollection, fill color.NRGBA) {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())

	addRing := func(r orb.Ring) {
		for i, p := range r {
			col, row := t.Invert(p[0], p[1])
			if i == 0 {
				z.MoveTo(float32(col), float32(row))
				continue
			}
			z.LineTo(float32(col), float32(row))
		}
		z.ClosePath()
	}

	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			for _, r := range g {
				addRing(r)
			}
		case orb.MultiPolygon:
			for _, p := range g {
				for _, r := range p {
					addRing(r)
				}
			}
		}
	}

	z.Draw(dst, b, image.NewUniform(fill), image.Point{})
}

// Fit scales src down so its longer edge is at most maxSize.
func Fit(src *image.RGBA, maxSize int) *image.RGBA {
	b := src.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxSize <= 0 || longest <= maxSize {
		return src
	}

	scale := float64(maxSize) / float64(longest)
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// WriteWebP encodes img as lossy WebP and renames it into place.
func WriteWebP(path string, img image.Image, quality int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := webp.Encode(tmp, img, &webp.Options{Lossless: false, Quality: float32(quality)}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode webp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
