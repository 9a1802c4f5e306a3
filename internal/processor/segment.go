package processor

import (
	"context"
	"fmt"

	"github.com/woozymasta/cropmask/internal/inference"
	"github.com/woozymasta/cropmask/internal/mosaic"
	"github.com/woozymasta/cropmask/internal/raster"

	"github.com/rs/zerolog/log"
)

// Sliding window defaults.
const (
	DefaultPatch  = 64
	DefaultStride = 35
)

// SegmentOptions controls the sliding window inference.
type SegmentOptions struct {
	Patch  int
	Stride int
	// Mean and Std are per band; shorter slices wrap around.
	Mean []float64
	Std  []float64
}

// SegmentSummary describes a finished inference run.
type SegmentSummary struct {
	Windows int
	Patch   int
	Stride  int
}

// Segment runs pred over overlapping patches of img and averages the
// predictions into a probability grid sharing img's georeference.
func Segment(ctx context.Context, img *raster.Image, pred inference.Predictor, opts SegmentOptions) (*raster.Grid, SegmentSummary, error) {
	patch, stride := opts.Patch, opts.Stride
	if patch <= 0 {
		patch = DefaultPatch
	}
	if stride <= 0 {
		stride = DefaultStride
	}
	mean, std := opts.Mean, opts.Std
	if len(mean) == 0 || len(std) == 0 {
		mean, std = inference.DefaultMean, inference.DefaultStd
	}

	sum := SegmentSummary{Patch: patch, Stride: stride}
	if len(img.Bands) == 0 {
		return nil, sum, raster.ErrNoBands
	}

	windows, err := mosaic.Plan(img.Width, img.Height, patch, stride)
	if err != nil {
		return nil, sum, err
	}

	acc := mosaic.NewAccumulator(img.Width, img.Height)
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, sum, err
		}

		p := inference.Patch{Size: patch, Bands: make([][]float64, len(img.Bands))}
		for b, band := range img.Bands {
			tile := mosaic.PadReflect(mosaic.Crop(band, img.Width, w), w.Width, w.Height, patch)
			p.Bands[b] = inference.Normalize(tile, mean[b%len(mean)], std[b%len(std)])
		}

		probs, err := pred.Predict(ctx, p)
		if err != nil {
			return nil, sum, fmt.Errorf("predict window %d at %d,%d: %w", i, w.X, w.Y, err)
		}

		if err := acc.Add(w, mosaic.Unpad(probs, w.Width, w.Height, patch)); err != nil {
			return nil, sum, err
		}
		sum.Windows++

		log.Trace().
			Int("window", i+1).
			Int("total", len(windows)).
			Msg("Predicted window")
	}

	return &raster.Grid{Georef: img.Georef, Data: acc.Probability()}, sum, nil
}
