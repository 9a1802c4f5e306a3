package processor

import (
	"context"
	"fmt"

	"github.com/woozymasta/cropmask/internal/config"
	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/inference"
	"github.com/woozymasta/cropmask/internal/preview"
	"github.com/woozymasta/cropmask/internal/raster"

	"github.com/rs/zerolog/log"
)

// Report collects the stage summaries of a pipeline run.
type Report struct {
	Segment   *SegmentSummary
	Vectorize VectorizeSummary
	Borders   BorderSummary
	Merge     MergeSummary
	// StoppedAt names the stage that ended the run early, if any.
	StoppedAt string
	Preview   string
}

// Pipeline runs every stage in memory, writing only the configured outputs.
type Pipeline struct {
	Config    *config.Config
	Projector Reprojector
	// Predictor is required when the config enables segmentation.
	Predictor inference.Predictor
}

// Run executes Segment/Vectorize, Borders and Merge in order, then the
// preview when configured. A stage with nothing to pass on stops the run
// without error.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var rep Report
	cfg := p.Config
	wo := geo.WriteOptions{Indent: cfg.Indent}

	grid, err := p.probability(ctx, &rep)
	if err != nil {
		return rep, err
	}

	fc, sum, err := Vectorize(grid, *cfg.Vectorize.Threshold, VectorizeOptions{
		Connectivity: cfg.Vectorize.Connectivity,
		MinPixels:    cfg.Vectorize.MinPixels,
	})
	if err != nil {
		return rep, fmt.Errorf("vectorize: %w", err)
	}
	rep.Vectorize = sum
	logVectorize(p.source(), sum)
	if sum.Status != StatusOK {
		return p.stop(rep, "vectorize", sum.Status), nil
	}
	if err := saveOptional(cfg.Vectorize.Output, fc, wo); err != nil {
		return rep, err
	}

	ref := grid.Georef
	if cfg.Borders.Raster != "" && cfg.Borders.Raster != p.source() {
		if ref, err = raster.ReadGeoref(cfg.Borders.Raster); err != nil {
			return rep, fmt.Errorf("read reference raster: %w", err)
		}
	}

	fc, rep.Borders, err = FilterBorders(fc, ref, *cfg.Borders.Margin, p.Projector)
	if err != nil {
		return rep, fmt.Errorf("borders: %w", err)
	}
	logBorders(*cfg.Borders.Margin, rep.Borders)
	if rep.Borders.Status != StatusOK {
		return p.stop(rep, "borders", rep.Borders.Status), nil
	}
	if err := saveOptional(cfg.Borders.Output, fc, wo); err != nil {
		return rep, err
	}

	opts := MergeOptions{
		ProximityMeters:   cfg.Merge.Proximity,
		MinAreaSqM:        *cfg.Merge.MinArea,
		SimplifyTolerance: *cfg.Merge.Simplify,
	}
	fc, rep.Merge, err = SmartMerge(fc, opts, p.Projector)
	if err != nil {
		return rep, fmt.Errorf("merge: %w", err)
	}
	logMerge(opts, rep.Merge)
	if rep.Merge.Status != StatusOK {
		return p.stop(rep, "merge", rep.Merge.Status), nil
	}
	if err := saveFeatures(cfg.Merge.Output, fc, wo); err != nil {
		return rep, err
	}

	if cfg.Preview.Output != "" {
		if err := p.preview(fc); err != nil {
			return rep, fmt.Errorf("preview: %w", err)
		}
		rep.Preview = cfg.Preview.Output
	}

	return rep, nil
}

func (p *Pipeline) source() string {
	if p.Config.Segment.Enabled() {
		return p.Config.Segment.Image
	}
	return p.Config.Vectorize.Probability
}

func (p *Pipeline) probability(ctx context.Context, rep *Report) (*raster.Grid, error) {
	cfg := p.Config

	if !cfg.Segment.Enabled() {
		grid, err := raster.ReadGrid(cfg.Vectorize.Probability, cfg.Vectorize.Band)
		if err != nil {
			return nil, fmt.Errorf("read probability raster: %w", err)
		}
		return grid, nil
	}

	if p.Predictor == nil {
		return nil, fmt.Errorf("segmentation enabled without a predictor")
	}

	grid, sum, err := ProcessSegment(ctx, SegmentJob{
		Image:  cfg.Segment.Image,
		Output: cfg.Segment.Output,
		Options: SegmentOptions{
			Patch:  cfg.Segment.Patch,
			Stride: cfg.Segment.Stride,
		},
	}, p.Predictor)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	rep.Segment = &sum

	return grid, nil
}

func (p *Pipeline) preview(fc *geo.FeatureCollection) error {
	cfg := p.Config.Preview

	img, err := raster.ReadImage(cfg.Image, 3)
	if err != nil {
		return err
	}

	opts := preview.DefaultOptions()
	opts.MaxSize = cfg.MaxSize

	var proj preview.Reprojector
	if p.Projector != nil {
		proj = p.Projector
	}

	out, err := preview.Render(img, fc, proj, opts)
	if err != nil {
		return err
	}

	if err := preview.WriteWebP(cfg.Output, out, cfg.Quality); err != nil {
		return err
	}

	log.Info().Str("path", cfg.Output).Msg("Preview saved")
	return nil
}

func (p *Pipeline) stop(rep Report, stage string, status Status) Report {
	rep.StoppedAt = stage
	log.Warn().
		Str("stage", stage).
		Str("status", status.String()).
		Msg("Pipeline stopped, later stages skipped")
	return rep
}

func saveOptional(path string, fc *geo.FeatureCollection, opts geo.WriteOptions) error {
	if path == "" {
		return nil
	}
	return saveFeatures(path, fc, opts)
}
