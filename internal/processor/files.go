package processor

import (
	"context"
	"fmt"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/inference"
	"github.com/woozymasta/cropmask/internal/raster"

	"github.com/rs/zerolog/log"
)

// VectorizeJob names the files of a vectorize run.
type VectorizeJob struct {
	Probability string
	Output      string
	Band        int
	Threshold   float64
	Options     VectorizeOptions
	Write       geo.WriteOptions
}

// ProcessVectorize reads the probability raster, vectorizes it and writes
// the features. Nothing is written unless regions were found.
func ProcessVectorize(job VectorizeJob) (VectorizeSummary, error) {
	band := job.Band
	if band <= 0 {
		band = 1
	}

	grid, err := raster.ReadGrid(job.Probability, band)
	if err != nil {
		return VectorizeSummary{}, fmt.Errorf("read probability raster: %w", err)
	}

	return ProcessVectorizeGrid(grid, job)
}

// ProcessVectorizeGrid is ProcessVectorize for a grid already in memory.
// job.Probability is only used for logging.
func ProcessVectorizeGrid(grid *raster.Grid, job VectorizeJob) (VectorizeSummary, error) {
	fc, sum, err := Vectorize(grid, job.Threshold, job.Options)
	if err != nil {
		return sum, err
	}

	logVectorize(job.Probability, sum)
	if sum.Status != StatusOK {
		logEmpty("vectorize", sum.Status, job.Output)
		return sum, nil
	}

	return sum, saveFeatures(job.Output, fc, job.Write)
}

// SegmentJob names the files of an inference run.
type SegmentJob struct {
	Image string
	// Output receives the stitched probability GeoTIFF.
	Output  string
	Options SegmentOptions
}

// ProcessSegment reads up to three image bands, runs sliding window
// inference and writes the probability raster when Output is set.
func ProcessSegment(ctx context.Context, job SegmentJob, pred inference.Predictor) (*raster.Grid, SegmentSummary, error) {
	img, err := raster.ReadImage(job.Image, 3)
	if err != nil {
		return nil, SegmentSummary{}, fmt.Errorf("read image: %w", err)
	}

	log.Info().
		Str("image", job.Image).
		Int("width", img.Width).
		Int("height", img.Height).
		Int("bands", len(img.Bands)).
		Msg("Starting patch inference")

	grid, sum, err := Segment(ctx, img, pred, job.Options)
	if err != nil {
		return nil, sum, err
	}

	log.Info().
		Int("windows", sum.Windows).
		Int("patch", sum.Patch).
		Int("stride", sum.Stride).
		Msg("Patch inference finished")

	if job.Output != "" {
		if err := raster.WriteGrid(job.Output, grid); err != nil {
			return nil, sum, fmt.Errorf("write probability raster: %w", err)
		}
		log.Info().Str("path", job.Output).Msg("Probability raster saved")
	}

	return grid, sum, nil
}

// BordersJob names the files of a border filter run.
type BordersJob struct {
	Input        string
	Raster       string
	Output       string
	MarginPixels float64
	Write        geo.WriteOptions
}

// ProcessBorders filters the features in Input against the extent of Raster.
func ProcessBorders(job BordersJob, proj Reprojector) (BorderSummary, error) {
	fc, err := geo.ReadFeatureCollection(job.Input)
	if err != nil {
		return BorderSummary{}, fmt.Errorf("read features: %w", err)
	}

	ref, err := raster.ReadGeoref(job.Raster)
	if err != nil {
		return BorderSummary{}, fmt.Errorf("read reference raster: %w", err)
	}

	out, sum, err := FilterBorders(fc, ref, job.MarginPixels, proj)
	if err != nil {
		return sum, err
	}

	logBorders(job.MarginPixels, sum)
	if sum.Status != StatusOK {
		logEmpty("borders", sum.Status, job.Output)
		return sum, nil
	}

	return sum, saveFeatures(job.Output, out, job.Write)
}

// MergeJob names the files of a merge run.
type MergeJob struct {
	Input   string
	Output  string
	Options MergeOptions
	Write   geo.WriteOptions
}

// ProcessMerge merges the features in Input and writes the result.
func ProcessMerge(job MergeJob, proj Reprojector) (MergeSummary, error) {
	fc, err := geo.ReadFeatureCollection(job.Input)
	if err != nil {
		return MergeSummary{}, fmt.Errorf("read features: %w", err)
	}

	out, sum, err := SmartMerge(fc, job.Options, proj)
	if err != nil {
		return sum, err
	}

	logMerge(job.Options, sum)
	if sum.Status != StatusOK {
		logEmpty("merge", sum.Status, job.Output)
		return sum, nil
	}

	return sum, saveFeatures(job.Output, out, job.Write)
}

// saveFeatures writes the collection and logs where it went.
func saveFeatures(path string, fc *geo.FeatureCollection, opts geo.WriteOptions) error {
	if path == "" {
		return fmt.Errorf("no output path")
	}

	if err := geo.WriteFeatureCollection(path, fc, opts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Int("features", fc.Len()).
		Msg("Features saved")

	return nil
}

func logEmpty(stage string, status Status, path string) {
	log.Warn().
		Str("stage", stage).
		Str("status", status.String()).
		Str("skipped_output", path).
		Msg("Nothing to write")
}

func logVectorize(src string, sum VectorizeSummary) {
	log.Info().
		Str("source", src).
		Int("positive_pixels", sum.Positive).
		Int("regions", sum.Regions).
		Int("small", sum.Small).
		Int("features", sum.Features).
		Msg("Vectorized mask")
}

func logBorders(margin float64, sum BorderSummary) {
	log.Info().
		Float64("margin_px", margin).
		Int("in", sum.Input).
		Int("kept", sum.Kept).
		Int("removed", sum.Removed).
		Msg("Filtered border artifacts")
}

func logMerge(opts MergeOptions, sum MergeSummary) {
	log.Info().
		Float64("proximity", opts.ProximityMeters).
		Float64("min_area", opts.MinAreaSqM).
		Str("working_crs", sum.WorkingCRS.URN()).
		Int("in", sum.Input).
		Int("merged", sum.Merged()).
		Int("components", sum.Components).
		Int("small", sum.Small).
		Int("invalid", sum.DroppedInvalid+sum.Degenerate).
		Int("out", sum.Output).
		Float64("total_area", sum.TotalArea).
		Msg("Merged features")
}
