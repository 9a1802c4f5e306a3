package processor

import (
	"fmt"
	"math"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/topology"

	"github.com/paulsmith/gogeos/geos"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// Merge defaults.
const (
	DefaultProximity         = 15.0
	DefaultMinArea           = 500.0
	DefaultSimplifyTolerance = 2.0
)

// MergeOptions tunes SmartMerge. Distances and areas are in the working
// (metric) CRS units.
type MergeOptions struct {
	ProximityMeters float64
	MinAreaSqM      float64
	// SimplifyTolerance <= 0 disables simplification.
	SimplifyTolerance float64
}

// DefaultMergeOptions returns the standard merge settings.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		ProximityMeters:   DefaultProximity,
		MinAreaSqM:        DefaultMinArea,
		SimplifyTolerance: DefaultSimplifyTolerance,
	}
}

// MergeSummary counts what SmartMerge did.
type MergeSummary struct {
	Status         Status
	WorkingCRS     geo.CRS
	Input          int
	DroppedInvalid int
	Components     int
	Small          int
	Degenerate     int
	Output         int
	TotalArea      float64
}

// Merged is the number of input features absorbed into a neighbour.
func (s MergeSummary) Merged() int {
	return max(0, s.Input-s.DroppedInvalid-s.Components)
}

// SmartMerge fuses features closer than ProximityMeters, splits the result
// into single polygons, drops those below MinAreaSqM and simplifies the rest.
// Geographic input is processed in its UTM zone and returned in its own CRS.
func SmartMerge(fc *geo.FeatureCollection, opts MergeOptions, proj Reprojector) (*geo.FeatureCollection, MergeSummary, error) {
	var sum MergeSummary

	if !(opts.ProximityMeters > 0) || math.IsInf(opts.ProximityMeters, 0) {
		return nil, sum, fmt.Errorf("%w: %g", ErrInvalidProximity, opts.ProximityMeters)
	}
	if !(opts.MinAreaSqM >= 0) {
		return nil, sum, fmt.Errorf("%w: %g", ErrInvalidMinArea, opts.MinAreaSqM)
	}

	sum.Input = fc.Len()
	if fc.Empty() {
		sum.Status = StatusEmptyInput
		return geo.NewFeatureCollection(fc.CRS), sum, nil
	}

	original := fc.CRS
	work, err := workingCollection(fc, proj)
	if err != nil {
		return nil, sum, err
	}
	sum.WorkingCRS = work.CRS

	dilated := make([]*geos.Geometry, 0, work.Len())
	for i, f := range work.Features {
		g, err := topology.FromOrb(f.Geometry)
		if err == nil {
			g, err = topology.Buffer(g, opts.ProximityMeters)
		}
		if err == nil {
			err = topology.Check(g)
		}
		if err != nil {
			sum.DroppedInvalid++
			log.Warn().Err(err).Int("feature", i).Msg("Dropping feature that cannot be buffered")
			continue
		}
		dilated = append(dilated, g)
	}

	out := geo.NewFeatureCollection(work.CRS)
	if len(dilated) == 0 {
		sum.Status = StatusEmptyOutput
		out.CRS = original
		return out, sum, nil
	}

	union, err := topology.Union(dilated)
	if err != nil {
		return nil, sum, fmt.Errorf("union: %w", err)
	}

	eroded, err := topology.Buffer(union, -opts.ProximityMeters)
	if err != nil {
		return nil, sum, fmt.Errorf("erode: %w", err)
	}

	parts, err := topology.Explode(eroded)
	if err != nil {
		return nil, sum, fmt.Errorf("explode: %w", err)
	}
	sum.Components = len(parts)

	areas := make([]float64, 0, len(parts))
	for _, part := range parts {
		area, err := part.Area()
		if err != nil {
			sum.Degenerate++
			continue
		}
		if area < opts.MinAreaSqM {
			sum.Small++
			continue
		}

		simple, err := topology.Simplify(part, opts.SimplifyTolerance)
		if err != nil {
			sum.Degenerate++
			log.Debug().Err(err).Float64("area", area).Msg("Dropping degenerate polygon after simplification")
			continue
		}

		if area, err = simple.Area(); err != nil || area < opts.MinAreaSqM {
			sum.Small++
			continue
		}

		g, err := topology.ToOrb(simple)
		if err != nil || !geo.IsPolygonal(g) {
			sum.Degenerate++
			continue
		}

		out.Append(geo.NewCropFeature(g, geo.ClassPermanentCrop))
		areas = append(areas, area)
	}

	sum.Output = out.Len()
	sum.TotalArea = floats.Sum(areas)
	sum.Status = statusOf(sum.Input, sum.Output)

	if out.CRS != original {
		if out.Empty() {
			out.CRS = original
		} else if out, err = proj.Reproject(out, original); err != nil {
			return nil, sum, fmt.Errorf("reproject back to %s: %w", original.URN(), err)
		}
	}

	return out, sum, nil
}

// workingCollection returns fc in a metric CRS: unchanged when already
// projected, otherwise reprojected to its estimated UTM zone.
func workingCollection(fc *geo.FeatureCollection, proj Reprojector) (*geo.FeatureCollection, error) {
	if proj == nil {
		return nil, fmt.Errorf("determine working crs: no reprojector")
	}

	geographic, err := proj.IsGeographic(fc.CRS)
	if err != nil {
		return nil, fmt.Errorf("determine working crs: %w", err)
	}
	if !geographic {
		return fc, nil
	}

	utm, err := proj.EstimateUTM(fc)
	if err != nil {
		return nil, fmt.Errorf("estimate utm zone: %w", err)
	}

	work, err := proj.Reproject(fc, utm)
	if err != nil {
		return nil, fmt.Errorf("reproject to %s: %w", utm.URN(), err)
	}

	log.Debug().
		Str("from", fc.CRS.URN()).
		Str("to", utm.URN()).
		Msg("Using UTM working CRS")

	return work, nil
}
