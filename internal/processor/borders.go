package processor

import (
	"fmt"
	"math"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/raster"

	"github.com/paulmach/orb"
)

// DefaultMarginPixels is the border band width used when none is configured.
const DefaultMarginPixels = 10.0

// BorderSummary counts what FilterBorders kept and removed.
type BorderSummary struct {
	Status   Status
	SafeZone orb.Bound
	Input    int
	Kept     int
	Removed  int
}

// FilterBorders drops features whose bounding box reaches into a band of
// marginPixels pixels along the raster edges. Kept features are returned
// unchanged, in input order and in the input CRS.
func FilterBorders(fc *geo.FeatureCollection, ref raster.Georef, marginPixels float64, proj Reprojector) (*geo.FeatureCollection, BorderSummary, error) {
	var sum BorderSummary

	if marginPixels < 0 || math.IsNaN(marginPixels) || math.IsInf(marginPixels, 0) {
		return nil, sum, fmt.Errorf("%w: %g", ErrInvalidMargin, marginPixels)
	}

	sum.Input = fc.Len()
	out := geo.NewFeatureCollection(fc.CRS)
	if fc.Empty() {
		sum.Status = StatusEmptyInput
		return out, sum, nil
	}

	work := fc
	same, err := sameCRS(proj, fc.CRS, ref.CRS)
	if err != nil {
		return nil, sum, fmt.Errorf("compare crs: %w", err)
	}
	if !same {
		work, err = proj.Reproject(fc, ref.CRS)
		if err != nil {
			return nil, sum, fmt.Errorf("reproject to raster crs: %w", err)
		}
	}

	sum.SafeZone = SafeZone(ref, marginPixels)
	for i, f := range work.Features {
		if touchesBand(f.Geometry.Bound(), sum.SafeZone) {
			sum.Removed++
			continue
		}
		out.Append(fc.Features[i])
	}

	sum.Kept = out.Len()
	sum.Status = statusOf(sum.Input, sum.Kept)

	return out, sum, nil
}

// SafeZone returns the raster bounds shrunk by marginPixels on every side.
func SafeZone(ref raster.Georef, marginPixels float64) orb.Bound {
	resX, resY := ref.Resolution()
	mx, my := marginPixels*resX, marginPixels*resY

	b := ref.Bounds()
	return orb.Bound{
		Min: orb.Point{b.Min[0] + mx, b.Min[1] + my},
		Max: orb.Point{b.Max[0] - mx, b.Max[1] - my},
	}
}

func touchesBand(b, safe orb.Bound) bool {
	return b.Min[0] < safe.Min[0] ||
		b.Max[0] > safe.Max[0] ||
		b.Min[1] < safe.Min[1] ||
		b.Max[1] > safe.Max[1]
}

func sameCRS(proj Reprojector, a, b geo.CRS) (bool, error) {
	if a == b {
		return true, nil
	}
	if proj == nil {
		return false, fmt.Errorf("no reprojector for %s -> %s", a.URN(), b.URN())
	}
	return proj.Equivalent(a, b)
}
