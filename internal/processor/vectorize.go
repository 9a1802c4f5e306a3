package processor

import (
	"fmt"
	"math"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/raster"
	"github.com/woozymasta/cropmask/internal/topology"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

// DefaultThreshold is the probability a pixel must exceed to count as crop.
const DefaultThreshold = 0.9995

// VectorizeOptions tunes region extraction.
type VectorizeOptions struct {
	// Connectivity is 4 (edge neighbours) or 8 (edge and corner). Zero means 4.
	Connectivity int
	// MinPixels drops regions with fewer pixels.
	MinPixels int
	// Class overrides the label written to every feature.
	Class string
}

// VectorizeSummary counts what Vectorize found.
type VectorizeSummary struct {
	Status   Status
	Positive int
	Regions  int
	Small    int
	Features int
}

// Vectorize polygonizes every connected region of pixels above threshold and
// returns one feature per region in the grid's CRS.
func Vectorize(grid *raster.Grid, threshold float64, opts VectorizeOptions) (*geo.FeatureCollection, VectorizeSummary, error) {
	var sum VectorizeSummary

	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, sum, ErrInvalidThreshold
	}

	conn := opts.Connectivity
	if conn == 0 {
		conn = 4
	}
	if conn != 4 && conn != 8 {
		return nil, sum, fmt.Errorf("%w: %d", ErrInvalidConnectivity, conn)
	}

	class := opts.Class
	if class == "" {
		class = geo.ClassPermanentCrop
	}

	fc := geo.NewFeatureCollection(grid.CRS)
	if grid.Width <= 0 || grid.Height <= 0 || len(grid.Data) == 0 {
		sum.Status = StatusEmptyInput
		return fc, sum, nil
	}

	mask := grid.Threshold(threshold)
	sum.Positive = mask.Count()

	// GDAL traces 4-connected components; 8-connectivity only groups
	// components that touch at a corner into one feature
	labels, compSizes := labelRegions(mask, 4)
	groups, sizes := groupComponents(mask, labels, compSizes, conn)
	sum.Regions = len(groups)

	shapes := make([][]orb.Polygon, len(compSizes))
	if len(compSizes) > 0 {
		ids := make([]int32, len(labels))
		for i, id := range labels {
			ids[i] = int32(id)
		}

		regions, err := raster.Polygonize(grid.Georef, ids)
		if err != nil {
			return nil, sum, err
		}
		for _, r := range regions {
			shapes[r.Label-1] = append(shapes[r.Label-1], r.Polygon)
		}
	}

	for i, comps := range groups {
		if sizes[i] < opts.MinPixels {
			sum.Small++
			continue
		}

		var polys []orb.Polygon
		for _, c := range comps {
			for _, p := range shapes[c] {
				if p = orient(p); p != nil {
					polys = append(polys, p)
				}
			}
		}

		var geom orb.Geometry
		switch len(polys) {
		case 0:
			continue
		case 1:
			geom = polys[0]
		default:
			geom = orb.MultiPolygon(polys)
		}

		valid, err := repair(geom)
		if err != nil {
			log.Warn().Err(err).Int("region", i+1).Msg("Dropping region with invalid outline")
			continue
		}

		fc.Append(geo.NewCropFeature(valid, class))
	}

	sum.Features = fc.Len()
	sum.Status = statusOf(1, sum.Features)

	return fc, sum, nil
}

var (
	offsets4 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	offsets8 = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {-1, -1}, {1, -1}, {-1, 1}}
)

// labelRegions assigns region ids starting at 1 and returns the pixel count
// of each region (index id-1).
func labelRegions(m *raster.Mask, conn int) ([]int, []int) {
	offsets := offsets4
	if conn == 8 {
		offsets = offsets8
	}

	labels := make([]int, len(m.Pixels))
	var (
		sizes []int
		stack []int
	)

	for start, set := range m.Pixels {
		if !set || labels[start] != 0 {
			continue
		}

		id := len(sizes) + 1
		labels[start] = id
		stack = append(stack[:0], start)
		size := 0

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++

			c, r := i%m.Width, i/m.Width
			for _, o := range offsets {
				nc, nr := c+o[0], r+o[1]
				if !m.Set(nc, nr) {
					continue
				}
				j := nr*m.Width + nc
				if labels[j] == 0 {
					labels[j] = id
					stack = append(stack, j)
				}
			}
		}

		sizes = append(sizes, size)
	}

	return labels, sizes
}

// groupComponents maps each feature to its 4-connected components and
// pixel count.
func groupComponents(m *raster.Mask, labels, sizes []int, conn int) ([][]int, []int) {
	if conn == 4 {
		groups := make([][]int, len(sizes))
		for i := range groups {
			groups[i] = []int{i}
		}
		return groups, sizes
	}

	labels8, sizes8 := labelRegions(m, 8)
	groups := make([][]int, len(sizes8))
	seen := make([]bool, len(sizes))
	for i, id := range labels {
		if id == 0 || seen[id-1] {
			continue
		}
		seen[id-1] = true
		g := labels8[i] - 1
		groups[g] = append(groups[g], id-1)
	}

	return groups, sizes8
}

// orient drops collinear vertices, makes the exterior counter-clockwise and
// holes clockwise. Returns nil when the exterior collapses.
func orient(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, len(p))
	for i, r := range p {
		r = tidyRing(r, i == 0)
		if r == nil {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func tidyRing(r orb.Ring, exterior bool) orb.Ring {
	if n := len(r); n > 1 && r[0].Equal(r[n-1]) {
		r = r[:n-1]
	}
	n := len(r)

	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a, b, c := r[(i+n-1)%n], r[i], r[(i+1)%n]
		cross := (b[0]-a[0])*(c[1]-b[1]) - (b[1]-a[1])*(c[0]-b[0])
		if cross != 0 {
			ring = append(ring, b)
		}
	}
	if len(ring) < 3 {
		return nil
	}
	ring = append(ring, ring[0])

	if (ring.Orientation() == orb.CCW) != exterior {
		ring.Reverse()
	}
	return ring
}

// repair returns g unchanged when GEOS accepts it, otherwise the zero width
// buffer of g, which splits self-touching rings into shell and holes.
func repair(g orb.Geometry) (orb.Geometry, error) {
	gg, err := topology.FromOrb(g)
	if err != nil {
		return nil, err
	}
	if topology.Check(gg) == nil {
		return g, nil
	}

	fixed, err := topology.Repair(gg)
	if err != nil {
		return nil, err
	}

	out, err := topology.ToOrb(fixed)
	if err != nil {
		return nil, err
	}

	switch out := out.(type) {
	case orb.Polygon:
		return orient(out), nil
	case orb.MultiPolygon:
		polys := out[:0]
		for _, p := range out {
			if p = orient(p); p != nil {
				polys = append(polys, p)
			}
		}
		return polys, nil
	}
	return nil, fmt.Errorf("%w: repaired outline is %s", topology.ErrDegenerate, out.GeoJSONType())
}
