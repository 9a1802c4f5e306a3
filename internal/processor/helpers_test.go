package processor

import (
	"github.com/woozymasta/cropmask/internal/geo"

	"github.com/paulmach/orb"
)

// shiftProjector pretends every CRS is the same plane translated by a per-CRS
// offset. WGS84 counts as geographic and estimates to utm.
type shiftProjector struct {
	offsets map[geo.CRS]orb.Point
	utm     geo.CRS
	calls   []geo.CRS
}

func (p *shiftProjector) Equivalent(a, b geo.CRS) (bool, error) {
	return a == b, nil
}

func (p *shiftProjector) IsGeographic(c geo.CRS) (bool, error) {
	return c == geo.WGS84, nil
}

func (p *shiftProjector) EstimateUTM(*geo.FeatureCollection) (geo.CRS, error) {
	return p.utm, nil
}

func (p *shiftProjector) Reproject(fc *geo.FeatureCollection, to geo.CRS) (*geo.FeatureCollection, error) {
	p.calls = append(p.calls, to)

	out := fc.Clone()
	out.CRS = to

	from, dst := p.offsets[fc.CRS], p.offsets[to]
	d := orb.Point{dst[0] - from[0], dst[1] - from[1]}
	for _, f := range out.Features {
		translate(f.Geometry, d)
	}

	return out, nil
}

func translate(g orb.Geometry, d orb.Point) {
	switch g := g.(type) {
	case orb.Polygon:
		for _, r := range g {
			for i := range r {
				r[i] = orb.Point{r[i][0] + d[0], r[i][1] + d[1]}
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			translate(p, d)
		}
	}
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

func collectionOf(crs geo.CRS, polys ...orb.Polygon) *geo.FeatureCollection {
	fc := geo.NewFeatureCollection(crs)
	for _, p := range polys {
		fc.Append(geo.NewCropFeature(p, geo.ClassPermanentCrop))
	}
	return fc
}
