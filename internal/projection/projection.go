// Package projection resolves coordinate reference systems and reprojects
// feature collections through GDAL/OSR.
package projection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/woozymasta/cropmask/internal/geo"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// ErrUnknownCRS is returned when a collection or raster carries no CRS.
var ErrUnknownCRS = errors.New("unknown coordinate reference system")

// Projector caches spatial references and coordinate transforms.
// It is not safe for concurrent use.
type Projector struct {
	refs       map[geo.CRS]*godal.SpatialRef
	transforms map[[2]geo.CRS]*godal.Transform
}

// New returns an empty Projector. Call Close when done.
func New() *Projector {
	return &Projector{
		refs:       make(map[geo.CRS]*godal.SpatialRef),
		transforms: make(map[[2]geo.CRS]*godal.Transform),
	}
}

// Close releases all cached GDAL handles.
func (p *Projector) Close() {
	for k, t := range p.transforms {
		t.Close()
		delete(p.transforms, k)
	}
	for k, sr := range p.refs {
		sr.Close()
		delete(p.refs, k)
	}
}

// SpatialRef returns the cached OSR handle for c.
func (p *Projector) SpatialRef(c geo.CRS) (*godal.SpatialRef, error) {
	if c == "" {
		return nil, ErrUnknownCRS
	}
	if sr, ok := p.refs[c]; ok {
		return sr, nil
	}

	sr, err := NewSpatialRef(c)
	if err != nil {
		return nil, err
	}

	p.refs[c] = sr
	return sr, nil
}

// NewSpatialRef builds an OSR handle for c. The caller owns it.
func NewSpatialRef(c geo.CRS) (*godal.SpatialRef, error) {
	if c == "" {
		return nil, ErrUnknownCRS
	}

	var (
		sr  *godal.SpatialRef
		err error
	)
	if code, ok := c.EPSG(); ok {
		sr, err = godal.NewSpatialRefFromEPSG(code)
	} else {
		sr, err = godal.NewSpatialRefFromWKT(string(c))
	}
	if err != nil {
		return nil, fmt.Errorf("resolve crs %q: %w", shortName(c), err)
	}

	return sr, nil
}

// Equivalent reports whether a and b describe the same CRS.
func (p *Projector) Equivalent(a, b geo.CRS) (bool, error) {
	if a == b {
		return true, nil
	}

	sa, err := p.SpatialRef(a)
	if err != nil {
		return false, err
	}
	sb, err := p.SpatialRef(b)
	if err != nil {
		return false, err
	}

	return sa.IsSame(sb), nil
}

// IsGeographic reports whether c uses angular (degree) coordinates.
func (p *Projector) IsGeographic(c geo.CRS) (bool, error) {
	sr, err := p.SpatialRef(c)
	if err != nil {
		return false, err
	}
	return sr.Geographic(), nil
}

// EstimateUTM picks the WGS 84 / UTM zone containing the centre of the
// collection's extent.
func (p *Projector) EstimateUTM(fc *geo.FeatureCollection) (geo.CRS, error) {
	bound, ok := fc.Bound()
	if !ok {
		return "", geo.ErrNoFeatures
	}

	corners := []orb.Point{bound.Min, {bound.Max[0], bound.Min[1]}, bound.Max, {bound.Min[0], bound.Max[1]}}
	if err := p.transformPoints(fc.CRS, geo.WGS84, corners); err != nil {
		return "", fmt.Errorf("estimate utm zone: %w", err)
	}

	lonlat := orb.MultiPoint(corners).Bound().Center()
	return geo.UTMCRS(lonlat[0], lonlat[1]), nil
}

// Reproject returns a deep copy of fc with every coordinate transformed into to.
func (p *Projector) Reproject(fc *geo.FeatureCollection, to geo.CRS) (*geo.FeatureCollection, error) {
	out := fc.Clone()
	out.CRS = to

	same, err := p.Equivalent(fc.CRS, to)
	if err != nil {
		return nil, err
	}
	if same {
		return out, nil
	}

	var points []orb.Point
	for _, f := range out.Features {
		points = appendPoints(points, f.Geometry)
	}

	if err := p.transformPoints(fc.CRS, to, points); err != nil {
		return nil, err
	}

	i := 0
	for _, f := range out.Features {
		i = storePoints(f.Geometry, points, i)
	}

	return out, nil
}

func (p *Projector) transform(from, to geo.CRS) (*godal.Transform, error) {
	key := [2]geo.CRS{from, to}
	if t, ok := p.transforms[key]; ok {
		return t, nil
	}

	src, err := p.SpatialRef(from)
	if err != nil {
		return nil, err
	}
	dst, err := p.SpatialRef(to)
	if err != nil {
		return nil, err
	}

	t, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("create transform %s -> %s: %w", shortName(from), shortName(to), err)
	}

	p.transforms[key] = t
	return t, nil
}

func (p *Projector) transformPoints(from, to geo.CRS, points []orb.Point) error {
	if len(points) == 0 || from == to {
		return nil
	}

	t, err := p.transform(from, to)
	if err != nil {
		return err
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	ok := make([]bool, len(points))
	for i, pt := range points {
		xs[i], ys[i] = pt[0], pt[1]
	}

	if err := t.TransformEx(xs, ys, zs, ok); err != nil {
		return fmt.Errorf("transform %s -> %s: %w", shortName(from), shortName(to), err)
	}

	for i := range points {
		if !ok[i] {
			return fmt.Errorf("transform %s -> %s: point %d (%g, %g) failed", shortName(from), shortName(to), i, points[i][0], points[i][1])
		}
		points[i] = orb.Point{xs[i], ys[i]}
	}

	return nil
}

// CRSFromSpatialRef converts an OSR handle into a geo.CRS, preferring the EPSG code.
func CRSFromSpatialRef(sr *godal.SpatialRef) (geo.CRS, error) {
	if sr == nil {
		return "", ErrUnknownCRS
	}

	if strings.EqualFold(sr.AuthorityName(""), "EPSG") {
		if code, err := strconv.Atoi(sr.AuthorityCode("")); err == nil {
			return geo.EPSGCode(code), nil
		}
	}

	wkt, err := sr.WKT()
	if err != nil {
		return "", err
	}
	if wkt == "" {
		return "", ErrUnknownCRS
	}

	return geo.CRS(wkt), nil
}

func appendPoints(dst []orb.Point, g orb.Geometry) []orb.Point {
	switch g := g.(type) {
	case orb.Polygon:
		for _, r := range g {
			dst = append(dst, r...)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			dst = appendPoints(dst, poly)
		}
	}
	return dst
}

func storePoints(g orb.Geometry, src []orb.Point, i int) int {
	switch g := g.(type) {
	case orb.Polygon:
		for _, r := range g {
			i += copy(r, src[i:i+len(r)])
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			i = storePoints(poly, src, i)
		}
	}
	return i
}

func shortName(c geo.CRS) string {
	if len(c) > 32 {
		return string(c[:32]) + "..."
	}
	return string(c)
}
