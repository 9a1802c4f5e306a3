package projection

import (
	"testing"

	"github.com/woozymasta/cropmask/internal/geo"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProjector(t *testing.T) *Projector {
	t.Helper()
	p := New()
	t.Cleanup(p.Close)
	return p
}

func lonLatSquare(lon, lat, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{lon, lat}, {lon + size, lat}, {lon + size, lat + size}, {lon, lat + size}, {lon, lat},
	}}
}

func TestIsGeographic(t *testing.T) {
	p := newProjector(t)

	geographic, err := p.IsGeographic(geo.WGS84)
	require.NoError(t, err)
	assert.True(t, geographic)

	geographic, err = p.IsGeographic("EPSG:32637")
	require.NoError(t, err)
	assert.False(t, geographic)

	_, err = p.IsGeographic("")
	assert.ErrorIs(t, err, ErrUnknownCRS)
}

func TestEquivalent(t *testing.T) {
	p := newProjector(t)

	same, err := p.Equivalent("EPSG:32637", "EPSG:32637")
	require.NoError(t, err)
	assert.True(t, same)

	same, err = p.Equivalent(geo.WGS84, "EPSG:32637")
	require.NoError(t, err)
	assert.False(t, same)
}

func TestEstimateUTM(t *testing.T) {
	p := newProjector(t)

	fc := geo.NewFeatureCollection(geo.WGS84)
	fc.Append(geo.NewCropFeature(lonLatSquare(39.1, 51.6, 0.01), geo.ClassPermanentCrop))
	fc.Append(geo.NewCropFeature(lonLatSquare(39.3, 51.8, 0.01), geo.ClassPermanentCrop))

	crs, err := p.EstimateUTM(fc)
	require.NoError(t, err)
	assert.Equal(t, geo.CRS("EPSG:32637"), crs)

	_, err = p.EstimateUTM(geo.NewFeatureCollection(geo.WGS84))
	assert.ErrorIs(t, err, geo.ErrNoFeatures)
}

func TestReprojectRoundTrip(t *testing.T) {
	p := newProjector(t)

	fc := geo.NewFeatureCollection(geo.WGS84)
	fc.Append(geo.NewCropFeature(lonLatSquare(39.2, 51.7, 0.001), geo.ClassPermanentCrop))
	fc.Append(geo.NewCropFeature(orb.MultiPolygon{lonLatSquare(39.3, 51.7, 0.001)}, geo.ClassPermanentCrop))

	utm, err := p.Reproject(fc, "EPSG:32637")
	require.NoError(t, err)
	assert.Equal(t, geo.CRS("EPSG:32637"), utm.CRS)

	// metres now, roughly 69m x 111m for 0.001 degree at 51.7N
	b := utm.Features[0].Geometry.Bound()
	assert.InDelta(t, 69, b.Max[0]-b.Min[0], 3)
	assert.InDelta(t, 111, b.Max[1]-b.Min[1], 3)
	assert.Greater(t, b.Min[0], 100000.0)

	back, err := p.Reproject(utm, geo.WGS84)
	require.NoError(t, err)
	for i, f := range back.Features {
		want := fc.Features[i].Geometry.Bound()
		got := f.Geometry.Bound()
		assert.InDelta(t, want.Min[0], got.Min[0], 1e-7)
		assert.InDelta(t, want.Min[1], got.Min[1], 1e-7)
		assert.InDelta(t, want.Max[0], got.Max[0], 1e-7)
		assert.InDelta(t, want.Max[1], got.Max[1], 1e-7)
	}

	// input untouched
	assert.Equal(t, orb.Point{39.2, 51.7}, fc.Features[0].Geometry.(orb.Polygon)[0][0])
}

func TestCRSFromSpatialRef(t *testing.T) {
	sr, err := godal.NewSpatialRefFromEPSG(32637)
	require.NoError(t, err)
	defer sr.Close()

	crs, err := CRSFromSpatialRef(sr)
	require.NoError(t, err)
	assert.Equal(t, geo.CRS("EPSG:32637"), crs)

	_, err = CRSFromSpatialRef(nil)
	assert.ErrorIs(t, err, ErrUnknownCRS)
}
