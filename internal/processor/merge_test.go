package processor

import (
	"testing"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/projection"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergeOpts(proximity, minArea float64) MergeOptions {
	return MergeOptions{
		ProximityMeters:   proximity,
		MinAreaSqM:        minArea,
		SimplifyTolerance: DefaultSimplifyTolerance,
	}
}

func areas(fc *geo.FeatureCollection) []float64 {
	out := make([]float64, 0, fc.Len())
	for _, f := range fc.Features {
		out = append(out, planar.Area(f.Geometry))
	}
	return out
}

func TestSmartMergeOverlappingSquares(t *testing.T) {
	t.Parallel()

	// 50 m squares with centres 20 m apart
	fc := collectionOf(utm37,
		square(500000, 5699000, 50),
		square(500020, 5699000, 50),
	)

	proj := &shiftProjector{}
	out, sum, err := SmartMerge(fc, mergeOpts(30, 500), proj)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, sum.Status)
	require.Equal(t, 1, out.Len())

	area := planar.Area(out.Features[0].Geometry)
	assert.Greater(t, area, 2500.0)
	assert.Less(t, area, 5000.0)
	assert.InDelta(t, 3500, area, 1)
	assert.InDelta(t, 3500, sum.TotalArea, 1)
	assert.Equal(t, 1, sum.Merged())
	assert.Equal(t, geo.ClassPermanentCrop, out.Features[0].Properties[geo.PropClass])
	assert.Empty(t, proj.calls, "projected input is never reprojected")
}

func TestSmartMergeFusesCloseNeighbours(t *testing.T) {
	t.Parallel()

	// 20 m gap, proximity 30
	fc := collectionOf(utm37,
		square(500000, 5699000, 50),
		square(500070, 5699000, 50),
	)

	out, _, err := SmartMerge(fc, mergeOpts(30, 0), &shiftProjector{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	area := planar.Area(out.Features[0].Geometry)
	assert.GreaterOrEqual(t, area, 2500.0)
	assert.LessOrEqual(t, area, 2500+2500+20*50+1e-6)
}

func TestSmartMergeKeepsIsolatedPolygons(t *testing.T) {
	t.Parallel()

	fc := collectionOf(utm37,
		square(500000, 5699000, 50),
		square(500200, 5699000, 50),
		square(500000, 5699200, 50),
	)

	out, sum, err := SmartMerge(fc, mergeOpts(30, 500), &shiftProjector{})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, 0, sum.Merged())

	for _, a := range areas(out) {
		assert.InDelta(t, 2500, a, 1)
	}

	var bounds []orb.Bound
	for _, f := range out.Features {
		bounds = append(bounds, f.Geometry.Bound())
	}
	for _, p := range fc.Features {
		want := p.Geometry.Bound()
		found := false
		for _, b := range bounds {
			if planar.Distance(b.Min, want.Min) < 1 && planar.Distance(b.Max, want.Max) < 1 {
				found = true
			}
		}
		assert.True(t, found, "no output near %v", want)
	}

	again, _, err := SmartMerge(out, mergeOpts(30, 500), &shiftProjector{})
	require.NoError(t, err)
	assert.Equal(t, out.Len(), again.Len())
	assert.InDeltaSlice(t, areas(out), areas(again), 1)
}

func TestSmartMergeAreaFilter(t *testing.T) {
	t.Parallel()

	fc := collectionOf(utm37, square(500000, 5699000, 10))
	out, sum, err := SmartMerge(fc, mergeOpts(15, 500), &shiftProjector{})
	require.NoError(t, err)
	assert.Equal(t, StatusEmptyOutput, sum.Status)
	assert.Equal(t, 1, sum.Small)
	assert.True(t, out.Empty())

	fc = collectionOf(utm37,
		square(500000, 5699000, 10),
		square(500300, 5699000, 20),
		square(500600, 5699000, 50),
	)
	out, sum, err = SmartMerge(fc, mergeOpts(15, 500), &shiftProjector{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Small)
	require.Equal(t, 1, out.Len())
	for _, a := range areas(out) {
		assert.GreaterOrEqual(t, a, 500.0)
	}
}

func TestSmartMergeWorksInUTMForGeographicInput(t *testing.T) {
	t.Parallel()

	proj := &shiftProjector{
		offsets: map[geo.CRS]orb.Point{geo.WGS84: {0, 0}, utm37: {500000, 5699000}},
		utm:     utm37,
	}
	fc := collectionOf(geo.WGS84, square(100, 100, 50))

	out, sum, err := SmartMerge(fc, mergeOpts(10, 0), proj)
	require.NoError(t, err)
	assert.Equal(t, utm37, sum.WorkingCRS)
	assert.Equal(t, []geo.CRS{utm37, geo.WGS84}, proj.calls)
	assert.Equal(t, geo.WGS84, out.CRS)

	b := out.Features[0].Geometry.Bound()
	assert.InDelta(t, 100, b.Min[0], 1e-6)
	assert.InDelta(t, 150, b.Max[1], 1e-6)
}

func TestSmartMergeRealProjectionRoundTrip(t *testing.T) {
	proj := projection.New()
	defer proj.Close()

	// two ~55 m fields near Krasnodar, 0.0005 deg apart
	fc := collectionOf(geo.WGS84,
		orb.Polygon{{{38.9700, 45.0400}, {38.9707, 45.0400}, {38.9707, 45.0405}, {38.9700, 45.0405}, {38.9700, 45.0400}}},
		orb.Polygon{{{38.9710, 45.0400}, {38.9717, 45.0400}, {38.9717, 45.0405}, {38.9710, 45.0405}, {38.9710, 45.0400}}},
	)

	out, sum, err := SmartMerge(fc, mergeOpts(30, 500), proj)
	require.NoError(t, err)
	assert.Equal(t, geo.CRS("EPSG:32637"), sum.WorkingCRS)
	assert.Equal(t, geo.WGS84, out.CRS)
	require.Equal(t, 1, out.Len())

	b := out.Features[0].Geometry.Bound()
	assert.InDelta(t, 38.9700, b.Min[0], 1e-4)
	assert.InDelta(t, 38.9717, b.Max[0], 1e-4)
	assert.InDelta(t, 45.0405, b.Max[1], 1e-4)
}

func TestSmartMergeDropsBrokenFeatures(t *testing.T) {
	t.Parallel()

	fc := collectionOf(utm37,
		square(500000, 5699000, 50),
		orb.Polygon{},
		orb.Polygon{{{500200, 5699000}, {500210, 5699000}, {500200, 5699000}}},
	)

	out, sum, err := SmartMerge(fc, mergeOpts(15, 500), &shiftProjector{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, sum.Status)
	assert.Equal(t, 2, sum.DroppedInvalid)
	require.Equal(t, 1, out.Len())
	assert.InDelta(t, 2500, planar.Area(out.Features[0].Geometry), 1)
}

func TestSmartMergeEmptyAndInvalid(t *testing.T) {
	t.Parallel()

	out, sum, err := SmartMerge(geo.NewFeatureCollection(utm37), DefaultMergeOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusEmptyInput, sum.Status)
	assert.True(t, out.Empty())

	_, _, err = SmartMerge(geo.NewFeatureCollection(utm37), mergeOpts(0, 1), nil)
	assert.ErrorIs(t, err, ErrInvalidProximity)

	_, _, err = SmartMerge(geo.NewFeatureCollection(utm37), mergeOpts(1, -1), nil)
	assert.ErrorIs(t, err, ErrInvalidMinArea)

	_, _, err = SmartMerge(collectionOf(utm37, square(0, 0, 10)), DefaultMergeOptions(), nil)
	assert.Error(t, err, "the working crs cannot be determined without a reprojector")
}
