package processor

import (
	"math/rand"
	"testing"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/raster"
	"github.com/woozymasta/cropmask/internal/topology"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridOf builds a 10 m north-up grid from rows of 0/1 values.
func gridOf(rows ...string) *raster.Grid {
	h := len(rows)
	w := len(rows[0])
	data := make([]float64, 0, w*h)
	for _, r := range rows {
		for _, c := range r {
			if c == '1' {
				data = append(data, 1)
			} else {
				data = append(data, 0)
			}
		}
	}

	return &raster.Grid{
		Georef: raster.Georef{
			CRS:       "EPSG:32637",
			Transform: geo.Affine{500000, 10, 0, 5700000, 0, -10},
			Width:     w,
			Height:    h,
		},
		Data: data,
	}
}

func TestVectorizeSinglePixel(t *testing.T) {
	t.Parallel()

	fc, sum, err := Vectorize(gridOf(
		"000",
		"010",
		"000",
	), 0.5, VectorizeOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, sum.Status)
	assert.Equal(t, 1, sum.Positive)
	require.Equal(t, 1, fc.Len())
	assert.Equal(t, geo.CRS("EPSG:32637"), fc.CRS)
	assert.Equal(t, geo.ClassPermanentCrop, fc.Features[0].Properties[geo.PropClass])

	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	assert.Len(t, poly[0], 5)
	assert.Equal(t, orb.CCW, poly[0].Orientation())
	assert.InDelta(t, 100, planar.Area(poly), 1e-9)
	assert.Equal(t, orb.Bound{
		Min: orb.Point{500010, 5699980},
		Max: orb.Point{500020, 5699990},
	}, poly.Bound())
}

func TestVectorizeKeepsHoles(t *testing.T) {
	t.Parallel()

	fc, _, err := Vectorize(gridOf(
		"00000",
		"01110",
		"01010",
		"01110",
		"00000",
	), 0.5, VectorizeOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, fc.Len())

	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 2)
	assert.Equal(t, orb.CCW, poly[0].Orientation())
	assert.Equal(t, orb.CW, poly[1].Orientation())
	assert.Len(t, poly[0], 5, "collinear vertices removed")
	assert.InDelta(t, 800, planar.Area(poly), 1e-9)
}

func TestVectorizeHoleTouchingOutsideIsValid(t *testing.T) {
	t.Parallel()

	// the hole at 1,1 meets the outside pixel 2,2 at a corner
	fc, sum, err := Vectorize(gridOf(
		"1110",
		"1010",
		"1100",
		"0000",
	), 0.5, VectorizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Regions)
	require.Equal(t, 1, fc.Len())

	g, err := topology.FromOrb(fc.Features[0].Geometry)
	require.NoError(t, err)
	require.NoError(t, topology.Check(g))
	assert.InDelta(t, 700, planar.Area(fc.Features[0].Geometry), 1e-9)
}

func TestVectorizeConnectivity(t *testing.T) {
	t.Parallel()

	grid := gridOf(
		"10",
		"01",
	)

	fc4, sum4, err := Vectorize(grid, 0.5, VectorizeOptions{Connectivity: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, sum4.Regions)
	assert.Equal(t, 2, fc4.Len())

	fc8, sum8, err := Vectorize(grid, 0.5, VectorizeOptions{Connectivity: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, sum8.Regions)
	require.Equal(t, 1, fc8.Len())

	mp, ok := fc8.Features[0].Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)
	assert.InDelta(t, 200, planar.Area(mp), 1e-9)

	_, _, err = Vectorize(grid, 0.5, VectorizeOptions{Connectivity: 6})
	assert.ErrorIs(t, err, ErrInvalidConnectivity)
}

func TestVectorizeMinPixelsAndThreshold(t *testing.T) {
	t.Parallel()

	grid := gridOf(
		"1000",
		"0011",
		"0011",
	)
	grid.Data[0] = 0.9995 // not strictly above the default threshold

	_, sum, err := Vectorize(grid, DefaultThreshold, VectorizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Regions)

	grid.Data[0] = 1
	fc, sum, err := Vectorize(grid, DefaultThreshold, VectorizeOptions{MinPixels: 2, Class: "Orchard"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Regions)
	assert.Equal(t, 1, sum.Small)
	require.Equal(t, 1, fc.Len())
	assert.Equal(t, "Orchard", fc.Features[0].Properties[geo.PropClass])
}

func TestVectorizeEmpty(t *testing.T) {
	t.Parallel()

	fc, sum, err := Vectorize(gridOf("000", "000"), 0.5, VectorizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusEmptyOutput, sum.Status)
	assert.True(t, fc.Empty())

	_, sum, err = Vectorize(&raster.Grid{}, 0.5, VectorizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusEmptyInput, sum.Status)
}

func TestVectorizeRandomMasksAreValid(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		w, h := 6+rng.Intn(20), 6+rng.Intn(20)
		rows := make([]string, h)
		for r := range rows {
			b := make([]byte, w)
			for c := range b {
				b[c] = '0'
				if rng.Float64() < 0.45 {
					b[c] = '1'
				}
			}
			rows[r] = string(b)
		}
		grid := gridOf(rows...)

		for _, conn := range []int{4, 8} {
			fc, sum, err := Vectorize(grid, 0.5, VectorizeOptions{Connectivity: conn})
			require.NoError(t, err)

			total := 0.0
			for _, f := range fc.Features {
				g, err := topology.FromOrb(f.Geometry)
				require.NoError(t, err)
				require.NoError(t, topology.Check(g), "round %d conn %d:\n%v", round, conn, rows)
				total += planar.Area(f.Geometry)
			}
			assert.InDelta(t, float64(sum.Positive)*100, total, 1e-6)
		}
	}
}
