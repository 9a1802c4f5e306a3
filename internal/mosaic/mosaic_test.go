package mosaic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCoversRaster(t *testing.T) {
	t.Parallel()

	windows, err := Plan(100, 70, 64, 35)
	require.NoError(t, err)

	// x: 0, 35, 70; y: 0, 35
	require.Len(t, windows, 6)
	assert.Equal(t, Window{X: 0, Y: 0, Width: 64, Height: 64}, windows[0])
	assert.Equal(t, Window{X: 70, Y: 0, Width: 30, Height: 64}, windows[2])
	assert.Equal(t, Window{X: 70, Y: 35, Width: 30, Height: 35}, windows[5])

	covered := make([]int, 100*70)
	for _, w := range windows {
		for r := w.Y; r < w.Y+w.Height; r++ {
			for c := w.X; c < w.X+w.Width; c++ {
				covered[r*100+c]++
			}
		}
	}
	for i, n := range covered {
		require.Positive(t, n, "pixel %d not covered", i)
	}
}

func TestPlanRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := Plan(0, 10, 8, 4)
	assert.Error(t, err)
	_, err = Plan(10, 10, 8, 0)
	assert.Error(t, err)
}

func TestCropPadUnpad(t *testing.T) {
	t.Parallel()

	band := []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	}

	patch := Crop(band, 4, Window{X: 1, Y: 1, Width: 3, Height: 2})
	assert.Equal(t, []float64{6, 7, 8, 10, 11, 12}, patch)

	padded := PadReflect(patch, 3, 2, 5)
	assert.Equal(t, []float64{
		6, 7, 8, 8, 7,
		10, 11, 12, 12, 11,
		10, 11, 12, 12, 11,
		6, 7, 8, 8, 7,
		6, 7, 8, 8, 7,
	}, padded)

	assert.Equal(t, patch, Unpad(padded, 3, 2, 5))
	assert.Equal(t, []float64{4, 4, 4, 4}, PadReflect([]float64{4}, 1, 1, 2))
}

func TestAccumulatorAverages(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator(4, 1)
	require.NoError(t, acc.Add(Window{X: 0, Y: 0, Width: 3, Height: 1}, []float64{1, 1, 1}))
	require.NoError(t, acc.Add(Window{X: 1, Y: 0, Width: 2, Height: 1}, []float64{0, 0}))

	assert.Equal(t, []float64{1, 0.5, 0.5, 0}, acc.Probability())

	err := acc.Add(Window{X: 3, Y: 0, Width: 2, Height: 1}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrBadWindow)

	err = acc.Add(Window{X: 0, Y: 0, Width: 2, Height: 1}, []float64{0})
	assert.Error(t, err)
}
