package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAndDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
vectorize:
  probability: scene_prob.tif
  threshold: 0
borders:
  margin: 15
merge:
  output: out/merged.geojson
  proximity: 300
  min_area: 80000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.0, *cfg.Vectorize.Threshold, "explicit zero survives defaults")
	assert.Equal(t, 1, cfg.Vectorize.Band)
	assert.Equal(t, DefaultConnectivity, cfg.Vectorize.Connectivity)
	assert.Equal(t, "scene_prob.tif", cfg.Borders.Raster)
	assert.Equal(t, 15.0, *cfg.Borders.Margin)
	assert.Equal(t, 300.0, cfg.Merge.Proximity)
	assert.Equal(t, 80000.0, *cfg.Merge.MinArea)
	assert.Equal(t, DefaultSimplify, *cfg.Merge.Simplify)
	assert.Equal(t, DefaultTimeout, cfg.Segment.Timeout)
	assert.False(t, cfg.Segment.Enabled())
}

func TestLoadSegment(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
segment:
  image: scene.tif
  inference_url: http://localhost:8000/predict
  timeout: 2m
merge:
  output: merged.geojson
preview:
  output: preview.webp
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Segment.Enabled())
	assert.Equal(t, 2*time.Minute, cfg.Segment.Timeout)
	assert.Equal(t, DefaultPatch, cfg.Segment.Patch)
	assert.Equal(t, DefaultStride, cfg.Segment.Stride)
	assert.Equal(t, "scene.tif", cfg.Preview.Image)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no source", func(c *Config) { c.Vectorize.Probability = "" }, "either segment.image"},
		{"threshold", func(c *Config) { *c.Vectorize.Threshold = 1 }, "vectorize.threshold"},
		{"connectivity", func(c *Config) { c.Vectorize.Connectivity = 6 }, "connectivity"},
		{"margin", func(c *Config) { *c.Borders.Margin = -1 }, "borders.margin"},
		{"proximity", func(c *Config) { c.Merge.Proximity = -5 }, "merge.proximity"},
		{"min area", func(c *Config) { *c.Merge.MinArea = -1 }, "merge.min_area"},
		{"output", func(c *Config) { c.Merge.Output = "" }, "merge.output"},
		{"stride", func(c *Config) {
			c.Segment.Image = "scene.tif"
			c.Segment.InferenceURL = "http://x"
			c.Segment.Stride = 100
		}, "segment.stride"},
		{"inference url", func(c *Config) { c.Segment.Image = "scene.tif" }, "inference_url"},
		{"quality", func(c *Config) {
			c.Preview.Output = "p.webp"
			c.Preview.Image = "scene.tif"
			c.Preview.Quality = 101
		}, "preview.quality"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{
				Vectorize: Vectorize{Probability: "p.tif"},
				Merge:     Merge{Output: "m.geojson"},
			}
			cfg.ApplyDefaults()
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "merge: [unclosed"))
	assert.Error(t, err)
}
