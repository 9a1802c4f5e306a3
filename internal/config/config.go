// Package config handles the pipeline configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultThreshold    = 0.9995
	DefaultConnectivity = 4
	DefaultPatch        = 64
	DefaultStride       = 35
	DefaultMargin       = 10.0
	DefaultProximity    = 15.0
	DefaultMinArea      = 500.0
	DefaultSimplify     = 2.0
	DefaultTimeout      = 30 * time.Second
	DefaultPreviewSize  = 2048
	DefaultQuality      = 85
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the root configuration file structure.
type Config struct {
	Segment   Segment   `yaml:"segment,omitempty"`
	Vectorize Vectorize `yaml:"vectorize"`
	Borders   Borders   `yaml:"borders"`
	Merge     Merge     `yaml:"merge"`
	Preview   Preview   `yaml:"preview,omitempty"`
	Indent    bool      `yaml:"indent,omitempty"`
}

// Segment configures optional patch inference over a source image.
type Segment struct {
	Image        string        `yaml:"image,omitempty"`
	InferenceURL string        `yaml:"inference_url,omitempty"`
	Output       string        `yaml:"probability_output,omitempty"`
	Patch        int           `yaml:"patch,omitempty"`
	Stride       int           `yaml:"stride,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// Enabled reports whether inference runs before vectorization.
func (s Segment) Enabled() bool {
	return s.Image != ""
}

// Vectorize configures the mask vectorizer.
type Vectorize struct {
	// used when Segment is disabled
	Probability  string   `yaml:"probability,omitempty"`
	Output       string   `yaml:"output,omitempty"`
	Threshold    *float64 `yaml:"threshold,omitempty"`
	Band         int      `yaml:"band,omitempty"`
	Connectivity int      `yaml:"connectivity,omitempty"`
	MinPixels    int      `yaml:"min_pixels,omitempty"`
}

// Borders configures the border filter.
type Borders struct {
	// reference raster, defaults to the vectorized raster
	Raster string   `yaml:"raster,omitempty"`
	Output string   `yaml:"output,omitempty"`
	Margin *float64 `yaml:"margin,omitempty"`
}

// Merge configures the smart merge.
type Merge struct {
	Output    string   `yaml:"output"`
	Proximity float64  `yaml:"proximity,omitempty"`
	MinArea   *float64 `yaml:"min_area,omitempty"`
	Simplify  *float64 `yaml:"simplify,omitempty"`
}

// Preview configures the optional overlay render.
type Preview struct {
	// defaults to Segment.Image
	Image   string `yaml:"image,omitempty"`
	Output  string `yaml:"output,omitempty"`
	MaxSize int    `yaml:"max_size,omitempty"`
	Quality int    `yaml:"quality,omitempty"`
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Segment.Patch == 0 {
		c.Segment.Patch = DefaultPatch
	}
	if c.Segment.Stride == 0 {
		c.Segment.Stride = DefaultStride
	}
	if c.Segment.Timeout == 0 {
		c.Segment.Timeout = DefaultTimeout
	}

	if c.Vectorize.Threshold == nil {
		c.Vectorize.Threshold = ptr(DefaultThreshold)
	}
	if c.Vectorize.Band == 0 {
		c.Vectorize.Band = 1
	}
	if c.Vectorize.Connectivity == 0 {
		c.Vectorize.Connectivity = DefaultConnectivity
	}

	if c.Borders.Margin == nil {
		c.Borders.Margin = ptr(DefaultMargin)
	}
	if c.Borders.Raster == "" {
		c.Borders.Raster = c.Vectorize.Probability
	}

	if c.Merge.Proximity == 0 {
		c.Merge.Proximity = DefaultProximity
	}
	if c.Merge.MinArea == nil {
		c.Merge.MinArea = ptr(DefaultMinArea)
	}
	if c.Merge.Simplify == nil {
		c.Merge.Simplify = ptr(DefaultSimplify)
	}

	if c.Preview.Image == "" {
		c.Preview.Image = c.Segment.Image
	}
	if c.Preview.MaxSize == 0 {
		c.Preview.MaxSize = DefaultPreviewSize
	}
	if c.Preview.Quality == 0 {
		c.Preview.Quality = DefaultQuality
	}
}

// Validate checks a configuration after ApplyDefaults.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Segment.Enabled() {
		if c.Segment.InferenceURL == "" {
			fail("segment.inference_url is required with segment.image")
		}
		if c.Segment.Patch <= 0 {
			fail("segment.patch must be > 0, got %d", c.Segment.Patch)
		}
		if c.Segment.Stride <= 0 || c.Segment.Stride > c.Segment.Patch {
			fail("segment.stride must be in 1..%d, got %d", c.Segment.Patch, c.Segment.Stride)
		}
	} else if c.Vectorize.Probability == "" {
		fail("either segment.image or vectorize.probability is required")
	}

	if t := c.Vectorize.Threshold; t == nil || *t < 0 || *t >= 1 {
		fail("vectorize.threshold must be in [0, 1)")
	}
	if c.Vectorize.Connectivity != 4 && c.Vectorize.Connectivity != 8 {
		fail("vectorize.connectivity must be 4 or 8, got %d", c.Vectorize.Connectivity)
	}
	if c.Vectorize.MinPixels < 0 {
		fail("vectorize.min_pixels must be >= 0")
	}

	if m := c.Borders.Margin; m == nil || *m < 0 {
		fail("borders.margin must be >= 0")
	}

	if c.Merge.Output == "" {
		fail("merge.output is required")
	}
	if c.Merge.Proximity <= 0 {
		fail("merge.proximity must be > 0, got %g", c.Merge.Proximity)
	}
	if a := c.Merge.MinArea; a == nil || *a < 0 {
		fail("merge.min_area must be >= 0")
	}

	if c.Preview.Output != "" {
		if c.Preview.Image == "" {
			fail("preview.image is required with preview.output")
		}
		if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
			fail("preview.quality must be in 1..100, got %d", c.Preview.Quality)
		}
	}

	return errors.Join(errs...)
}

func ptr[T any](v T) *T {
	return &v
}
