// Package processor implements the crop polygon pipeline stages: vectorizing
// a probability raster, trimming scene-edge artifacts and merging fragments.
//
// Each stage is a function from one in-memory value to another. The Process*
// functions are the file boundary around them.
package processor

import (
	"errors"

	"github.com/woozymasta/cropmask/internal/geo"
)

// Stage argument errors.
var (
	ErrInvalidMargin       = errors.New("margin must be >= 0")
	ErrInvalidProximity    = errors.New("proximity must be > 0")
	ErrInvalidMinArea      = errors.New("minimum area must be >= 0")
	ErrInvalidThreshold    = errors.New("threshold must be a finite number")
	ErrInvalidConnectivity = errors.New("connectivity must be 4 or 8")
)

// Status reports how a stage ended. Only StatusOK produces output.
type Status int

const (
	// StatusOK means the stage produced at least one feature.
	StatusOK Status = iota
	// StatusEmptyInput means there was nothing to process.
	StatusEmptyInput
	// StatusEmptyOutput means every feature was filtered out.
	StatusEmptyOutput
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmptyInput:
		return "empty input"
	case StatusEmptyOutput:
		return "empty output"
	default:
		return "unknown"
	}
}

// Reprojector is the coordinate system capability the stages depend on.
// *projection.Projector implements it.
type Reprojector interface {
	Equivalent(a, b geo.CRS) (bool, error)
	IsGeographic(c geo.CRS) (bool, error)
	EstimateUTM(fc *geo.FeatureCollection) (geo.CRS, error)
	Reproject(fc *geo.FeatureCollection, to geo.CRS) (*geo.FeatureCollection, error)
}

func statusOf(in, out int) Status {
	switch {
	case in == 0:
		return StatusEmptyInput
	case out == 0:
		return StatusEmptyOutput
	default:
		return StatusOK
	}
}
