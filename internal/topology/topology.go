// Package topology wraps the GEOS operations used to merge and clean polygons:
// mitre buffering, unary union, explode, repair and topology preserving
// simplification.
package topology

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulsmith/gogeos/geos"
)

const (
	// MitreLimit bounds how far a mitred corner may extend, in buffer widths.
	MitreLimit = 5.0
	quadSegs   = 8
)

// ErrDegenerate is returned for empty or invalid results.
var ErrDegenerate = errors.New("degenerate geometry")

// FromOrb converts an orb geometry into a GEOS geometry.
func FromOrb(g orb.Geometry) (*geos.Geometry, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, err
	}
	return geos.FromWKB(data)
}

// ToOrb converts a GEOS geometry back into an orb geometry.
func ToOrb(g *geos.Geometry) (orb.Geometry, error) {
	data, err := g.WKB()
	if err != nil {
		return nil, err
	}
	return wkb.Unmarshal(data)
}

// Buffer dilates (d > 0) or erodes (d < 0) g with mitred joins so straight
// edges keep their orientation and corners stay square.
func Buffer(g *geos.Geometry, d float64) (*geos.Geometry, error) {
	return g.BufferWithOpts(d, geos.BufferOpts{
		QuadSegs:   quadSegs,
		CapStyle:   geos.CapFlat,
		JoinStyle:  geos.JoinMitre,
		MitreLimit: MitreLimit,
	})
}

// Union dissolves all geometries into one (possibly multi-part) geometry
// with a single cascaded union.
func Union(geoms []*geos.Geometry) (*geos.Geometry, error) {
	if len(geoms) == 0 {
		return nil, ErrDegenerate
	}

	// the collection is rebuilt from WKB so GEOS owns its members
	coll := make(orb.Collection, 0, len(geoms))
	for _, g := range geoms {
		o, err := ToOrb(g)
		if err != nil {
			return nil, err
		}
		coll = append(coll, o)
	}

	c, err := FromOrb(coll)
	if err != nil {
		return nil, err
	}

	return c.UnaryUnion()
}

// Repair rebuilds an invalid areal geometry with a zero width buffer.
func Repair(g *geos.Geometry) (*geos.Geometry, error) {
	fixed, err := g.Buffer(0)
	if err != nil {
		return nil, err
	}

	if err := Check(fixed); err != nil {
		return nil, err
	}

	return fixed, nil
}

// Explode splits g into its polygon components. Non-areal parts are ignored.
func Explode(g *geos.Geometry) ([]*geos.Geometry, error) {
	t, err := g.Type()
	if err != nil {
		return nil, err
	}

	switch t {
	case geos.POLYGON:
		return []*geos.Geometry{g}, nil
	case geos.MULTIPOLYGON, geos.GEOMETRYCOLLECTION:
	default:
		return nil, nil
	}

	n, err := g.NGeometry()
	if err != nil {
		return nil, err
	}

	var parts []*geos.Geometry
	for i := 0; i < n; i++ {
		child, err := g.Geometry(i)
		if err != nil {
			return nil, err
		}

		// children are owned by g; detach them through WKB
		owned, err := detach(child)
		if err != nil {
			return nil, err
		}

		sub, err := Explode(owned)
		if err != nil {
			return nil, err
		}
		parts = append(parts, sub...)
	}

	return parts, nil
}

// Simplify reduces vertices within tolerance without changing topology.
// Empty or invalid results yield ErrDegenerate.
func Simplify(g *geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	if tolerance <= 0 {
		return g, Check(g)
	}

	s, err := g.SimplifyP(tolerance)
	if err != nil {
		return nil, err
	}

	if err := Check(s); err != nil {
		return nil, err
	}

	return s, nil
}

// Check returns ErrDegenerate when g is empty, invalid or has no area.
func Check(g *geos.Geometry) error {
	empty, err := g.IsEmpty()
	if err != nil {
		return err
	}
	if empty {
		return fmt.Errorf("%w: empty", ErrDegenerate)
	}

	valid, err := g.IsValid()
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%w: invalid", ErrDegenerate)
	}

	area, err := g.Area()
	if err != nil {
		return err
	}
	if area <= 0 {
		return fmt.Errorf("%w: zero area", ErrDegenerate)
	}

	return nil
}

func detach(g *geos.Geometry) (*geos.Geometry, error) {
	data, err := g.WKB()
	if err != nil {
		return nil, err
	}
	return geos.FromWKB(data)
}
