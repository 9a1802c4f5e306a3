// Package geo handles feature collections, coordinate reference identifiers
// and the coordinate math shared by the pipeline stages.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	// PropClass is the property key holding the feature class label.
	PropClass = "class"
	// ClassPermanentCrop is the label assigned to every detected crop region.
	ClassPermanentCrop = "PermanentCrop"
)

// ErrNoFeatures is returned when a collection is expected to hold features but does not.
var ErrNoFeatures = errors.New("feature collection is empty")

// CRS identifies a coordinate reference system, either as "EPSG:<code>" or as WKT.
type CRS string

// WGS84 is the geographic CRS assumed for GeoJSON without a crs member.
const WGS84 CRS = "EPSG:4326"

// EPSGCode builds a CRS from an EPSG code.
func EPSGCode(code int) CRS {
	return CRS("EPSG:" + strconv.Itoa(code))
}

// ParseCRS normalises common CRS names: URNs, "EPSG:xxxx" and OGC CRS84.
// Anything unrecognised is kept verbatim (usually WKT).
func ParseCRS(name string) CRS {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}

	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CRS84") {
		return WGS84
	}

	if strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:") {
		parts := strings.Split(s, ":")
		if code, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			return EPSGCode(code)
		}
	}

	if strings.HasPrefix(upper, "EPSG:") {
		if code, err := strconv.Atoi(strings.TrimSpace(s[5:])); err == nil {
			return EPSGCode(code)
		}
	}

	return CRS(s)
}

// EPSG returns the numeric code when the CRS is an EPSG reference.
func (c CRS) EPSG() (int, bool) {
	s := string(c)
	if !strings.HasPrefix(s, "EPSG:") {
		return 0, false
	}

	code, err := strconv.Atoi(s[5:])
	if err != nil {
		return 0, false
	}

	return code, true
}

// URN returns the OGC URN used in the GeoJSON crs member.
func (c CRS) URN() string {
	if code, ok := c.EPSG(); ok {
		return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", code)
	}

	return string(c)
}

// FeatureCollection is an ordered set of polygon features sharing one CRS.
type FeatureCollection struct {
	CRS      CRS
	Features []*geojson.Feature
}

// NewFeatureCollection returns an empty collection tagged with crs.
func NewFeatureCollection(crs CRS) *FeatureCollection {
	return &FeatureCollection{CRS: crs, Features: []*geojson.Feature{}}
}

// Len returns the number of features.
func (fc *FeatureCollection) Len() int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}

// Empty reports whether the collection holds no features.
func (fc *FeatureCollection) Empty() bool {
	return fc.Len() == 0
}

// Append adds a feature to the collection.
func (fc *FeatureCollection) Append(f *geojson.Feature) {
	fc.Features = append(fc.Features, f)
}

// Bound returns the combined bounding box of all geometries.
func (fc *FeatureCollection) Bound() (orb.Bound, bool) {
	var (
		bound orb.Bound
		found bool
	)

	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if !found {
			bound = f.Geometry.Bound()
			found = true
			continue
		}
		bound = bound.Union(f.Geometry.Bound())
	}

	return bound, found
}

// Clone returns a deep copy of the collection.
func (fc *FeatureCollection) Clone() *FeatureCollection {
	out := &FeatureCollection{CRS: fc.CRS, Features: make([]*geojson.Feature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		var g orb.Geometry
		if f.Geometry != nil {
			g = orb.Clone(f.Geometry)
		}
		c := geojson.NewFeature(g)
		c.ID = f.ID
		for k, v := range f.Properties {
			c.Properties[k] = v
		}
		out.Features = append(out.Features, c)
	}

	return out
}

// NewCropFeature wraps a polygonal geometry as a feature labelled with class.
func NewCropFeature(geom orb.Geometry, class string) *geojson.Feature {
	f := geojson.NewFeature(geom)
	f.Properties[PropClass] = class
	return f
}

// IsPolygonal reports whether g is a Polygon or MultiPolygon.
func IsPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// UnmarshalFeatureCollection decodes GeoJSON, reading the legacy crs member.
// Features without polygonal geometry are skipped; the number skipped is returned.
func UnmarshalFeatureCollection(data []byte) (*FeatureCollection, int, error) {
	raw, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, err
	}

	fc := NewFeatureCollection(crsFromMembers(raw.ExtraMembers))
	skipped := 0
	for _, f := range raw.Features {
		if f == nil || f.Geometry == nil || !IsPolygonal(f.Geometry) {
			skipped++
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		fc.Append(f)
	}

	return fc, skipped, nil
}

// MarshalFeatureCollection encodes the collection as GeoJSON with a crs member.
func MarshalFeatureCollection(fc *FeatureCollection) ([]byte, error) {
	out := geojson.NewFeatureCollection()
	out.Features = fc.Features
	if fc.CRS != "" {
		out.ExtraMembers = geojson.Properties{
			"crs": map[string]interface{}{
				"type":       "name",
				"properties": map[string]interface{}{"name": fc.CRS.URN()},
			},
		}
	}

	return out.MarshalJSON()
}

func crsFromMembers(members geojson.Properties) CRS {
	obj, ok := members["crs"].(map[string]interface{})
	if !ok {
		return WGS84
	}

	props, ok := obj["properties"].(map[string]interface{})
	if !ok {
		return WGS84
	}

	name, ok := props["name"].(string)
	if !ok || name == "" {
		return WGS84
	}

	return ParseCRS(name)
}
