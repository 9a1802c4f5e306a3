package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

const labelField = "label"

// Region is one polygon traced from a label grid.
type Region struct {
	Label   int
	Polygon orb.Polygon
}

// Polygonize traces every 4-connected run of equal non-zero labels into a
// polygon in world coordinates. Zero is background. Rings come back as GDAL
// writes them; callers normalise orientation.
func Polygonize(ref Georef, labels []int32) ([]Region, error) {
	if len(labels) != ref.Width*ref.Height {
		return nil, fmt.Errorf("labels hold %d pixels, grid is %dx%d", len(labels), ref.Width, ref.Height)
	}

	ds, err := godal.Create(godal.Memory, "", 1, godal.Int32, ref.Width, ref.Height)
	if err != nil {
		return nil, fmt.Errorf("create label band: %w", err)
	}
	defer func() { _ = ds.Close() }()

	if err := ds.SetGeoTransform([6]float64(ref.Transform)); err != nil {
		return nil, fmt.Errorf("set geotransform: %w", err)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(0); err != nil {
		return nil, fmt.Errorf("set nodata: %w", err)
	}
	if err := band.Write(0, 0, labels, ref.Width, ref.Height); err != nil {
		return nil, fmt.Errorf("write labels: %w", err)
	}

	vds, err := godal.CreateVector(godal.Memory, "")
	if err != nil {
		return nil, fmt.Errorf("create region layer: %w", err)
	}
	defer func() { _ = vds.Close() }()

	layer, err := vds.CreateLayer("regions", nil, godal.GTPolygon,
		godal.NewFieldDefinition(labelField, godal.FTInt))
	if err != nil {
		return nil, fmt.Errorf("create region layer: %w", err)
	}

	if err := band.Polygonize(layer, godal.PixFieldIndex(0)); err != nil {
		return nil, fmt.Errorf("polygonize: %w", err)
	}

	var regions []Region
	layer.ResetReading()
	for {
		f := layer.NextFeature()
		if f == nil {
			break
		}

		r, err := regionOf(f)
		f.Close()
		if err != nil {
			return nil, err
		}

		// nodata may still come through when the band mask is not applied
		if r.Label != 0 {
			regions = append(regions, r)
		}
	}

	return regions, nil
}

func regionOf(f *godal.Feature) (Region, error) {
	label := int(f.Fields()[labelField].Int())

	data, err := f.Geometry().WKB()
	if err != nil {
		return Region{}, fmt.Errorf("region %d: %w", label, err)
	}

	g, err := wkb.Unmarshal(data)
	if err != nil {
		return Region{}, fmt.Errorf("region %d: %w", label, err)
	}

	poly, ok := g.(orb.Polygon)
	if !ok {
		return Region{}, fmt.Errorf("region %d: unexpected %s", label, g.GeoJSONType())
	}

	return Region{Label: label, Polygon: poly}, nil
}
