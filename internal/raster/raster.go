// Package raster reads georeferenced rasters through GDAL and exposes the
// pixel grids and georeferencing the pipeline stages need.
package raster

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/woozymasta/cropmask/internal/geo"
	"github.com/woozymasta/cropmask/internal/projection"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
)

// ErrNoBands is returned when a dataset has fewer bands than requested.
var ErrNoBands = errors.New("raster has no such band")

// Georef describes the pixel grid and its placement in world coordinates.
type Georef struct {
	CRS       geo.CRS
	Transform geo.Affine
	Width     int
	Height    int
}

// Bounds returns the world extent of the raster.
func (g Georef) Bounds() orb.Bound {
	var b orb.Bound
	corners := [][2]float64{{0, 0}, {float64(g.Width), 0}, {0, float64(g.Height)}, {float64(g.Width), float64(g.Height)}}
	for i, c := range corners {
		x, y := g.Transform.Apply(c[0], c[1])
		if i == 0 {
			b = orb.Bound{Min: orb.Point{x, y}, Max: orb.Point{x, y}}
			continue
		}
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// Resolution returns the pixel size in CRS units along x and y.
func (g Georef) Resolution() (float64, float64) {
	return g.Transform.Resolution()
}

// Grid is a single band of values, row-major.
type Grid struct {
	Georef
	Data   []float64
	NoData *float64
}

// At returns the value at col,row.
func (g *Grid) At(col, row int) float64 {
	return g.Data[row*g.Width+col]
}

// Image holds several bands sharing one georeference.
type Image struct {
	Georef
	Bands [][]float64
}

// Mask marks positive pixels, row-major.
type Mask struct {
	Width  int
	Height int
	Pixels []bool
}

// Set reports whether col,row is inside the mask bounds and positive.
func (m *Mask) Set(col, row int) bool {
	if col < 0 || row < 0 || col >= m.Width || row >= m.Height {
		return false
	}
	return m.Pixels[row*m.Width+col]
}

// Count returns the number of positive pixels.
func (m *Mask) Count() int {
	n := 0
	for _, p := range m.Pixels {
		if p {
			n++
		}
	}
	return n
}

// Threshold builds a mask of pixels strictly greater than t.
// NaN and nodata pixels are never positive.
func (g *Grid) Threshold(t float64) *Mask {
	m := &Mask{Width: g.Width, Height: g.Height, Pixels: make([]bool, len(g.Data))}
	for i, v := range g.Data {
		if math.IsNaN(v) || (g.NoData != nil && v == *g.NoData) {
			continue
		}
		m.Pixels[i] = v > t
	}
	return m
}

// ReadGeoref opens path and returns its georeference without reading pixels.
func ReadGeoref(path string) (Georef, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return Georef{}, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	return georefOf(ds)
}

// ReadGrid reads one band (1-based) as float64 values.
func ReadGrid(path string, band int) (*Grid, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	ref, err := georefOf(ds)
	if err != nil {
		return nil, err
	}

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoBands, band, len(bands))
	}

	data, err := readBand(bands[band-1], ref.Width, ref.Height)
	if err != nil {
		return nil, err
	}

	grid := &Grid{Georef: ref, Data: data}
	if nd, ok := bands[band-1].NoData(); ok {
		grid.NoData = &nd
	}

	return grid, nil
}

// ReadImage reads up to maxBands bands (all when maxBands <= 0).
func ReadImage(path string, maxBands int) (*Image, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	ref, err := georefOf(ds)
	if err != nil {
		return nil, err
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, ErrNoBands
	}
	if maxBands > 0 && len(bands) > maxBands {
		bands = bands[:maxBands]
	}

	img := &Image{Georef: ref, Bands: make([][]float64, 0, len(bands))}
	for _, b := range bands {
		data, err := readBand(b, ref.Width, ref.Height)
		if err != nil {
			return nil, err
		}
		img.Bands = append(img.Bands, data)
	}

	return img, nil
}

// WriteGrid stores g as a single band Float32 GeoTIFF. The file is built
// next to path and renamed into place once GDAL has flushed it.
func WriteGrid(path string, g *Grid) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tif")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpName) }()

	ds, err := godal.Create(godal.GTiff, tmpName, 1, godal.Float32, g.Width, g.Height)
	if err != nil {
		return fmt.Errorf("create raster %s: %w", path, err)
	}

	if err := fillDataset(ds, g); err != nil {
		_ = ds.Close()
		return err
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("flush raster %s: %w", path, err)
	}

	return os.Rename(tmpName, path)
}

func fillDataset(ds *godal.Dataset, g *Grid) error {
	if err := ds.SetGeoTransform([6]float64(g.Transform)); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}

	if g.CRS != "" {
		sr, err := projection.NewSpatialRef(g.CRS)
		if err != nil {
			return err
		}
		defer sr.Close()

		if err := ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("set spatial ref: %w", err)
		}
	}

	band := ds.Bands()[0]
	if g.NoData != nil {
		if err := band.SetNoData(*g.NoData); err != nil {
			return fmt.Errorf("set nodata: %w", err)
		}
	}

	data := make([]float32, len(g.Data))
	for i, v := range g.Data {
		data[i] = float32(v)
	}

	if err := band.Write(0, 0, data, g.Width, g.Height); err != nil {
		return fmt.Errorf("write band: %w", err)
	}

	return nil
}

func georefOf(ds *godal.Dataset) (Georef, error) {
	st := ds.Structure()

	gt, err := ds.GeoTransform()
	if err != nil {
		return Georef{}, fmt.Errorf("read geotransform: %w", err)
	}

	crs, err := projection.CRSFromSpatialRef(ds.SpatialRef())
	if err != nil {
		return Georef{}, fmt.Errorf("read raster crs: %w", err)
	}

	return Georef{
		CRS:       crs,
		Transform: geo.Affine(gt),
		Width:     st.SizeX,
		Height:    st.SizeY,
	}, nil
}

func readBand(b godal.Band, width, height int) ([]float64, error) {
	data := make([]float64, width*height)
	if err := b.Read(0, 0, data, width, height); err != nil {
		return nil, fmt.Errorf("read band: %w", err)
	}
	return data, nil
}
