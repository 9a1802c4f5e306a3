package geo

import "math"

// Affine is a GDAL-ordered geotransform:
// x = a[0] + col*a[1] + row*a[2], y = a[3] + col*a[4] + row*a[5].
type Affine [6]float64

// Apply maps a pixel corner position to world coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	x = a[0] + col*a[1] + row*a[2]
	y = a[3] + col*a[4] + row*a[5]
	return x, y
}

// Invert maps world coordinates back to fractional pixel positions.
func (a Affine) Invert(x, y float64) (col, row float64) {
	det := a.Determinant()
	if det == 0 {
		return math.NaN(), math.NaN()
	}

	dx, dy := x-a[0], y-a[3]
	col = (a[5]*dx - a[2]*dy) / det
	row = (a[1]*dy - a[4]*dx) / det
	return col, row
}

// Determinant is negative for the usual north-up rasters.
func (a Affine) Determinant() float64 {
	return a[1]*a[5] - a[2]*a[4]
}

// Resolution returns the pixel size along each axis in world units.
func (a Affine) Resolution() (resX, resY float64) {
	return math.Hypot(a[1], a[4]), math.Hypot(a[2], a[5])
}

// UTMZone returns the standard 6 degree UTM zone for a lon/lat position.
func UTMZone(lon, lat float64) (zone int, north bool) {
	zone = int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	} else if zone > 60 {
		zone = 60
	}

	return zone, lat >= 0
}

// UTMCRS returns the WGS 84 / UTM CRS (EPSG 326zz or 327zz) covering lon/lat.
func UTMCRS(lon, lat float64) CRS {
	zone, north := UTMZone(lon, lat)
	if north {
		return EPSGCode(32600 + zone)
	}

	return EPSGCode(32700 + zone)
}
