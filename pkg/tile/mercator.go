package tile

import (
	"fmt"
	"math"
)

const (
	// EarthRadius is the spherical Mercator radius in meters.
	EarthRadius = 6378137.0

	// InitialResolution is the ground resolution in meters/pixel of a 256px tile at zoom 0.
	InitialResolution = 156543.03392804097
)

// Deg2Num converts lat/lon to fractional tile coordinates at the given zoom level.
// The result is not floored, so the corners of a bounding box give the exact span.
// http://wiki.openstreetmap.org/wiki/Slippy_map_tilenames
func Deg2Num(lat, lon float64, zoom int) (float64, float64) {
	latRad := lat * math.Pi / 180
	n := math.Exp2(float64(zoom))

	x := (lon + 180) / 360 * n
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n

	return x, y
}

// Num2Deg converts (possibly fractional) tile coordinates to the lat/lon of that point
func Num2Deg(x, y float64, zoom int) (float64, float64) {
	n := math.Exp2(float64(zoom))
	lon := x/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))

	return latRad * 180 / math.Pi, lon
}

// From4326To3857 converts lat/lon in WGS84 to XY in Spherical Mercator (EPSG:3857)
func From4326To3857(lat, lon float64) (float64, float64) {
	x := EarthRadius * lon * math.Pi / 180
	y := EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))

	return x, y
}

// ResolutionToZoom returns the deepest zoom level whose ground resolution is no finer
// than res (meters/pixel). The effective resolution lies in [res, 2*res) for res up to
// InitialResolution; coarser values give zoom 0.
func ResolutionToZoom(res float64) (int, error) {
	if !(res > 0) || math.IsInf(res, 0) {
		return 0, fmt.Errorf("%w: %g must be a positive number of meters", ErrInvalidResolution, res)
	}

	// the epsilon keeps exact per-zoom resolutions on their own level
	zoom := int(math.Floor(math.Log2(InitialResolution/res) + 1e-9))
	if zoom < 0 {
		// coarser than a single world tile
		zoom = 0
	}
	return zoom, nil
}

// ZoomToResolution returns the ground resolution (meters/pixel) at the equator for zoom.
func ZoomToResolution(zoom int) float64 {
	return InitialResolution / math.Exp2(float64(zoom))
}

// ResolveZoom takes exactly one of zoom or resolution and derives the other.
func ResolveZoom(zoom *int, resolution *float64) (int, float64, error) {
	switch {
	case zoom != nil && resolution != nil:
		return 0, 0, fmt.Errorf("%w: got both", ErrZoomResolution)
	case zoom == nil && resolution == nil:
		return 0, 0, fmt.Errorf("%w: got neither", ErrZoomResolution)
	case zoom != nil:
		if *zoom < 0 || *zoom > MaxZoom {
			return 0, 0, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidZoom, *zoom, MaxZoom)
		}
		return *zoom, ZoomToResolution(*zoom), nil
	}

	z, err := ResolutionToZoom(*resolution)
	if err != nil {
		return 0, 0, err
	}
	if z > MaxZoom {
		return 0, 0, fmt.Errorf("%w: resolution %g needs zoom %d, max is %d", ErrInvalidZoom, *resolution, z, MaxZoom)
	}
	return z, ZoomToResolution(z), nil
}
