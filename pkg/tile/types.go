package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MaxZoom is the deepest zoom level accepted for a mosaic.
const MaxZoom = 24

// DefaultTileSize is the pixel size of a standard slippy map tile.
const DefaultTileSize = 256

// MaxLatitude is the edge of the Web Mercator tile pyramid, atan(sinh(π)) in degrees.
const MaxLatitude = 85.05112877980659

// BoundingBox represents geographic bounds in EPSG:4326 degrees
type BoundingBox struct {
	West, South, East, North float64
}

// Validate checks ordering and coordinate ranges. Latitudes beyond ±MaxLatitude have
// no tiles and are rejected.
func (b BoundingBox) Validate() error {
	if b.West >= b.East {
		return fmt.Errorf("%w: west %g must be less than east %g", ErrInvalidBBox, b.West, b.East)
	}
	if b.South >= b.North {
		return fmt.Errorf("%w: south %g must be less than north %g", ErrInvalidBBox, b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("%w: longitude outside [-180, 180]", ErrInvalidBBox)
	}
	if b.South < -MaxLatitude || b.North > MaxLatitude {
		return fmt.Errorf("%w: latitude outside the Web Mercator range [-%.4f, %.4f]", ErrInvalidBBox, MaxLatitude, MaxLatitude)
	}
	return nil
}

// Bound converts the box to an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Slice returns the box as [west, south, east, north].
func (b BoundingBox) Slice() []float64 {
	return []float64{b.West, b.South, b.East, b.North}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North)
}

// FromBound converts an orb.Bound to a BoundingBox.
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{West: b.Min.Lon(), South: b.Min.Lat(), East: b.Max.Lon(), North: b.Max.Lat()}
}

// FromSlice builds a box from a 4-element [west, south, east, north] list.
func FromSlice(v []float64) (BoundingBox, error) {
	if len(v) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: expected 4 values, got %d", ErrInvalidBBox, len(v))
	}
	return BoundingBox{West: v[0], South: v[1], East: v[2], North: v[3]}, nil
}

// ParseBoundingBox parses "west,south,east,north".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: bbox must be in format 'west,south,east,north'", ErrInvalidBBox)
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("%w: value %d: %v", ErrInvalidBBox, i+1, err)
		}
		vals[i] = v
	}

	return FromSlice(vals)
}

// BoundingBoxFromGeoJSON returns the bounds of every geometry in a GeoJSON
// FeatureCollection, Feature or bare Geometry document.
func BoundingBoxFromGeoJSON(data []byte) (BoundingBox, error) {
	var bound orb.Bound
	var found bool

	extend := func(g orb.Geometry) {
		if g == nil {
			return
		}
		if !found {
			bound = g.Bound()
			found = true
			return
		}
		bound = bound.Union(g.Bound())
	}

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		for _, f := range fc.Features {
			extend(f.Geometry)
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		extend(f.Geometry)
	} else if g, err := geojson.UnmarshalGeometry(data); err == nil {
		extend(g.Geometry())
	}

	if !found {
		return BoundingBox{}, fmt.Errorf("%w: no geometry found in GeoJSON", ErrInvalidBBox)
	}
	return FromBound(bound), nil
}
