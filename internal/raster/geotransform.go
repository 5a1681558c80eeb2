package raster

import (
	"math"

	"github.com/kiesman99/tilemosaic/pkg/tile"
)

// EPSGWebMercator is the native CRS of every mosaic.
const EPSGWebMercator = 3857

// GeoTransform is the GDAL affine transform
// (originX, pixelWidth, 0, originY, 0, -pixelHeight) in EPSG:3857 meters.
type GeoTransform [6]float64

// NewGeoTransform anchors a width x height raster on the exact corners of bbox. The
// corners are projected directly, never snapped to tile edges.
func NewGeoTransform(bbox tile.BoundingBox, width, height int) GeoTransform {
	x0, y0 := tile.From4326To3857(bbox.North, bbox.West)
	x1, y1 := tile.From4326To3857(bbox.South, bbox.East)

	pixelW := math.Abs(x1-x0) / float64(width)
	pixelH := math.Abs(y1-y0) / float64(height)

	return GeoTransform{math.Min(x0, x1), pixelW, 0, math.Max(y0, y1), 0, -pixelH}
}

// Apply maps pixel coordinates to projected coordinates.
func (gt GeoTransform) Apply(px, py float64) (float64, float64) {
	x := gt[0] + px*gt[1] + py*gt[2]
	y := gt[3] + px*gt[4] + py*gt[5]
	return x, y
}

// PixelSize returns the pixel width and the (positive) pixel height.
func (gt GeoTransform) PixelSize() (float64, float64) {
	return gt[1], -gt[5]
}
