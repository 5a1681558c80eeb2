package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb/maptile"
)

// Grid is the rectangular set of tiles covering a bounding box at one zoom level.
// The integer ranges are half-open: [X0, X1) x [Y0, Y1). The fractional corners
// keep the exact position of the box inside the grid for cropping.
type Grid struct {
	Zoom   int
	X0, Y0 int
	X1, Y1 int

	FracX0, FracY0 float64
	FracX1, FracY1 float64

	BBox BoundingBox
}

// NewGrid computes the tile grid covering bbox at zoom.
func NewGrid(bbox BoundingBox, zoom int) (*Grid, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	if zoom < 0 || zoom > MaxZoom {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidZoom, zoom, MaxZoom)
	}

	x0, y0 := Deg2Num(bbox.North, bbox.West, zoom)
	x1, y1 := Deg2Num(bbox.South, bbox.East, zoom)
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}

	n := 1 << uint(zoom)
	g := &Grid{
		Zoom:   zoom,
		X0:     clamp(int(math.Floor(x0)), 0, n),
		Y0:     clamp(int(math.Floor(y0)), 0, n),
		X1:     clamp(int(math.Ceil(x1)), 0, n),
		Y1:     clamp(int(math.Ceil(y1)), 0, n),
		FracX0: x0,
		FracY0: y0,
		FracX1: x1,
		FracY1: y1,
		BBox:   bbox,
	}

	if g.Width() <= 0 || g.Height() <= 0 {
		return nil, fmt.Errorf("%w: %s at zoom %d", ErrEmptyGrid, bbox, zoom)
	}
	return g, nil
}

// Width is the number of tile columns.
func (g *Grid) Width() int { return g.X1 - g.X0 }

// Height is the number of tile rows.
func (g *Grid) Height() int { return g.Y1 - g.Y0 }

// Len is the number of tiles in the grid.
func (g *Grid) Len() int { return g.Width() * g.Height() }

// Tiles returns every tile of the grid in row-major order.
func (g *Grid) Tiles() []maptile.Tile {
	tiles := make([]maptile.Tile, 0, g.Len())
	for y := g.Y0; y < g.Y1; y++ {
		for x := g.X0; x < g.X1; x++ {
			tiles = append(tiles, maptile.New(uint32(x), uint32(y), maptile.Zoom(g.Zoom)))
		}
	}
	return tiles
}

// Index returns the row-major position of t in Tiles(), or -1 if t is not in the grid.
func (g *Grid) Index(t maptile.Tile) int {
	col, row := int(t.X)-g.X0, int(t.Y)-g.Y0
	if int(t.Z) != g.Zoom || col < 0 || row < 0 || col >= g.Width() || row >= g.Height() {
		return -1
	}
	return row*g.Width() + col
}

// Offset returns the grid-relative column and row of t.
func (g *Grid) Offset(t maptile.Tile) (int, int) {
	return int(t.X) - g.X0, int(t.Y) - g.Y0
}

// PixelWindow returns the crop window of the exact bounding box inside a canvas made of
// tileW x tileH tiles: the top-left offset and the window size.
func (g *Grid) PixelWindow(tileW, tileH int) (x, y, width, height int) {
	x = int(math.Round(float64(tileW) * (g.FracX0 - float64(g.X0))))
	y = int(math.Round(float64(tileH) * (g.FracY0 - float64(g.Y0))))
	width = int(math.Round(float64(tileW) * (g.FracX1 - g.FracX0)))
	height = int(math.Round(float64(tileH) * (g.FracY1 - g.FracY0)))
	return x, y, width, height
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
