package mosaic

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	// tile decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/paulmach/orb/maptile"

	"github.com/kiesman99/tilemosaic/pkg/tile"
)

var (
	// ErrNoTiles is returned when not a single tile of the grid could be decoded.
	ErrNoTiles = errors.New("no tiles were retrieved")

	// ErrTileSize is returned when a tile's dimensions differ from the others.
	ErrTileSize = errors.New("tile size mismatch")
)

// Mode is the channel layout of a tile or canvas, ordered by the amount of
// information it holds.
type Mode int

const (
	ModeGray Mode = iota
	ModeRGB
	ModeRGBA
)

func (m Mode) String() string {
	switch m {
	case ModeGray:
		return "L"
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Bands returns the number of channels of the mode.
func (m Mode) Bands() int {
	switch m {
	case ModeGray:
		return 1
	case ModeRGB:
		return 3
	}
	return 4
}

// Canvas is the uncropped mosaic of a grid. Pixels no tile was pasted on stay fully
// transparent.
type Canvas struct {
	Image *image.NRGBA
	Mode  Mode

	TileWidth, TileHeight int

	// Pasted, Empty and Absent count the tiles by how they ended up on the canvas.
	Pasted, Empty, Absent int
}

// DecodeError reports a tile that was retrieved but could not be decoded.
type DecodeError struct {
	Tile maptile.Tile
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tile %d/%d/%d: decoding: %v", e.Tile.Z, e.Tile.X, e.Tile.Y, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Compose pastes the fetched tiles onto one canvas. tiles is indexed like
// grid.Tiles(); nil entries are absent tiles. The canvas is sized from the first
// decoded tile, unless tileSize is positive in which case every tile must be
// tileSize pixels square.
func Compose(grid *tile.Grid, tiles [][]byte, tileSize int) (*Canvas, error) {
	if len(tiles) != grid.Len() {
		return nil, fmt.Errorf("got %d tiles for a grid of %d", len(tiles), grid.Len())
	}

	var c *Canvas
	absent := 0
	for i, t := range grid.Tiles() {
		data := tiles[i]
		if data == nil {
			absent++
			continue
		}

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &DecodeError{Tile: t, Err: err}
		}
		size := img.Bounds().Size()

		if c == nil {
			if tileSize > 0 && (size.X != tileSize || size.Y != tileSize) {
				return nil, fmt.Errorf("%w: tile %d/%d/%d is %dx%d, want %dx%d",
					ErrTileSize, t.Z, t.X, t.Y, size.X, size.Y, tileSize, tileSize)
			}
			c = &Canvas{
				Image:      image.NewNRGBA(image.Rect(0, 0, size.X*grid.Width(), size.Y*grid.Height())),
				Mode:       tileMode(img),
				TileWidth:  size.X,
				TileHeight: size.Y,
			}
		} else if size.X != c.TileWidth || size.Y != c.TileHeight {
			return nil, fmt.Errorf("%w: tile %d/%d/%d is %dx%d, want %dx%d",
				ErrTileSize, t.Z, t.X, t.Y, size.X, size.Y, c.TileWidth, c.TileHeight)
		}

		mode := tileMode(img)
		if mode > c.Mode {
			c.Mode = mode
		}

		if isEmpty(img, mode) {
			c.Empty++
			continue
		}

		col, row := grid.Offset(t)
		at := image.Pt(col*c.TileWidth, row*c.TileHeight)
		draw.Draw(c.Image, image.Rectangle{Min: at, Max: at.Add(size)}, img, img.Bounds().Min, draw.Src)
		c.Pasted++
	}

	if c == nil {
		return nil, ErrNoTiles
	}
	c.Absent = absent
	return c, nil
}

// Crop cuts the exact bounding box window out of the canvas. The window is never
// empty and never leaves the canvas.
func Crop(c *Canvas, grid *tile.Grid) *image.NRGBA {
	x, y, w, h := grid.PixelWindow(c.TileWidth, c.TileHeight)
	bounds := c.Image.Bounds()

	x = min(max(x, 0), bounds.Dx()-1)
	y = min(max(y, 0), bounds.Dy()-1)
	w = min(max(w, 1), bounds.Dx()-x)
	h = min(max(h, 1), bounds.Dy()-y)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), c.Image, image.Pt(x, y), draw.Src)
	return out
}

// Finalize picks the output layout of a cropped mosaic. A fully opaque image drops its
// alpha channel: *image.Gray for gray canvases, *image.RGBA otherwise. Any transparent
// pixel keeps the *image.NRGBA.
func Finalize(img *image.NRGBA, mode Mode) (image.Image, Mode) {
	if !img.Opaque() {
		return img, ModeRGBA
	}

	if mode == ModeGray {
		out := image.NewGray(img.Bounds())
		for i := 0; i < len(out.Pix); i++ {
			out.Pix[i] = img.Pix[i*4]
		}
		return out, ModeGray
	}

	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out, ModeRGB
}

func tileMode(img image.Image) Mode {
	switch src := img.(type) {
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.RGBA, *image.RGBA64, *image.YCbCr, *image.CMYK:
		return ModeRGB
	case *image.Paletted:
		for _, c := range src.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return ModeRGBA
			}
		}
		return ModeRGB
	}
	return ModeRGBA
}

// isEmpty reports tiles that carry no content: fully transparent, or black in every
// color channel.
func isEmpty(img image.Image, mode Mode) bool {
	b := img.Bounds()

	if mode == ModeRGBA {
		transparent := true
		for y := b.Min.Y; y < b.Max.Y && transparent; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA).A != 0 {
					transparent = false
					break
				}
			}
		}
		if transparent {
			return true
		}
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R != 0 || c.G != 0 || c.B != 0 {
				return false
			}
		}
	}
	return true
}
