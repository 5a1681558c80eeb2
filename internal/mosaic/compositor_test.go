package mosaic

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/paulmach/orb/maptile"

	"github.com/kiesman99/tilemosaic/pkg/tile"
)

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func solidRGB(t testing.TB, size int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, 0xff
	}
	return encodePNG(t, img)
}

func solidNRGBA(t testing.TB, size int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return encodePNG(t, img)
}

func solidGray(t testing.TB, size int, y uint8) []byte {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = y
	}
	return encodePNG(t, img)
}

func grid2x2() *tile.Grid {
	return &tile.Grid{Zoom: 3, X0: 2, Y0: 4, X1: 4, Y1: 6, FracX0: 2, FracY0: 4, FracX1: 4, FracY1: 6}
}

var red = color.RGBA{R: 255, A: 255}

func TestCompose_Opaque(t *testing.T) {
	g := grid2x2()
	tiles := [][]byte{solidRGB(t, 4, red), solidRGB(t, 4, red), solidRGB(t, 4, red), solidRGB(t, 4, color.RGBA{B: 255})}

	c, err := Compose(g, tiles, 0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if c.Mode != ModeRGB {
		t.Errorf("mode = %v, want RGB", c.Mode)
	}
	if got := c.Image.Bounds().Size(); got != image.Pt(8, 8) {
		t.Errorf("canvas size = %v, want 8x8", got)
	}
	if c.Pasted != 4 || c.Empty != 0 || c.Absent != 0 {
		t.Errorf("counts = %d/%d/%d, want 4/0/0", c.Pasted, c.Empty, c.Absent)
	}

	// tile (3, 5) is the bottom right one
	if got := c.Image.NRGBAAt(7, 7); got != (color.NRGBA{B: 255, A: 255}) {
		t.Errorf("bottom right pixel = %v, want blue", got)
	}
	if got := c.Image.NRGBAAt(3, 4); got != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("bottom left pixel = %v, want red", got)
	}

	img, mode := Finalize(Crop(c, g), c.Mode)
	if mode != ModeRGB {
		t.Errorf("final mode = %v, want RGB", mode)
	}
	if _, ok := img.(*image.RGBA); !ok {
		t.Errorf("final image is %T, want *image.RGBA", img)
	}
}

func TestCompose_AbsentTilesStayTransparent(t *testing.T) {
	g := grid2x2()
	tiles := [][]byte{nil, solidRGB(t, 4, red), solidRGB(t, 4, red), solidRGB(t, 4, red)}

	c, err := Compose(g, tiles, 4)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if c.Absent != 1 || c.Pasted != 3 {
		t.Errorf("absent/pasted = %d/%d, want 1/3", c.Absent, c.Pasted)
	}
	if got := c.Image.NRGBAAt(0, 0); got.A != 0 {
		t.Errorf("gap pixel = %v, want transparent", got)
	}

	img, mode := Finalize(Crop(c, g), c.Mode)
	if mode != ModeRGBA {
		t.Errorf("final mode = %v, want RGBA", mode)
	}
	if _, ok := img.(*image.NRGBA); !ok {
		t.Errorf("final image is %T, want *image.NRGBA", img)
	}
}

func TestCompose_EmptyTiles(t *testing.T) {
	tests := []struct {
		name string
		tile []byte
	}{
		{"transparent", solidNRGBA(t, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 0})},
		{"black", solidRGB(t, 4, color.RGBA{})},
		{"black gray", solidGray(t, 4, 0)},
		{"opaque black", solidNRGBA(t, 4, color.NRGBA{A: 255})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := grid2x2()
			tiles := [][]byte{tt.tile, solidRGB(t, 4, red), solidRGB(t, 4, red), solidRGB(t, 4, red)}

			c, err := Compose(g, tiles, 0)
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			if c.Empty != 1 || c.Pasted != 3 {
				t.Errorf("empty/pasted = %d/%d, want 1/3", c.Empty, c.Pasted)
			}
			if got := c.Image.NRGBAAt(1, 1); got.A != 0 {
				t.Errorf("empty tile pixel = %v, want untouched", got)
			}
		})
	}
}

func TestCompose_SemiTransparentTileIsPasted(t *testing.T) {
	g := grid2x2()
	tiles := [][]byte{
		solidNRGBA(t, 4, color.NRGBA{G: 200, A: 100}),
		solidNRGBA(t, 4, color.NRGBA{G: 200, A: 100}),
		solidNRGBA(t, 4, color.NRGBA{G: 200, A: 100}),
		solidNRGBA(t, 4, color.NRGBA{G: 200, A: 100}),
	}

	c, err := Compose(g, tiles, 0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if c.Mode != ModeRGBA {
		t.Errorf("mode = %v, want RGBA", c.Mode)
	}
	if got := c.Image.NRGBAAt(5, 5); got != (color.NRGBA{G: 200, A: 100}) {
		t.Errorf("pixel = %v, want source pixel replaced as is", got)
	}
}

func TestFinalize(t *testing.T) {
	opaque := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i], opaque.Pix[i+3] = 0xff, 0xff
	}
	holed := image.NewNRGBA(opaque.Rect)
	copy(holed.Pix, opaque.Pix)
	holed.Pix[3] = 0

	tests := []struct {
		name     string
		img      *image.NRGBA
		mode     Mode
		wantMode Mode
		wantType string
	}{
		{"opaque rgba downgrades", opaque, ModeRGBA, ModeRGB, "*image.RGBA"},
		{"opaque rgb", opaque, ModeRGB, ModeRGB, "*image.RGBA"},
		{"opaque gray", opaque, ModeGray, ModeGray, "*image.Gray"},
		{"gap keeps alpha", holed, ModeRGB, ModeRGBA, "*image.NRGBA"},
		{"gap on gray canvas", holed, ModeGray, ModeRGBA, "*image.NRGBA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, mode := Finalize(tt.img, tt.mode)
			if mode != tt.wantMode {
				t.Errorf("mode = %v, want %v", mode, tt.wantMode)
			}
			if got := fmt.Sprintf("%T", img); got != tt.wantType {
				t.Errorf("image type = %s, want %s", got, tt.wantType)
			}
			if img.Bounds() != tt.img.Bounds() {
				t.Errorf("bounds = %v, want %v", img.Bounds(), tt.img.Bounds())
			}
		})
	}
}

func TestCompose_Gray(t *testing.T) {
	g := grid2x2()
	tiles := [][]byte{solidGray(t, 4, 90), solidGray(t, 4, 90), solidGray(t, 4, 90), solidGray(t, 4, 90)}

	c, err := Compose(g, tiles, 0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	img, mode := Finalize(Crop(c, g), c.Mode)
	if mode != ModeGray {
		t.Fatalf("final mode = %v, want L", mode)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("final image is %T, want *image.Gray", img)
	}
	if got := gray.GrayAt(6, 2).Y; got != 90 {
		t.Errorf("pixel = %d, want 90", got)
	}
}

func TestCompose_MixedModesPromote(t *testing.T) {
	g := grid2x2()
	var jpg bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	if err := jpeg.Encode(&jpg, img, nil); err != nil {
		t.Fatal(err)
	}

	tiles := [][]byte{solidGray(t, 4, 90), jpg.Bytes(), solidGray(t, 4, 90), solidGray(t, 4, 90)}
	c, err := Compose(g, tiles, 0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if c.Mode != ModeRGB {
		t.Errorf("mode = %v, want RGB", c.Mode)
	}
}

func TestCompose_Errors(t *testing.T) {
	g := grid2x2()

	t.Run("no tiles", func(t *testing.T) {
		_, err := Compose(g, make([][]byte, 4), 0)
		if !errors.Is(err, ErrNoTiles) {
			t.Errorf("err = %v, want ErrNoTiles", err)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		tiles := [][]byte{solidRGB(t, 4, red), solidRGB(t, 8, red), nil, nil}
		_, err := Compose(g, tiles, 0)
		if !errors.Is(err, ErrTileSize) {
			t.Errorf("err = %v, want ErrTileSize", err)
		}
	})

	t.Run("unexpected tile size", func(t *testing.T) {
		tiles := [][]byte{solidRGB(t, 4, red), nil, nil, nil}
		_, err := Compose(g, tiles, 256)
		if !errors.Is(err, ErrTileSize) {
			t.Errorf("err = %v, want ErrTileSize", err)
		}
	})

	t.Run("undecodable", func(t *testing.T) {
		tiles := [][]byte{nil, nil, []byte("<html>rate limited</html>"), nil}
		_, err := Compose(g, tiles, 0)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("err = %v, want *DecodeError", err)
		}
		if want := maptile.New(2, 5, 3); decodeErr.Tile != want {
			t.Errorf("failed tile = %v, want %v", decodeErr.Tile, want)
		}
	})

	t.Run("tile count", func(t *testing.T) {
		if _, err := Compose(g, make([][]byte, 3), 0); err == nil {
			t.Error("Compose accepted a short tile list")
		}
	})
}

func TestCrop(t *testing.T) {
	bbox := tile.BoundingBox{West: -122.5216, South: 37.733, East: -122.3661, North: 37.8095}
	g, err := tile.NewGrid(bbox, 12)
	if err != nil {
		t.Fatal(err)
	}

	c := &Canvas{
		Image:      image.NewNRGBA(image.Rect(0, 0, 256*g.Width(), 256*g.Height())),
		TileWidth:  256,
		TileHeight: 256,
	}
	c.Image.SetNRGBA(250, 177, color.NRGBA{R: 1, A: 255})

	out := Crop(c, g)
	if got := out.Bounds(); got != image.Rect(0, 0, 453, 282) {
		t.Errorf("crop bounds = %v, want 453x282 at origin", got)
	}
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{R: 1, A: 255}) {
		t.Errorf("origin pixel = %v, want the canvas pixel at (250, 177)", got)
	}
}

func TestCrop_NeverEmpty(t *testing.T) {
	// a box far below one pixel wide at zoom 0
	bbox := tile.BoundingBox{West: 10, South: 10, East: 10.0001, North: 10.0001}
	g, err := tile.NewGrid(bbox, 0)
	if err != nil {
		t.Fatal(err)
	}
	c := &Canvas{Image: image.NewNRGBA(image.Rect(0, 0, 256, 256)), TileWidth: 256, TileHeight: 256}

	if got := Crop(c, g).Bounds().Size(); got != image.Pt(1, 1) {
		t.Errorf("crop size = %v, want 1x1", got)
	}
}
