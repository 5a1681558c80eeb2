package raster

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiesman99/tilemosaic/pkg/tile"
)

func testRaster() *Raster {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for i := 0; i < 4*2; i++ {
		img.Set(i%4, i/4, color.NRGBA{R: 255, A: 128})
	}
	bbox := tile.BoundingBox{West: -1, South: -1, East: 1, North: 1}
	return FromImage(img, NewGeoTransform(bbox, 4, 2), nil)
}

func TestPNGWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	r := testRaster()

	if err := (PNGWriter{}).Write(context.Background(), path, r, WriteOptions{WorldFile: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if got := img.Bounds().Size(); got != (image.Point{X: 4, Y: 2}) {
		t.Errorf("size = %v, want 4x2", got)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a>>8 != 128 {
		t.Errorf("alpha = %d, want 128", a>>8)
	}

	world, err := os.ReadFile(filepath.Join(dir, "out.pgw"))
	if err != nil {
		t.Fatalf("world file: %v", err)
	}
	if got := strings.Count(string(world), "\n"); got != 6 {
		t.Errorf("world file has %d lines, want 6", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("directory holds %d files, want output and world file only", len(entries))
	}
}

func TestPNGWriter_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")

	for name, opts := range map[string]WriteOptions{
		"reprojection": {CRS: "EPSG:4326"},
		"cog":          {COG: true},
	} {
		err := (PNGWriter{}).Write(context.Background(), path, testRaster(), opts)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: err = %v, want ErrUnsupported", name, err)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("output exists after refused write")
	}
}

func TestWorldFile(t *testing.T) {
	gt := GeoTransform{1000, 10, 0, 2000, 0, -5}
	want := "10.0000000000\n0.0000000000\n0.0000000000\n-5.0000000000\n1005.0000000000\n1997.5000000000\n"
	if got := WorldFile(gt); got != want {
		t.Errorf("WorldFile =\n%s\nwant\n%s", got, want)
	}
}

func TestWorldFilePath(t *testing.T) {
	for in, want := range map[string]string{
		"a/mosaic.png":  "a/mosaic.pgw",
		"mosaic.TIF":    "mosaic.tfw",
		"mosaic.tiff":   "mosaic.tfw",
		"mosaic":        "mosaic.wld",
		"mosaic.v2.jpg": "mosaic.v2.wld",
	} {
		if got := WorldFilePath(in); got != want {
			t.Errorf("WorldFilePath(%q) = %q, want %q", in, got, want)
		}
	}
}
