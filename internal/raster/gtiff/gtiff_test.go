package gtiff

import (
	"context"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"

	"github.com/kiesman99/tilemosaic/internal/raster"
	"github.com/kiesman99/tilemosaic/pkg/tile"
)

var testBBox = tile.BoundingBox{West: -122.5216, South: 37.733, East: -122.3661, North: 37.8095}

func testRaster(opaque bool) *raster.Raster {
	rect := image.Rect(0, 0, 64, 32)
	var img image.Image
	if opaque {
		rgb := image.NewRGBA(rect)
		for y := 0; y < 32; y++ {
			for x := 0; x < 64; x++ {
				rgb.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
			}
		}
		img = rgb
	} else {
		img = image.NewNRGBA(rect)
	}
	return raster.FromImage(img, raster.NewGeoTransform(testBBox, 64, 32), map[string]string{
		raster.MetaZoomLevel:  "12",
		raster.MetaResolution: "38.21851414258813",
	})
}

func TestWriter_GeoTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tif")
	r := testRaster(true)

	if err := NewWriter(nil).Write(context.Background(), path, r, raster.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ds, err := godal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.SizeX != 64 || st.SizeY != 32 || st.NBands != 3 {
		t.Errorf("structure = %dx%d %d bands, want 64x32 3 bands", st.SizeX, st.SizeY, st.NBands)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		t.Fatal(err)
	}
	for i := range gt {
		if math.Abs(gt[i]-r.GeoTransform[i]) > 1e-6 {
			t.Errorf("geotransform = %v, want %v", gt, r.GeoTransform)
			break
		}
	}

	if got := ds.Metadata(raster.MetaZoomLevel); got != "12" {
		t.Errorf("%s = %q, want 12", raster.MetaZoomLevel, got)
	}
	if got := ds.Bands()[0].ColorInterp(); got != godal.CIRed {
		t.Errorf("band 1 color interpretation = %v, want red", got)
	}

	buf := make([]byte, 64*32)
	if err := ds.Bands()[0].Read(0, 0, buf, 64, 32); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 255 || buf[len(buf)-1] != 255 {
		t.Errorf("red band = %d..%d, want 255", buf[0], buf[len(buf)-1])
	}
}

func TestWriter_ReprojectedCOG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tif")

	err := NewWriter(nil).Write(context.Background(), path, testRaster(false), raster.WriteOptions{CRS: "EPSG:4326", COG: true})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	ds, err := godal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	if got := ds.Structure().NBands; got != 4 {
		t.Errorf("bands = %d, want 4", got)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(gt[0]-testBBox.West) > 0.01 || math.Abs(gt[3]-testBBox.North) > 0.01 {
		t.Errorf("origin = (%f, %f), want near (%f, %f)", gt[0], gt[3], testBBox.West, testBBox.North)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d files, want the output only", len(entries))
	}
}

func TestWriter_FailureRemovesOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tif")

	err := NewWriter(nil).Write(context.Background(), path, testRaster(true), raster.WriteOptions{CRS: "EPSG:not-a-code"})
	if err == nil {
		t.Fatal("Write succeeded with an invalid CRS")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("partial output left behind")
	}
}

func TestWriter_EarlyFailureKeepsExistingOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tif")
	if err := os.WriteFile(path, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}

	// canceled after the intermediate base file, before the output is opened
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWriter(nil).Write(ctx, path, testRaster(true), raster.WriteOptions{CRS: "EPSG:4326"})
	if err == nil {
		t.Fatal("Write succeeded with a canceled context")
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("existing output was removed: %v", readErr)
	}
	if string(data) != "previous run" {
		t.Errorf("existing output was modified: %q", data)
	}
	if _, statErr := os.Stat(tempName(path, "base")); !os.IsNotExist(statErr) {
		t.Errorf("intermediate file left behind")
	}
}
