// Package raster holds the georeferenced image handed from the compositor to the
// output writers, and the writers that need no GDAL.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrUnsupported is returned by writers asked for an option they cannot honour.
var ErrUnsupported = errors.New("unsupported output option")

// ColorInterp names the meaning of one band.
type ColorInterp int

const (
	Gray ColorInterp = iota
	Red
	Green
	Blue
	Alpha
)

func (c ColorInterp) String() string {
	switch c {
	case Gray:
		return "gray"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Alpha:
		return "alpha"
	}
	return fmt.Sprintf("ColorInterp(%d)", int(c))
}

// Metadata keys written alongside the raster.
const (
	MetaZoomLevel  = "ZOOM_LEVEL"
	MetaResolution = "RESOLUTION"
	MetaSource     = "SOURCE"
)

// Raster is a planar 8-bit image with its georeferencing.
type Raster struct {
	Width, Height int

	// Bands holds one Width*Height plane per band, row-major.
	Bands  [][]byte
	Interp []ColorInterp

	GeoTransform GeoTransform
	EPSG         int
	Metadata     map[string]string
}

// FromImage splits img into bands. *image.Gray yields one band, *image.NRGBA four and
// every other image three opaque color bands.
func FromImage(img image.Image, gt GeoTransform, metadata map[string]string) *Raster {
	b := img.Bounds()
	r := &Raster{
		Width:        b.Dx(),
		Height:       b.Dy(),
		GeoTransform: gt,
		EPSG:         EPSGWebMercator,
		Metadata:     metadata,
	}
	n := r.Width * r.Height

	switch src := img.(type) {
	case *image.Gray:
		band := make([]byte, n)
		for y := 0; y < r.Height; y++ {
			copy(band[y*r.Width:(y+1)*r.Width], src.Pix[y*src.Stride:y*src.Stride+r.Width])
		}
		r.Bands = [][]byte{band}
		r.Interp = []ColorInterp{Gray}
		return r
	case *image.NRGBA:
		r.Bands = [][]byte{make([]byte, n), make([]byte, n), make([]byte, n), make([]byte, n)}
		r.Interp = []ColorInterp{Red, Green, Blue, Alpha}
		for y := 0; y < r.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < r.Width; x++ {
				i := y*r.Width + x
				r.Bands[0][i] = row[x*4]
				r.Bands[1][i] = row[x*4+1]
				r.Bands[2][i] = row[x*4+2]
				r.Bands[3][i] = row[x*4+3]
			}
		}
		return r
	}

	r.Bands = [][]byte{make([]byte, n), make([]byte, n), make([]byte, n)}
	r.Interp = []ColorInterp{Red, Green, Blue}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*r.Width + x
			r.Bands[0][i], r.Bands[1][i], r.Bands[2][i] = c.R, c.G, c.B
		}
	}
	return r
}

// Image interleaves the bands back into an image of the matching type.
func (r *Raster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)

	switch len(r.Bands) {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, r.Bands[0])
		return img
	case 4:
		img := image.NewNRGBA(rect)
		for i := 0; i < r.Width*r.Height; i++ {
			img.Pix[i*4] = r.Bands[0][i]
			img.Pix[i*4+1] = r.Bands[1][i]
			img.Pix[i*4+2] = r.Bands[2][i]
			img.Pix[i*4+3] = r.Bands[3][i]
		}
		return img
	}

	img := image.NewRGBA(rect)
	for i := 0; i < r.Width*r.Height; i++ {
		img.Pix[i*4] = r.Bands[0][i]
		img.Pix[i*4+1] = r.Bands[1][i]
		img.Pix[i*4+2] = r.Bands[2][i]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// WriteOptions controls the output of a Writer.
type WriteOptions struct {
	// CRS is the target reference system ("EPSG:4326"). Empty or EPSG:3857 keeps the
	// native Web Mercator grid.
	CRS string

	// COG converts the output into a Cloud Optimized GeoTIFF.
	COG bool

	// WorldFile writes a sidecar world file next to the output.
	WorldFile bool
}

// NativeCRS reports whether crs leaves the raster in Web Mercator.
func NativeCRS(crs string) bool {
	switch crs {
	case "", "EPSG:3857", "epsg:3857", "EPSG:900913":
		return true
	}
	return false
}

// Writer persists a raster at path.
type Writer interface {
	Write(ctx context.Context, path string, r *Raster, opts WriteOptions) error
}
