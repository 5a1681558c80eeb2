package raster

import (
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PNGWriter writes plain PNG files. It keeps the raster in Web Mercator; the
// georeferencing travels in an optional world file.
type PNGWriter struct{}

func (PNGWriter) Write(ctx context.Context, path string, r *Raster, opts WriteOptions) error {
	if !NativeCRS(opts.CRS) {
		return fmt.Errorf("%w: png output cannot be reprojected to %s", ErrUnsupported, opts.CRS)
	}
	if opts.COG {
		return fmt.Errorf("%w: png output cannot be a COG", ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeFile(path, func(w io.Writer) error {
		return png.Encode(w, r.Image())
	}); err != nil {
		return err
	}

	if opts.WorldFile {
		if err := writeFile(WorldFilePath(path), func(w io.Writer) error {
			_, err := io.WriteString(w, WorldFile(r.GeoTransform))
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

// EncodePNG writes the raster as PNG to w.
func EncodePNG(w io.Writer, r *Raster) error {
	return png.Encode(w, r.Image())
}

// WorldFile renders the six-line world file of gt. World files reference the centre
// of the upper left pixel, GDAL transforms its corner.
func WorldFile(gt GeoTransform) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.10f\n", gt[1])
	fmt.Fprintf(&b, "%.10f\n", gt[4])
	fmt.Fprintf(&b, "%.10f\n", gt[2])
	fmt.Fprintf(&b, "%.10f\n", gt[5])
	fmt.Fprintf(&b, "%.10f\n", gt[0]+gt[1]/2+gt[2]/2)
	fmt.Fprintf(&b, "%.10f\n", gt[3]+gt[4]/2+gt[5]/2)
	return b.String()
}

// WorldFilePath derives the sidecar name: .pgw for PNG, .tfw for TIFF, .wld otherwise.
func WorldFilePath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	switch strings.ToLower(ext) {
	case ".png":
		return base + ".pgw"
	case ".tif", ".tiff":
		return base + ".tfw"
	}
	return base + ".wld"
}

// writeFile writes through a temporary file so a failed write never leaves a partial
// output behind.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tilemosaic-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
