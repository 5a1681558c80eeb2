// Package gtiff writes rasters as GeoTIFF through GDAL, with optional reprojection and
// Cloud Optimized GeoTIFF conversion.
package gtiff

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/kiesman99/tilemosaic/internal/raster"
)

var registerOnce sync.Once

// Writer implements raster.Writer with GDAL's GTiff and COG drivers.
type Writer struct {
	logger *slog.Logger
}

// NewWriter registers the GDAL drivers on first use.
func NewWriter(logger *slog.Logger) *Writer {
	registerOnce.Do(godal.RegisterAll)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{logger: logger}
}

// Write creates path from r. Reprojection and COG conversion each run as a separate
// GDAL step over an intermediate file in the destination directory; every
// intermediate is removed. On failure the output is removed only when a step had started
// writing it, so an existing file survives errors in earlier steps.
func (w *Writer) Write(ctx context.Context, path string, r *raster.Raster, opts raster.WriteOptions) (err error) {
	if opts.WorldFile {
		return fmt.Errorf("%w: geotiff carries its own georeferencing", raster.ErrUnsupported)
	}

	var (
		intermediates []string
		touched       bool
	)
	defer func() {
		for _, name := range intermediates {
			os.Remove(name)
		}
		if err != nil && touched {
			os.Remove(path)
		}
	}()

	warp := !raster.NativeCRS(opts.CRS)
	steps := 1
	if warp {
		steps++
	}
	if opts.COG {
		steps++
	}

	target := path
	if steps > 1 {
		target = tempName(path, "base")
		intermediates = append(intermediates, target)
	}
	touched = target == path

	if err := w.create(target, r); err != nil {
		return err
	}
	w.logger.Debug("geotiff written", "path", target, "width", r.Width, "height", r.Height, "bands", len(r.Bands))

	if warp {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := path
		if opts.COG {
			dst = tempName(path, "warp")
			intermediates = append(intermediates, dst)
		}
		touched = dst == path
		if err := reproject(target, dst, opts.CRS); err != nil {
			return err
		}
		w.logger.Debug("geotiff reprojected", "crs", opts.CRS, "path", dst)
		target = dst
	}

	if opts.COG {
		if err := ctx.Err(); err != nil {
			return err
		}
		touched = true
		if err := toCOG(target, path); err != nil {
			return err
		}
		w.logger.Debug("converted to COG", "path", path)
	}
	return nil
}

func (w *Writer) create(path string, r *raster.Raster) (err error) {
	ds, err := godal.Create(godal.GTiff, path, len(r.Bands), godal.Byte, r.Width, r.Height,
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	sr, err := godal.NewSpatialRefFromEPSG(r.EPSG)
	if err != nil {
		return fmt.Errorf("EPSG:%d: %w", r.EPSG, err)
	}
	defer sr.Close()

	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("setting spatial reference: %w", err)
	}
	if err := ds.SetGeoTransform(r.GeoTransform); err != nil {
		return fmt.Errorf("setting geotransform: %w", err)
	}
	for key, value := range r.Metadata {
		if err := ds.SetMetadata(key, value); err != nil {
			return fmt.Errorf("setting metadata %s: %w", key, err)
		}
	}

	for i, band := range ds.Bands() {
		if err := band.SetColorInterp(colorInterp(r.Interp[i])); err != nil {
			return fmt.Errorf("band %d: %w", i+1, err)
		}
		if err := band.Write(0, 0, r.Bands[i], r.Width, r.Height); err != nil {
			return fmt.Errorf("writing band %d: %w", i+1, err)
		}
	}
	return nil
}

func reproject(src, dst, crs string) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer ds.Close()

	out, err := ds.Warp(dst, []string{"-t_srs", crs, "-r", "bilinear", "-of", "GTiff"},
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("reprojecting to %s: %w", crs, err)
	}
	return out.Close()
}

func toCOG(src, dst string) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer ds.Close()

	out, err := ds.Translate(dst, []string{"-of", "COG", "-co", "COMPRESS=DEFLATE"})
	if err != nil {
		return fmt.Errorf("converting to COG: %w", err)
	}
	return out.Close()
}

func tempName(path, step string) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tif", filepath.Base(path), step))
}

func colorInterp(c raster.ColorInterp) godal.ColorInterp {
	switch c {
	case raster.Red:
		return godal.CIRed
	case raster.Green:
		return godal.CIGreen
	case raster.Blue:
		return godal.CIBlue
	case raster.Alpha:
		return godal.CIAlpha
	}
	return godal.CIGray
}
