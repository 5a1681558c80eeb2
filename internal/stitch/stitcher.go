// Package stitch runs a single mosaic from the command line.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"

	"github.com/kiesman99/tilemosaic/internal/archive"
	"github.com/kiesman99/tilemosaic/internal/fetch"
	"github.com/kiesman99/tilemosaic/internal/mosaic"
	"github.com/kiesman99/tilemosaic/internal/raster"
	"github.com/kiesman99/tilemosaic/pkg/tile"
)

// MaxPixels bounds the cropped raster of one run.
const MaxPixels = 10000 * 10000

// Options contains all stitching parameters
type Options struct {
	Request mosaic.Request

	// Format is "png" or "geotiff". PNG is written to Stdout when Request.Output is empty.
	Format string

	Workers      int
	FetchOptions []fetch.Option

	// Archive is an MBTiles path receiving the raw tiles.
	Archive string

	// Quiet hides the progress bar.
	Quiet bool
}

// Stitcher handles the main stitching logic
type Stitcher struct {
	writers map[string]raster.Writer
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
}

// NewStitcher creates a stitcher that writes PNG itself and GeoTIFF through geotiff,
// which may be nil when GeoTIFF output is unavailable.
func NewStitcher(geotiff raster.Writer, stdout, stderr io.Writer, logger *slog.Logger) *Stitcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	writers := map[string]raster.Writer{"png": raster.PNGWriter{}}
	if geotiff != nil {
		writers["geotiff"] = geotiff
	}
	return &Stitcher{writers: writers, stdout: stdout, stderr: stderr, logger: logger}
}

// Stitch fetches, composes and writes the mosaic described by opts.
func (s *Stitcher) Stitch(ctx context.Context, opts *Options) (*mosaic.Result, error) {
	req := opts.Request

	writer, ok := s.writers[opts.Format]
	if !ok {
		return nil, fmt.Errorf("unknown or unavailable format: %s", opts.Format)
	}

	toStdout := req.Output == ""
	if toStdout {
		if opts.Format != "png" {
			return nil, errors.New("geotiff output needs an output file")
		}
		if isTerminal(s.stdout) {
			return nil, errors.New("didn't specify output file and standard output is a terminal")
		}
		if req.WorldFile {
			return nil, errors.New("a world file needs an output file")
		}
		writer = nil
	}

	grid, zoom, res, err := mosaic.Plan(req)
	if err != nil {
		return nil, err
	}
	if err := s.summary(req.BBox, grid, zoom, res); err != nil {
		return nil, err
	}

	builderOpts := []mosaic.Option{
		mosaic.WithWorkers(opts.Workers),
		mosaic.WithLogger(s.logger),
	}

	if !opts.Quiet {
		bar := progressbar.NewOptions(grid.Len(),
			progressbar.OptionSetWriter(s.stderr),
			progressbar.OptionSetDescription("fetching tiles"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
		defer bar.Finish()
		builderOpts = append(builderOpts, mosaic.WithProgress(func(done, total int) {
			bar.Set(done)
		}))
	}

	if opts.Archive != "" {
		mbtiles, err := archive.NewMBTiles(opts.Archive,
			archive.WithLogger(s.logger),
			archive.WithMetadata(map[string]string{
				"name":    "tilemosaic",
				"type":    "baselayer",
				"bounds":  req.BBox.String(),
				"minzoom": strconv.Itoa(zoom),
				"maxzoom": strconv.Itoa(zoom),
			}))
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		defer mbtiles.Close()
		builderOpts = append(builderOpts, mosaic.WithArchive(mbtiles))
	}

	fetchers := func(src tile.Source) fetch.Fetcher {
		return fetch.NewHTTPFetcher(src, append([]fetch.Option{fetch.WithLogger(s.logger)}, opts.FetchOptions...)...)
	}

	result, err := mosaic.NewBuilder(fetchers, writer, builderOpts...).Build(ctx, req)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(s.stderr, "==Tiles: %d fetched, %d empty, %d missing\n", result.Fetched, result.Empty, result.Absent)

	if toStdout {
		if err := raster.EncodePNG(s.stdout, result.Raster); err != nil {
			return nil, fmt.Errorf("failed to write PNG: %w", err)
		}
		return result, nil
	}
	fmt.Fprintf(s.stderr, "==Output: %s (%s)\n", result.Output, result.Mode)
	return result, nil
}

// summary prints the grid of a run and refuses oversized rasters before anything is fetched.
func (s *Stitcher) summary(bbox tile.BoundingBox, grid *tile.Grid, zoom int, res float64) error {
	minx, miny := tile.From4326To3857(bbox.South, bbox.West)
	maxx, maxy := tile.From4326To3857(bbox.North, bbox.East)
	_, _, width, height := grid.PixelWindow(tile.DefaultTileSize, tile.DefaultTileSize)

	fmt.Fprintf(s.stderr, "==Geodetic Bounds  (EPSG:4326): %.17g,%.17g to %.17g,%.17g\n", bbox.South, bbox.West, bbox.North, bbox.East)
	fmt.Fprintf(s.stderr, "==Projected Bounds (EPSG:3857): %.17g,%.17g to %.17g,%.17g\n", minx, miny, maxx, maxy)
	fmt.Fprintf(s.stderr, "==Zoom Level: %d (%.17g m/px)\n", zoom, res)
	fmt.Fprintf(s.stderr, "==Upper Left Tile: x:%d y:%d\n", grid.X0, grid.Y0)
	fmt.Fprintf(s.stderr, "==Lower Right Tile: x:%d y:%d\n", grid.X1-1, grid.Y1-1)
	fmt.Fprintf(s.stderr, "==Raster Size: %dx%d\n", width, height)
	if width > 0 && height > 0 {
		fmt.Fprintf(s.stderr, "==Pixel Size: x:%.17g y:%.17g\n", (maxx-minx)/float64(width), math.Abs(maxy-miny)/float64(height))
	}

	if int64(width)*int64(height) > MaxPixels {
		return fmt.Errorf("%dx%d raster exceeds the limit of %d pixels", width, height, MaxPixels)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice != 0
}
