// Package mosaic stitches the XYZ tiles covering a bounding box into one georeferenced
// image: grid, fetch, compose, crop, write.
package mosaic

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/kiesman99/tilemosaic/internal/fetch"
	"github.com/kiesman99/tilemosaic/internal/metrics"
	"github.com/kiesman99/tilemosaic/internal/raster"
	"github.com/kiesman99/tilemosaic/pkg/tile"
)

// ErrNoSource is returned for requests without a tile source.
var ErrNoSource = errors.New("tile source is required")

// FetcherFactory returns the fetcher for the tiles of src.
type FetcherFactory func(src tile.Source) fetch.Fetcher

// Archive receives the raw bytes of every retrieved tile.
type Archive interface {
	WriteTile(t maptile.Tile, data []byte) error
}

// Request describes one mosaic.
type Request struct {
	BBox tile.BoundingBox

	// Exactly one of Zoom and Resolution (meters/pixel) is set.
	Zoom       *int
	Resolution *float64

	Source tile.Source

	// Output is the destination path. The image is only kept in memory when empty.
	Output string

	CRS       string
	COG       bool
	WorldFile bool
}

// Result describes a finished mosaic.
type Result struct {
	Image        image.Image
	Mode         Mode
	GeoTransform raster.GeoTransform
	Raster       *raster.Raster

	Grid       *tile.Grid
	Zoom       int
	Resolution float64

	Fetched, Absent, Empty int

	Output string
}

// Builder runs the mosaic pipeline. It is safe for concurrent use when its fetchers and
// writer are.
type Builder struct {
	fetchers FetcherFactory
	writer   raster.Writer

	workers  int
	tileSize int
	progress func(done, total int)
	archive  Archive
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers sets the number of concurrent tile requests.
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// WithTileSize makes tiles of any other size a hard error.
func WithTileSize(size int) Option {
	return func(b *Builder) { b.tileSize = size }
}

// WithProgress reports fetch progress.
func WithProgress(fn func(done, total int)) Option {
	return func(b *Builder) { b.progress = fn }
}

// WithArchive stores the raw tiles of every mosaic.
func WithArchive(a Archive) Option {
	return func(b *Builder) { b.archive = a }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder creates a Builder. w may be nil when results are only used in memory.
func NewBuilder(fetchers FetcherFactory, w raster.Writer, opts ...Option) *Builder {
	b := &Builder{
		fetchers: fetchers,
		writer:   w,
		workers:  fetch.DefaultWorkers,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Plan validates req and computes its grid without any network activity.
func Plan(req Request) (*tile.Grid, int, float64, error) {
	if err := req.BBox.Validate(); err != nil {
		return nil, 0, 0, err
	}
	zoom, res, err := tile.ResolveZoom(req.Zoom, req.Resolution)
	if err != nil {
		return nil, 0, 0, err
	}
	grid, err := tile.NewGrid(req.BBox, zoom)
	if err != nil {
		return nil, 0, 0, err
	}
	return grid, zoom, res, nil
}

// Build runs the whole pipeline for req. Any tile failure aborts the mosaic; nothing is
// written in that case.
func (b *Builder) Build(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	defer func() { b.metrics.ObserveMosaic(err, time.Since(start)) }()

	grid, zoom, res, err := Plan(req)
	if err != nil {
		return nil, err
	}
	if req.Source.IsZero() {
		return nil, ErrNoSource
	}

	logger := b.logger.With("zoom", zoom, "source", req.Source.String())
	logger.Info("fetching tiles",
		"tiles", grid.Len(),
		"x", fmt.Sprintf("%d-%d", grid.X0, grid.X1-1),
		"y", fmt.Sprintf("%d-%d", grid.Y0, grid.Y1-1),
		"resolution", res)

	tiles, err := fetch.FetchAll(ctx, b.fetchers(req.Source), grid, fetch.Options{
		Workers:  b.workers,
		Progress: b.progress,
	})
	if err != nil {
		return nil, err
	}

	if b.archive != nil {
		if err := b.store(grid, tiles); err != nil {
			return nil, err
		}
	}

	canvas, err := Compose(grid, tiles, b.tileSize)
	if err != nil {
		return nil, err
	}
	logger.Debug("tiles composed",
		"pasted", canvas.Pasted, "empty", canvas.Empty, "absent", canvas.Absent, "mode", canvas.Mode)

	img, mode := Finalize(Crop(canvas, grid), canvas.Mode)
	size := img.Bounds().Size()
	gt := raster.NewGeoTransform(req.BBox, size.X, size.Y)

	metadata := map[string]string{
		raster.MetaZoomLevel:  strconv.Itoa(zoom),
		raster.MetaResolution: strconv.FormatFloat(res, 'f', -1, 64),
		raster.MetaSource:     req.Source.Template(),
	}

	result = &Result{
		Image:        img,
		Mode:         mode,
		GeoTransform: gt,
		Raster:       raster.FromImage(img, gt, metadata),
		Grid:         grid,
		Zoom:         zoom,
		Resolution:   res,
		Fetched:      canvas.Pasted + canvas.Empty,
		Absent:       canvas.Absent,
		Empty:        canvas.Empty,
	}

	if b.writer != nil && req.Output != "" {
		opts := raster.WriteOptions{CRS: req.CRS, COG: req.COG, WorldFile: req.WorldFile}
		if err := b.writer.Write(ctx, req.Output, result.Raster, opts); err != nil {
			return nil, fmt.Errorf("writing %s: %w", req.Output, err)
		}
		result.Output = req.Output
		logger.Info("mosaic written", "path", req.Output, "width", size.X, "height", size.Y, "mode", mode)
	}
	return result, nil
}

func (b *Builder) store(grid *tile.Grid, tiles [][]byte) error {
	for i, t := range grid.Tiles() {
		if tiles[i] == nil {
			continue
		}
		if err := b.archive.WriteTile(t, tiles[i]); err != nil {
			return fmt.Errorf("archiving tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
		}
	}
	return nil
}
