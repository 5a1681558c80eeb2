package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/tilemosaic/pkg/tile"
)

// DefaultWorkers keeps the number of in-flight requests low enough to stay clear of
// provider rate limits.
const DefaultWorkers = 5

// Options controls FetchAll.
type Options struct {
	// Workers is the number of concurrent requests, DefaultWorkers when <= 0.
	Workers int

	// Progress is called after every completed tile with the number of finished
	// tiles and the grid size. Calls are serialized.
	Progress func(done, total int)
}

// FetchAll retrieves every tile of grid. The result is indexed like grid.Tiles(), so
// placement never depends on the order in which responses arrive. The first error
// cancels the outstanding requests and is returned.
func FetchAll(ctx context.Context, f Fetcher, grid *tile.Grid, opts Options) ([][]byte, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	tiles := grid.Tiles()
	results := make([][]byte, len(tiles))

	var mu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, t := range tiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := f.Fetch(ctx, t)
			if err != nil {
				return err
			}
			results[i] = data

			mu.Lock()
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(tiles))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
