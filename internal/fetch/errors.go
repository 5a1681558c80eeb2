package fetch

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// TileError reports a tile that could not be retrieved once the retry budget was
// spent. A single TileError aborts the whole mosaic.
type TileError struct {
	Tile       maptile.Tile
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TileError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tile %d/%d/%d: GET %s: HTTP %d", e.Tile.Z, e.Tile.X, e.Tile.Y, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("tile %d/%d/%d: GET %s: %v", e.Tile.Z, e.Tile.X, e.Tile.Y, e.URL, e.Err)
}

func (e *TileError) Unwrap() error {
	return e.Err
}
