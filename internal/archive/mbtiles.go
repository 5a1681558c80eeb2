// Package archive stores the raw tiles of a mosaic in an MBTiles file.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb/maptile"
)

// MBTiles writes tiles into an MBTiles 1.3 file. Rows are stored in TMS order.
// Writing a tile twice keeps the latest data, so one file can collect several runs.
type MBTiles struct {
	db     *sql.DB
	stmt   *sql.Stmt
	logger *slog.Logger
	count  int
}

type config struct {
	metadata map[string]string
	logger   *slog.Logger
}

// Option configures NewMBTiles.
type Option func(*config)

// WithMetadata sets rows of the metadata table (name, format, bounds, ...).
func WithMetadata(metadata map[string]string) Option {
	return func(c *config) { c.metadata = metadata }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// NewMBTiles opens or creates the MBTiles file at path.
func NewMBTiles(path string, opts ...Option) (_ *MBTiles, err error) {
	cfg := config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if _, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);
		CREATE UNIQUE INDEX IF NOT EXISTS metadata_index ON metadata (name);
		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER,
			tile_column INTEGER,
			tile_row INTEGER,
			tile_data BLOB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`); err != nil {
		return nil, fmt.Errorf("creating schema in %s: %w", path, err)
	}

	for name, value := range cfg.metadata {
		if _, err = db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", name, value); err != nil {
			return nil, fmt.Errorf("writing metadata %s: %w", name, err)
		}
	}

	stmt, err := db.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, err
	}

	cfg.logger.Debug("archive opened", "path", path)
	return &MBTiles{db: db, stmt: stmt, logger: cfg.logger}, nil
}

// WriteTile stores the encoded tile t. Empty data is skipped.
func (m *MBTiles) WriteTile(t maptile.Tile, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	row := (uint32(1) << uint32(t.Z)) - 1 - t.Y // XYZ -> TMS
	if _, err := m.stmt.Exec(int(t.Z), t.X, row, data); err != nil {
		return err
	}
	m.count++
	return nil
}

// ReadTile returns the stored tile t, or nil if it is not in the archive.
func (m *MBTiles) ReadTile(t maptile.Tile) ([]byte, error) {
	row := (uint32(1) << uint32(t.Z)) - 1 - t.Y

	var data []byte
	err := m.db.QueryRow("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		int(t.Z), t.X, row).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

// Metadata returns the metadata table.
func (m *MBTiles) Metadata() (map[string]string, error) {
	rows, err := m.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}
	return metadata, rows.Err()
}

// Close flushes and closes the file.
func (m *MBTiles) Close() error {
	m.logger.Debug("archive closed", "tiles", m.count)
	return errors.Join(m.stmt.Close(), m.db.Close())
}
