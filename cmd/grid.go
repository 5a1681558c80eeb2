package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilemosaic/internal/mosaic"
	"github.com/kiesman99/tilemosaic/internal/raster"
	"github.com/kiesman99/tilemosaic/pkg/tile"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Show the tiles and raster size of a mosaic without downloading anything",
	Long: `Show the tile ranges, the size of the cropped raster and its geotransform
for a bounding box at a zoom level or ground resolution.

Examples:
  tilemosaic grid --bbox -122.5,37.7,-122.3,37.8 --zoom 10
  tilemosaic grid --geojson area.geojson --resolution 10`,
	RunE: runGrid,
}

func init() {
	rootCmd.AddCommand(gridCmd)

	gridCmd.Flags().String("bbox", "", "bounding box as 'west,south,east,north' in degrees")
	gridCmd.Flags().String("geojson", "", "GeoJSON file whose bounds are used as bounding box")
	addZoomFlags(gridCmd)
}

func runGrid(cmd *cobra.Command, args []string) error {
	bboxFlag, _ := cmd.Flags().GetString("bbox")
	geojsonFlag, _ := cmd.Flags().GetString("geojson")
	bbox, err := parseArea(bboxFlag, geojsonFlag)
	if err != nil {
		return err
	}
	zoom, res, err := zoomFlags(cmd, viper.GetViper())
	if err != nil {
		return err
	}

	grid, z, r, err := mosaic.Plan(mosaic.Request{BBox: bbox, Zoom: zoom, Resolution: res})
	if err != nil {
		return err
	}
	_, _, width, height := grid.PixelWindow(tile.DefaultTileSize, tile.DefaultTileSize)
	gt := raster.NewGeoTransform(bbox, max(width, 1), max(height, 1))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bounding Box: %s\n", bbox)
	fmt.Fprintf(out, "Zoom Level:   %d (%.6f m/px)\n", z, r)
	fmt.Fprintf(out, "Tiles X:      %d-%d\n", grid.X0, grid.X1-1)
	fmt.Fprintf(out, "Tiles Y:      %d-%d\n", grid.Y0, grid.Y1-1)
	fmt.Fprintf(out, "Tile Count:   %d\n", grid.Len())
	fmt.Fprintf(out, "Raster Size:  %dx%d\n", width, height)
	fmt.Fprintf(out, "GeoTransform: %.6f, %.6f, %g, %.6f, %g, %.6f\n", gt[0], gt[1], gt[2], gt[3], gt[4], gt[5])
	return nil
}
