package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilemosaic/internal/fetch"
	"github.com/kiesman99/tilemosaic/internal/logging"
	"github.com/kiesman99/tilemosaic/internal/mosaic"
	"github.com/kiesman99/tilemosaic/internal/raster"
	"github.com/kiesman99/tilemosaic/internal/raster/gtiff"
	"github.com/kiesman99/tilemosaic/internal/stitch"
	"github.com/kiesman99/tilemosaic/pkg/tile"
)

// Version is reported by the server health check.
var Version = "dev"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tilemosaic",
	Short: "Stitch XYZ map tiles into a georeferenced image of any bounding box",
	Long: `tilemosaic downloads the XYZ tiles covering a bounding box, stitches them
together, crops the result to the exact box and writes a georeferenced
GeoTIFF (optionally reprojected and cloud optimized) or a PNG with world file.

Examples:
  # San Francisco from OpenStreetMap at zoom 12
  tilemosaic --bbox -122.5216,37.733,-122.3661,37.8095 --zoom 12 --source OpenStreetMap -o sf.tif

  # Pick the zoom level from a ground resolution of 10 m/px, reproject, write a COG
  tilemosaic --bbox -122.5216,37.733,-122.3661,37.8095 --resolution 10 --source Satellite --crs EPSG:4326 --cog -o sf.tif

  # Custom tile server, PNG with world file, keep the raw tiles
  tilemosaic --geojson area.geojson --zoom 14 --source 'https://tiles.example.com/{z}/{x}/{y}.png' -f png -w --archive tiles.mbtiles -o area.png

  # Start HTTP server
  tilemosaic serve --port 8080`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("bbox") == "" && viper.GetString("geojson") == "" {
			return cmd.Help()
		}
		return runMosaic(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tilemosaic.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	// Area
	rootCmd.Flags().String("bbox", "", "bounding box as 'west,south,east,north' in degrees")
	rootCmd.Flags().String("geojson", "", "GeoJSON file whose bounds are used as bounding box")
	addZoomFlags(rootCmd)

	// Source
	rootCmd.Flags().StringP("source", "s", "OpenStreetMap", "provider name or tile URL template with {z}, {x}, {y}")
	rootCmd.Flags().String("user-agent", fetch.DefaultUserAgent, "HTTP User-Agent header")
	rootCmd.Flags().StringToString("header", nil, "extra tile request header as K=V (repeatable)")
	rootCmd.Flags().Int("workers", fetch.DefaultWorkers, "concurrent tile requests")
	rootCmd.Flags().Duration("timeout", fetch.DefaultTimeout, "timeout of a single tile request")
	rootCmd.Flags().Int("retries", fetch.DefaultAttempts, "attempts per tile on transport errors, 429 and 5xx")

	// Output
	rootCmd.Flags().StringP("output", "o", "", "output file (default: PNG on stdout)")
	rootCmd.Flags().StringP("format", "f", "geotiff", "output format (geotiff|png)")
	rootCmd.Flags().String("crs", "", "reproject to this CRS, e.g. EPSG:4326 (geotiff only)")
	rootCmd.Flags().Bool("cog", false, "write a cloud optimized GeoTIFF")
	rootCmd.Flags().BoolP("worldfile", "w", false, "write world file")
	rootCmd.Flags().String("archive", "", "MBTiles file receiving the raw tiles")
	rootCmd.Flags().BoolP("quiet", "q", false, "hide the progress bar")

	for _, name := range []string{
		"bbox", "geojson", "source", "user-agent", "workers", "timeout", "retries",
		"output", "format", "crs", "cog", "worldfile", "archive", "quiet",
		"zoom", "resolution",
	} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
}

// addZoomFlags registers the mutually exclusive --zoom and --resolution.
func addZoomFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("zoom", "z", 0, "zoom level")
	cmd.Flags().Float64P("resolution", "r", 0, "ground resolution in meters/pixel, picks the zoom level")
	cmd.MarkFlagsMutuallyExclusive("zoom", "resolution")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tilemosaic" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tilemosaic")
	}

	viper.SetEnvPrefix("tilemosaic")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// zoomFlags returns the zoom or resolution of a run. Flags given on the command line
// win; otherwise v supplies them from the config file or TILEMOSAIC_ZOOM and
// TILEMOSAIC_RESOLUTION.
func zoomFlags(cmd *cobra.Command, v *viper.Viper) (zoom *int, res *float64, err error) {
	flags := cmd.Flags()
	if !flags.Changed("zoom") && !flags.Changed("resolution") {
		if v.IsSet("zoom") {
			z := v.GetInt("zoom")
			zoom = &z
		}
		if v.IsSet("resolution") {
			r := v.GetFloat64("resolution")
			res = &r
		}
		return zoom, res, nil
	}

	if flags.Changed("zoom") {
		z, err := flags.GetInt("zoom")
		if err != nil {
			return nil, nil, err
		}
		zoom = &z
	}
	if flags.Changed("resolution") {
		r, err := flags.GetFloat64("resolution")
		if err != nil {
			return nil, nil, err
		}
		res = &r
	}
	return zoom, res, nil
}

// parseArea returns the bounding box from --bbox or --geojson.
func parseArea(bbox, geojson string) (tile.BoundingBox, error) {
	switch {
	case bbox != "" && geojson != "":
		return tile.BoundingBox{}, errors.New("specify either --bbox or --geojson, not both")
	case bbox != "":
		return tile.ParseBoundingBox(bbox)
	case geojson != "":
		data, err := os.ReadFile(geojson)
		if err != nil {
			return tile.BoundingBox{}, err
		}
		return tile.BoundingBoxFromGeoJSON(data)
	}
	return tile.BoundingBox{}, errors.New("a bounding box is required (use --bbox or --geojson)")
}

func runMosaic(cmd *cobra.Command, args []string) error {
	logger := logging.New(viper.GetString("log-level"), "text", cmd.ErrOrStderr())

	bbox, err := parseArea(viper.GetString("bbox"), viper.GetString("geojson"))
	if err != nil {
		return err
	}
	zoom, res, err := zoomFlags(cmd, viper.GetViper())
	if err != nil {
		return err
	}
	src, err := tile.ParseSource(viper.GetString("source"))
	if err != nil {
		return err
	}

	format := strings.ToLower(viper.GetString("format"))
	switch format {
	case "png", "geotiff":
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	fetchOpts := []fetch.Option{
		fetch.WithUserAgent(viper.GetString("user-agent")),
		fetch.WithTimeout(viper.GetDuration("timeout")),
		fetch.WithAttempts(viper.GetInt("retries")),
	}
	headers, err := cmd.Flags().GetStringToString("header")
	if err != nil {
		return err
	}
	if len(headers) > 0 {
		fetchOpts = append(fetchOpts, fetch.WithHeaders(headers))
	}

	var geotiff raster.Writer
	if format == "geotiff" {
		geotiff = gtiff.NewWriter(logger)
	}

	stitcher := stitch.NewStitcher(geotiff, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	_, err = stitcher.Stitch(cmd.Context(), &stitch.Options{
		Request: mosaic.Request{
			BBox:       bbox,
			Zoom:       zoom,
			Resolution: res,
			Source:     src,
			Output:     viper.GetString("output"),
			CRS:        viper.GetString("crs"),
			COG:        viper.GetBool("cog"),
			WorldFile:  viper.GetBool("worldfile"),
		},
		Format:       format,
		Workers:      viper.GetInt("workers"),
		FetchOptions: fetchOpts,
		Archive:      viper.GetString("archive"),
		Quiet:        viper.GetBool("quiet"),
	})
	return err
}
