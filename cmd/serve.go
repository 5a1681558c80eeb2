package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kiesman99/tilemosaic/internal/api"
	"github.com/kiesman99/tilemosaic/internal/config"
	"github.com/kiesman99/tilemosaic/internal/fetch"
	"github.com/kiesman99/tilemosaic/internal/logging"
	"github.com/kiesman99/tilemosaic/internal/metrics"
	"github.com/kiesman99/tilemosaic/internal/raster/gtiff"
	"github.com/kiesman99/tilemosaic/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the mosaic API",
	Long: `Start an HTTP server that provides a REST API for tile mosaics.

Settings are read from TILEMOSAIC_* environment variables (TILEMOSAIC_PORT,
TILEMOSAIC_CACHE_MAX_SIZE, ...); flags override them.

Examples:
  # Start server on default port 8080
  tilemosaic serve

  # Start server on custom port
  tilemosaic serve --port 3000

  # Start server with custom bind address
  tilemosaic serve --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 2*time.Minute, "request timeout, tile fetching included")
	serveCmd.Flags().Int("workers", fetch.DefaultWorkers, "concurrent tile requests per mosaic")
	serveCmd.Flags().Int64("cache-size", 4096, "tiles kept in the shared cache, 0 disables it")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.Bind, _ = flags.GetString("bind")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("cache-size") {
		cfg.CacheMaxSize, _ = flags.GetInt64("cache-size")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.TileTimeout),
		fetch.WithAttempts(cfg.Retries),
	}
	if cfg.UserAgent != "" {
		fetchOpts = append(fetchOpts, fetch.WithUserAgent(cfg.UserAgent))
	}

	opts := []server.Option{
		server.WithWriter(api.Geotiff, gtiff.NewWriter(logger)),
		server.WithFetchOptions(fetchOpts...),
		server.WithWorkers(cfg.Workers),
		server.WithMaxPixels(cfg.MaxPixels),
		server.WithLogger(logger),
		server.WithMetrics(m),
	}
	if cfg.CacheMaxSize > 0 {
		cache := fetch.NewCache(cfg.CacheMaxSize, cfg.CacheTTL, m)
		defer cache.Close()
		opts = append(opts, server.WithCache(cache))
	}

	apiServer := server.NewServer(Version, opts...)

	httpServer := &http.Server{
		Addr: cfg.Addr(),
		Handler: server.NewRouter(apiServer, server.RouterOptions{
			Timeout:     cfg.Timeout,
			CORSOrigins: cfg.CORSOrigins,
			Gatherer:    reg,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Timeout + 10*time.Second,
	}

	// Graceful shutdown
	ctx := cmd.Context()
	go func() {
		<-ctx.Done()

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("starting tilemosaic server",
		"addr", cfg.Addr(),
		"health", fmt.Sprintf("http://%s/api/v1/health", cfg.Addr()),
		"mosaic", fmt.Sprintf("http://%s/api/v1/mosaic", cfg.Addr()),
		"metrics", fmt.Sprintf("http://%s/metrics", cfg.Addr()))

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
