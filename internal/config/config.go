// Package config loads the server settings from TILEMOSAIC_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every variable read by Load.
const EnvPrefix = "TILEMOSAIC_"

// Server holds the configuration of `tilemosaic serve`. Command line flags override it.
type Server struct {
	Bind    string        `env:"BIND" envDefault:"localhost"`
	Port    int           `env:"PORT" envDefault:"8080"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"2m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Workers     int           `env:"WORKERS" envDefault:"5"`
	TileTimeout time.Duration `env:"TILE_TIMEOUT" envDefault:"60s"`
	Retries     int           `env:"RETRIES" envDefault:"3"`
	UserAgent   string        `env:"USER_AGENT"`

	CacheMaxSize int64         `env:"CACHE_MAX_SIZE" envDefault:"4096"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"10m"`

	// MaxPixels bounds the size of a single mosaic.
	MaxPixels int64 `env:"MAX_PIXELS" envDefault:"100000000"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads the server configuration from the process environment.
func Load() (Server, error) {
	return load(env.Options{Prefix: EnvPrefix})
}

func load(opts env.Options) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Server{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Server{}, fmt.Errorf("%sPORT: %d out of range", EnvPrefix, cfg.Port)
	}
	if cfg.Workers <= 0 {
		return Server{}, fmt.Errorf("%sWORKERS must be positive", EnvPrefix)
	}
	return cfg, nil
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}
