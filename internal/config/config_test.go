package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	if err != nil {
		t.Fatal(err)
	}

	want := Server{
		Bind:         "localhost",
		Port:         8080,
		Timeout:      2 * time.Minute,
		LogLevel:     "INFO",
		LogFormat:    "json",
		Workers:      5,
		TileTimeout:  time.Minute,
		Retries:      3,
		CacheMaxSize: 4096,
		CacheTTL:     10 * time.Minute,
		MaxPixels:    100000000,
		CORSOrigins:  []string{"*"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Addr(); got != "localhost:8080" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoad_Environment(t *testing.T) {
	cfg, err := load(env.Options{Prefix: EnvPrefix, Environment: map[string]string{
		"TILEMOSAIC_BIND":         "0.0.0.0",
		"TILEMOSAIC_PORT":         "9000",
		"TILEMOSAIC_CACHE_TTL":    "30s",
		"TILEMOSAIC_CORS_ORIGINS": "https://a.example,https://b.example",
		"PORT":                    "1",
	}})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr() != "0.0.0.0:9000" {
		t.Errorf("Addr() = %q, want 0.0.0.0:9000", cfg.Addr())
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	for name, environ := range map[string]map[string]string{
		"port range":   {"TILEMOSAIC_PORT": "70000"},
		"port syntax":  {"TILEMOSAIC_PORT": "http"},
		"workers":      {"TILEMOSAIC_WORKERS": "0"},
		"bad duration": {"TILEMOSAIC_TIMEOUT": "soon"},
	} {
		if _, err := load(env.Options{Prefix: EnvPrefix, Environment: environ}); err == nil {
			t.Errorf("%s: load succeeded", name)
		}
	}
}
