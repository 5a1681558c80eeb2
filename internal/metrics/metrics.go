// Package metrics holds the Prometheus collectors of the mosaic pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tilemosaic"

// Tile fetch outcomes.
const (
	TileOK     = "ok"
	TileAbsent = "absent"
	TileError  = "error"
)

// Collector groups the pipeline metrics.
type Collector struct {
	tileRequests   *prometheus.CounterVec
	tileDuration   prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	mosaics        *prometheus.CounterVec
	mosaicDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_requests_total",
			Help:      "Tile fetches by outcome.",
		}, []string{"result"}),
		tileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_fetch_duration_seconds",
			Help:      "Duration of a tile fetch including retries.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.6, 1, 3, 10, 60},
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_cache_lookups_total",
			Help:      "Tile cache lookups by result.",
		}, []string{"result"}),
		mosaics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mosaics_total",
			Help:      "Mosaic builds by result.",
		}, []string{"result"}),
		mosaicDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mosaic_duration_seconds",
			Help:      "Duration of a full mosaic build.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(c.tileRequests, c.tileDuration, c.cacheLookups, c.mosaics, c.mosaicDuration)
	}
	return c
}

// ObserveTile records one tile fetch.
func (c *Collector) ObserveTile(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.tileRequests.WithLabelValues(result).Inc()
	c.tileDuration.Observe(d.Seconds())
}

// ObserveCache records a cache hit or miss.
func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		c.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// ObserveMosaic records one mosaic build.
func (c *Collector) ObserveMosaic(err error, d time.Duration) {
	if c == nil {
		return
	}
	if err != nil {
		c.mosaics.WithLabelValues("failure").Inc()
	} else {
		c.mosaics.WithLabelValues("success").Inc()
	}
	c.mosaicDuration.Observe(d.Seconds())
}
