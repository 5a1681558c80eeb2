package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveTile(TileOK, 10*time.Millisecond)
	c.ObserveTile(TileOK, 20*time.Millisecond)
	c.ObserveTile(TileAbsent, time.Millisecond)
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.ObserveMosaic(nil, time.Second)
	c.ObserveMosaic(errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(c.tileRequests.WithLabelValues(TileOK)); got != 2 {
		t.Errorf("ok tiles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.tileRequests.WithLabelValues(TileAbsent)); got != 1 {
		t.Errorf("absent tiles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.mosaics.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed mosaics = %v, want 1", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("nothing registered")
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveTile(TileError, time.Second)
	c.ObserveCache(true)
	c.ObserveMosaic(nil, time.Second)
}
