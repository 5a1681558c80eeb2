package tile

import (
	"errors"
	"testing"

	"github.com/paulmach/orb/maptile"
)

func TestBuildURL(t *testing.T) {
	testCases := []struct {
		template string
		want     string
	}{
		{"https://tile.openstreetmap.org/{z}/{x}/{y}.png", "https://tile.openstreetmap.org/3/2/5.png"},
		{"https://{s}.tile.example.com/{z}/{x}/{y}.png", "https://b.tile.example.com/3/2/5.png"},
		{"https://tms.example.com/{z}/{x}/{-y}.png", "https://tms.example.com/3/2/2.png"},
		{"https://mt1.google.com/vt/lyrs=s&x={x}&y={y}&z={z}", "https://mt1.google.com/vt/lyrs=s&x=2&y=5&z=3"},
	}

	for _, tc := range testCases {
		if got := BuildURL(tc.template, 3, 2, 5); got != tc.want {
			t.Errorf("BuildURL(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("openstreetmap")
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	if s.Provider() != OpenStreetMap {
		t.Errorf("provider = %v, want OpenStreetMap", s.Provider())
	}
	if got := s.URL(maptile.New(1, 2, 3)); got != "https://tile.openstreetmap.org/3/1/2.png" {
		t.Errorf("URL = %q", got)
	}

	s, err = ParseSource("SATELLITE")
	if err != nil || s.Provider() != GoogleSatellite {
		t.Errorf("SATELLITE resolved to %v, %v", s, err)
	}

	s, err = ParseSource("http://localhost:9000/{z}/{x}/{y}.png")
	if err != nil {
		t.Fatalf("custom template failed: %v", err)
	}
	if s.Provider() != Custom || s.String() != "http://localhost:9000/{z}/{x}/{y}.png" {
		t.Errorf("custom source = %v (%v)", s, s.Provider())
	}

	if _, err := ParseSource("NoSuchProvider"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider error = %v", err)
	}
	if _, err := ParseSource("http://example.com/{z}/tile.png"); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("bad template error = %v", err)
	}
	if _, err := NamedSource(Custom); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("NamedSource(Custom) error = %v", err)
	}
}

func TestProviders(t *testing.T) {
	providers := Providers()
	if len(providers) != int(OpenTopoMap) {
		t.Fatalf("got %d providers", len(providers))
	}
	for _, p := range providers {
		if err := ValidateTemplate(p.Template); err != nil {
			t.Errorf("provider %s: %v", p.Name, err)
		}
		if _, err := ParseSource(p.Name); err != nil {
			t.Errorf("provider %s does not parse: %v", p.Name, err)
		}
	}
}
