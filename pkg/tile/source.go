package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// Provider identifies a built-in tile source. Custom marks a caller supplied template.
type Provider int

const (
	Custom Provider = iota
	OpenStreetMap
	GoogleRoadmap
	GoogleSatellite
	GoogleTerrain
	GoogleHybrid
	EsriWorldImagery
	EsriWorldTopo
	OpenTopoMap
)

var providerNames = map[Provider]string{
	Custom:           "Custom",
	OpenStreetMap:    "OpenStreetMap",
	GoogleRoadmap:    "Roadmap",
	GoogleSatellite:  "Satellite",
	GoogleTerrain:    "Terrain",
	GoogleHybrid:     "Hybrid",
	EsriWorldImagery: "Esri.WorldImagery",
	EsriWorldTopo:    "Esri.WorldTopoMap",
	OpenTopoMap:      "OpenTopoMap",
}

func (p Provider) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Provider(%d)", int(p))
}

// template returns the URL template of a built-in provider.
func (p Provider) template() (string, bool) {
	switch p {
	case OpenStreetMap:
		return "https://tile.openstreetmap.org/{z}/{x}/{y}.png", true
	case GoogleRoadmap:
		return "https://mt1.google.com/vt/lyrs=m&x={x}&y={y}&z={z}", true
	case GoogleSatellite:
		return "https://mt1.google.com/vt/lyrs=s&x={x}&y={y}&z={z}", true
	case GoogleTerrain:
		return "https://mt1.google.com/vt/lyrs=p&x={x}&y={y}&z={z}", true
	case GoogleHybrid:
		return "https://mt1.google.com/vt/lyrs=y&x={x}&y={y}&z={z}", true
	case EsriWorldImagery:
		return "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}", true
	case EsriWorldTopo:
		return "https://server.arcgisonline.com/ArcGIS/rest/services/World_Topo_Map/MapServer/tile/{z}/{y}/{x}", true
	case OpenTopoMap:
		return "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png", true
	}
	return "", false
}

// Source is a resolved tile source: a built-in provider or a custom URL template.
type Source struct {
	provider Provider
	template string
}

// NamedSource returns the source for a built-in provider.
func NamedSource(p Provider) (Source, error) {
	tmpl, ok := p.template()
	if !ok {
		return Source{}, fmt.Errorf("%w: %v", ErrUnknownProvider, p)
	}
	return Source{provider: p, template: tmpl}, nil
}

// CustomSource returns a source for a raw {z}/{x}/{y} URL template.
func CustomSource(template string) (Source, error) {
	if err := ValidateTemplate(template); err != nil {
		return Source{}, err
	}
	return Source{provider: Custom, template: template}, nil
}

// ParseSource resolves a provider name (case-insensitive) or a URL template.
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{}, fmt.Errorf("%w: empty source", ErrUnknownProvider)
	}
	for p, name := range providerNames {
		if p != Custom && strings.EqualFold(name, s) {
			return NamedSource(p)
		}
	}
	if strings.Contains(s, "{") {
		return CustomSource(s)
	}
	return Source{}, fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// ValidateTemplate checks that a template carries the {z}, {x} and {y} placeholders.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, "{z}") || !strings.Contains(template, "{x}") {
		return fmt.Errorf("%w: %q must contain {z}, {x} and {y}", ErrInvalidTemplate, template)
	}
	if !strings.Contains(template, "{y}") && !strings.Contains(template, "{-y}") {
		return fmt.Errorf("%w: %q must contain {z}, {x} and {y}", ErrInvalidTemplate, template)
	}
	return nil
}

// Provider returns the built-in provider, or Custom.
func (s Source) Provider() Provider { return s.provider }

// Template returns the URL template.
func (s Source) Template() string { return s.template }

// IsZero reports whether s was never resolved.
func (s Source) IsZero() bool { return s.template == "" }

func (s Source) String() string {
	if s.provider == Custom {
		return s.template
	}
	return s.provider.String()
}

// URL returns the request URL for one tile.
func (s Source) URL(t maptile.Tile) string {
	return BuildURL(s.template, int(t.Z), t.X, t.Y)
}

// BuildURL replaces URL template tokens
func BuildURL(template string, zoom int, x, y uint32) string {
	url := template
	url = strings.ReplaceAll(url, "{z}", strconv.Itoa(zoom))
	url = strings.ReplaceAll(url, "{x}", strconv.FormatUint(uint64(x), 10))
	url = strings.ReplaceAll(url, "{y}", strconv.FormatUint(uint64(y), 10))
	if strings.Contains(url, "{-y}") {
		// TMS row numbering counts from the south
		tms := (uint64(1) << uint(zoom)) - 1 - uint64(y)
		url = strings.ReplaceAll(url, "{-y}", strconv.FormatUint(tms, 10))
	}
	if strings.Contains(url, "{s}") {
		subdomain := string(rune('a' + (x+y)%3))
		url = strings.ReplaceAll(url, "{s}", subdomain)
	}
	return url
}

// ProviderInfo describes a built-in provider.
type ProviderInfo struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// Providers lists the built-in providers in declaration order.
func Providers() []ProviderInfo {
	var out []ProviderInfo
	for p := OpenStreetMap; p <= OpenTopoMap; p++ {
		tmpl, _ := p.template()
		out = append(out, ProviderInfo{Name: p.String(), Template: tmpl})
	}
	return out
}
