// Package api defines the wire types and routes of the tilemosaic HTTP API.
package api

import "time"

// HealthStatus values.
const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// OutputFormat values.
const (
	Geotiff OutputFormat = "geotiff"
	Png     OutputFormat = "png"
)

// Error codes of ErrorResponse.
const (
	INVALIDJSON       = "INVALID_JSON"
	VALIDATIONERROR   = "VALIDATION_ERROR"
	TILESERVERERROR   = "TILE_SERVER_ERROR"
	TILESERVERTIMEOUT = "TILE_SERVER_TIMEOUT"
	NOTILES           = "NO_TILES"
	INTERNALERROR     = "INTERNAL_ERROR"
)

// HealthStatus defines model for HealthResponse.Status.
type HealthStatus string

// OutputFormat defines model for MosaicRequest.Format.
type OutputFormat string

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`

	// Uptime in seconds.
	Uptime  *int    `json:"uptime,omitempty"`
	Version *string `json:"version,omitempty"`
}

// Provider defines model for Provider.
type Provider struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// ProvidersResponse defines model for ProvidersResponse.
type ProvidersResponse struct {
	Providers []Provider `json:"providers"`
}

// MosaicRequest defines model for MosaicRequest.
type MosaicRequest struct {
	// Bbox is [west, south, east, north] in EPSG:4326 degrees.
	Bbox []float64 `json:"bbox"`

	// Exactly one of Zoom and Resolution (meters/pixel) is required.
	Zoom       *int     `json:"zoom,omitempty"`
	Resolution *float64 `json:"resolution,omitempty"`

	// Source is a provider name or a URL template with {z}, {x} and {y}.
	Source string `json:"source"`

	// Crs is the target reference system, EPSG:3857 when omitted.
	Crs     *string            `json:"crs,omitempty"`
	Cog     *bool              `json:"cog,omitempty"`
	Format  *OutputFormat      `json:"format,omitempty"`
	Headers *map[string]string `json:"headers,omitempty"`
}

// GetGridParams defines parameters for GetGrid.
type GetGridParams struct {
	// Bbox is "west,south,east,north".
	Bbox       string   `form:"bbox" json:"bbox"`
	Zoom       *int     `form:"zoom,omitempty" json:"zoom,omitempty"`
	Resolution *float64 `form:"resolution,omitempty" json:"resolution,omitempty"`
}

// GridResponse defines model for GridResponse.
type GridResponse struct {
	Bbox       []float64 `json:"bbox"`
	Zoom       int       `json:"zoom"`
	Resolution float64   `json:"resolution"`

	// Inclusive tile ranges.
	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`
	MinY int `json:"min_y"`
	MaxY int `json:"max_y"`

	Tiles int `json:"tiles"`

	// Width and Height of the cropped mosaic in pixels for 256px tiles.
	Width  int `json:"width"`
	Height int `json:"height"`

	GeoTransform []float64 `json:"geotransform"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
	Details   *map[string]interface{} `json:"details,omitempty"`
}

// ValidationError defines model for one entry of ValidationErrorResponse.
type ValidationError struct {
	Code    *string `json:"code,omitempty"`
	Field   string  `json:"field"`
	Message string  `json:"message"`
}

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	RequestId        *string           `json:"request_id,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors"`
}

// TileErrorResponse defines model for TileErrorResponse.
type TileErrorResponse struct {
	Error      string  `json:"error"`
	Message    string  `json:"message"`
	Tile       string  `json:"tile"`
	Url        string  `json:"url"`
	StatusCode *int    `json:"status_code,omitempty"`
	RequestId  *string `json:"request_id,omitempty"`
}
