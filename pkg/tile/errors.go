package tile

import "errors"

// Input validation errors. They are reported before any network activity and are
// never retried.
var (
	ErrInvalidBBox       = errors.New("invalid bounding box")
	ErrZoomResolution    = errors.New("exactly one of zoom or resolution must be given")
	ErrInvalidZoom       = errors.New("invalid zoom level")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrEmptyGrid         = errors.New("bounding box covers no tiles")
	ErrUnknownProvider   = errors.New("unknown tile provider")
	ErrInvalidTemplate   = errors.New("invalid tile URL template")
)
