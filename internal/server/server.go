package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiesman99/tilemosaic/internal/api"
	"github.com/kiesman99/tilemosaic/internal/fetch"
	"github.com/kiesman99/tilemosaic/internal/metrics"
	"github.com/kiesman99/tilemosaic/internal/mosaic"
	"github.com/kiesman99/tilemosaic/internal/raster"
	"github.com/kiesman99/tilemosaic/pkg/tile"
)

// DefaultMaxPixels bounds the cropped size of a single mosaic.
const DefaultMaxPixels = 10000 * 10000

// Server implements api.ServerInterface.
type Server struct {
	startTime time.Time
	version   string

	writers      map[api.OutputFormat]raster.Writer
	fetchOptions []fetch.Option
	cache        *fetch.Cache
	workers      int
	maxPixels    int64
	logger       *slog.Logger
	metrics      *metrics.Collector
}

// Option configures a Server.
type Option func(*Server)

// WithWriter serves format through w. PNG is always available.
func WithWriter(format api.OutputFormat, w raster.Writer) Option {
	return func(s *Server) { s.writers[format] = w }
}

// WithFetchOptions applies opts to every tile fetcher.
func WithFetchOptions(opts ...fetch.Option) Option {
	return func(s *Server) { s.fetchOptions = append(s.fetchOptions, opts...) }
}

// WithCache shares fetched tiles across requests.
func WithCache(c *fetch.Cache) Option {
	return func(s *Server) { s.cache = c }
}

func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

func WithMaxPixels(n int64) Option {
	return func(s *Server) { s.maxPixels = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new server instance
func NewServer(version string, opts ...Option) *Server {
	s := &Server{
		startTime: time.Now(),
		version:   version,
		writers:   map[api.OutputFormat]raster.Writer{api.Png: raster.PNGWriter{}},
		workers:   fetch.DefaultWorkers,
		maxPixels: DefaultMaxPixels,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	})
}

// ListProviders lists the built-in tile providers.
func (s *Server) ListProviders(w http.ResponseWriter, r *http.Request) {
	var resp api.ProvidersResponse
	for _, p := range tile.Providers() {
		resp.Providers = append(resp.Providers, api.Provider{Name: p.Name, Template: p.Template})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetGrid reports the tile grid and output size of a mosaic without fetching anything.
func (s *Server) GetGrid(w http.ResponseWriter, r *http.Request, params api.GetGridParams) {
	requestID := requestIDFrom(r)

	bbox, err := tile.ParseBoundingBox(params.Bbox)
	if err != nil {
		s.writeValidationErrorResponse(w, &requestID, validationFailure{field: "bbox", err: err})
		return
	}

	grid, zoom, res, err := mosaic.Plan(mosaic.Request{BBox: bbox, Zoom: params.Zoom, Resolution: params.Resolution})
	if err != nil {
		s.writeValidationErrorResponse(w, &requestID, validationFailure{field: fieldOf(err), err: err})
		return
	}

	_, _, width, height := grid.PixelWindow(tile.DefaultTileSize, tile.DefaultTileSize)
	width, height = max(width, 1), max(height, 1)
	gt := raster.NewGeoTransform(bbox, width, height)

	s.writeJSON(w, http.StatusOK, api.GridResponse{
		Bbox:         bbox.Slice(),
		Zoom:         zoom,
		Resolution:   res,
		MinX:         grid.X0,
		MaxX:         grid.X1 - 1,
		MinY:         grid.Y0,
		MaxY:         grid.Y1 - 1,
		Tiles:        grid.Len(),
		Width:        width,
		Height:       height,
		GeoTransform: gt[:],
	})
}

// CreateMosaic implements the main mosaic endpoint
func (s *Server) CreateMosaic(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req api.MosaicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, api.INVALIDJSON,
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	mreq, format, err := s.convertToMosaicRequest(&req)
	if err != nil {
		var failure validationFailure
		errors.As(err, &failure)
		s.writeValidationErrorResponse(w, &requestID, failure)
		return
	}

	dir, err := os.MkdirTemp("", "tilemosaic-")
	if err != nil {
		s.handleMosaicError(w, r, err, &requestID)
		return
	}
	defer os.RemoveAll(dir)

	ext := ".tif"
	if format == api.Png {
		ext = ".png"
	}
	mreq.Output = filepath.Join(dir, "mosaic"+ext)

	var headers map[string]string
	if req.Headers != nil {
		headers = *req.Headers
		s.logger.Debug("custom tile headers", "request_id", requestID, "headers", headerList(headers))
	}
	builder := mosaic.NewBuilder(s.fetchers(headers), s.writers[format],
		mosaic.WithWorkers(s.workers),
		mosaic.WithLogger(s.logger.With("request_id", requestID)),
		mosaic.WithMetrics(s.metrics))

	result, err := builder.Build(r.Context(), mreq)
	if err != nil {
		s.handleMosaicError(w, r, err, &requestID)
		return
	}

	data, err := os.ReadFile(result.Output)
	if err != nil {
		s.handleMosaicError(w, r, err, &requestID)
		return
	}

	switch format {
	case api.Png:
		w.Header().Set("Content-Type", "image/png")
	case api.Geotiff:
		w.Header().Set("Content-Type", "image/tiff")
	}
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Mosaic-Zoom", strconv.Itoa(result.Zoom))
	w.Header().Set("X-Mosaic-Resolution", strconv.FormatFloat(result.Resolution, 'f', -1, 64))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("writing response", "request_id", requestID, "error", err)
	}
}

// fetchers builds one HTTP fetcher per source. Requests with their own headers bypass
// the shared cache since the headers may change the tiles served.
func (s *Server) fetchers(headers map[string]string) mosaic.FetcherFactory {
	return func(src tile.Source) fetch.Fetcher {
		opts := append([]fetch.Option{
			fetch.WithLogger(s.logger),
			fetch.WithMetrics(s.metrics),
		}, s.fetchOptions...)
		if len(headers) > 0 {
			opts = append(opts, fetch.WithHeaders(headers))
		}

		f := fetch.NewHTTPFetcher(src, opts...)
		if s.cache == nil || len(headers) > 0 {
			return f
		}
		return s.cache.Wrap(f, src.Template())
	}
}

type validationFailure struct {
	field string
	err   error
}

func (v validationFailure) Error() string {
	return fmt.Sprintf("%s: %v", v.field, v.err)
}

func (v validationFailure) Unwrap() error {
	return v.err
}

// convertToMosaicRequest validates the API request and converts it to a pipeline request.
func (s *Server) convertToMosaicRequest(req *api.MosaicRequest) (mosaic.Request, api.OutputFormat, error) {
	var out mosaic.Request

	bbox, err := tile.FromSlice(req.Bbox)
	if err != nil {
		return out, "", validationFailure{field: "bbox", err: err}
	}
	out.BBox = bbox
	out.Zoom = req.Zoom
	out.Resolution = req.Resolution

	format := api.Geotiff
	if req.Format != nil {
		format = *req.Format
	}
	if format != api.Geotiff && format != api.Png {
		return out, "", validationFailure{field: "format", err: fmt.Errorf("unknown format %q", format)}
	}
	if _, ok := s.writers[format]; !ok {
		return out, "", validationFailure{field: "format", err: fmt.Errorf("%s output is not available on this server", format)}
	}

	if req.Source == "" {
		return out, "", validationFailure{field: "source", err: mosaic.ErrNoSource}
	}
	src, err := tile.ParseSource(req.Source)
	if err != nil {
		return out, "", validationFailure{field: "source", err: err}
	}
	out.Source = src

	if req.Crs != nil {
		out.CRS = *req.Crs
	}
	if req.Cog != nil {
		out.COG = *req.Cog
	}
	if format == api.Png && (out.COG || !raster.NativeCRS(out.CRS)) {
		return out, "", validationFailure{field: "format", err: errors.New("png output supports neither reprojection nor COG")}
	}

	grid, _, _, err := mosaic.Plan(out)
	if err != nil {
		return out, "", validationFailure{field: fieldOf(err), err: err}
	}
	_, _, width, height := grid.PixelWindow(tile.DefaultTileSize, tile.DefaultTileSize)
	if int64(width)*int64(height) > s.maxPixels {
		return out, "", validationFailure{field: "bbox", err: fmt.Errorf("mosaic of %dx%d pixels exceeds the limit of %d", width, height, s.maxPixels)}
	}

	return out, format, nil
}

func fieldOf(err error) string {
	switch {
	case errors.Is(err, tile.ErrInvalidBBox), errors.Is(err, tile.ErrEmptyGrid):
		return "bbox"
	case errors.Is(err, tile.ErrInvalidResolution):
		return "resolution"
	case errors.Is(err, tile.ErrInvalidZoom):
		return "zoom"
	}
	return "zoom,resolution"
}

// handleMosaicError maps pipeline errors to API error responses
func (s *Server) handleMosaicError(w http.ResponseWriter, r *http.Request, err error, requestID *string) {
	var (
		tileErr   *fetch.TileError
		decodeErr *mosaic.DecodeError
		netErr    net.Error
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, api.TILESERVERTIMEOUT,
			"Tile server requests timed out", requestID, nil)

	case errors.As(err, &tileErr):
		response := api.TileErrorResponse{
			Error:     api.TILESERVERERROR,
			Message:   tileErr.Error(),
			Tile:      fmt.Sprintf("%d/%d/%d", tileErr.Tile.Z, tileErr.Tile.X, tileErr.Tile.Y),
			Url:       tileErr.URL,
			RequestId: requestID,
		}
		if tileErr.StatusCode != 0 {
			response.StatusCode = &tileErr.StatusCode
		}
		s.writeJSON(w, http.StatusBadGateway, response)

	case errors.As(err, &decodeErr), errors.Is(err, mosaic.ErrTileSize):
		s.writeErrorResponse(w, http.StatusBadGateway, api.TILESERVERERROR, err.Error(), requestID, nil)

	case errors.Is(err, mosaic.ErrNoTiles):
		s.writeErrorResponse(w, http.StatusBadGateway, api.NOTILES,
			"The tile server returned no tiles for this area", requestID, nil)

	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// the client is gone, nobody reads a response
		s.logger.Info("request canceled", "request_id", *requestID)

	default:
		s.logger.Error("mosaic failed", "request_id", *requestID, "path", r.URL.Path, "error", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR,
			"Internal server error", requestID, nil)
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}
	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, requestID *string, failure validationFailure) {
	field := failure.field
	if field == "" {
		field = "request"
	}
	message := "invalid request"
	if failure.err != nil {
		message = failure.err.Error()
	}

	s.writeJSON(w, http.StatusBadRequest, api.ValidationErrorResponse{
		Error:            api.VALIDATIONERROR,
		Message:          message,
		RequestId:        requestID,
		ValidationErrors: []api.ValidationError{{Field: field, Message: message}},
	})
}

// InvalidParams answers query parameters the router could not bind.
func (s *Server) InvalidParams(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestIDFrom(r)
	field := "request"
	var paramErr *api.InvalidParamFormatError
	if errors.As(err, &paramErr) {
		field = paramErr.ParamName
	}
	s.writeValidationErrorResponse(w, &requestID, validationFailure{field: field, err: err})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

// requestIDFrom returns chi's request id, or generates one outside the middleware stack.
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}

// headerList renders headers for logging without their values.
func headerList(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
