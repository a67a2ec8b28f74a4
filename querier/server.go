// server.go
package querier

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/parqplot/parqplot/core"
)

// Server wires the downsampling pipeline to the HTTP surface. It holds
// the shared engine handle, the per-file caches and configuration, and
// is passed into every handler instead of living as process globals.
type Server struct {
	Engine           core.Engine
	Catalog          *Catalog
	Schema           *SchemaInspector
	Ranges           *TimeRangeResolver
	Downsampler      *Downsampler
	DefaultMaxPoints int
	DisableUI        bool
	UIFS             afero.Fs
}

// NewServer creates a server instance around an initialized engine.
func NewServer(engine core.Engine, dataDir, uiDir string, disableUI bool, defaultMaxPoints int) *Server {
	schema := NewSchemaInspector(engine)
	return &Server{
		Engine:           engine,
		Catalog:          NewCatalog(dataDir),
		Schema:           schema,
		Ranges:           NewTimeRangeResolver(engine, schema),
		Downsampler:      NewDownsampler(engine, schema),
		DefaultMaxPoints: defaultMaxPoints,
		DisableUI:        disableUI,
		UIFS:             afero.NewBasePathFs(afero.NewOsFs(), uiDir),
	}
}

// Routes registers the API routes and the static UI fallback.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.HandleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/files", s.HandleFiles).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/set_paths", s.HandleSetPaths).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/columns", s.HandleColumns).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/range", s.HandleRange).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/query", s.HandleQuery).Methods("POST", "OPTIONS")
	r.PathPrefix("/").HandlerFunc(s.HandleUI)
	return r
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	File             string   `json:"file"`
	TimeColumn       string   `json:"time_column"`
	ValueColumns     []string `json:"value_columns"`
	StartTime        *float64 `json:"start_time,omitempty"`
	EndTime          *float64 `json:"end_time,omitempty"`
	MaxPoints        *int     `json:"max_points,omitempty"`
	DownsampleMethod string   `json:"downsample_method,omitempty"`
}

// SetPathsRequest is the body of POST /api/set_paths.
type SetPathsRequest struct {
	Paths *[]string `json:"paths"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

var reqID int32

// addCORSHeaders adds CORS headers to the response
func addCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// preflight handles CORS setup and OPTIONS requests. Returns true when
// the request is already answered.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	addCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

func sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// sendErrorResponse sends an error response in JSON format
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// sendError maps an error to its HTTP status from the taxonomy.
func sendError(w http.ResponseWriter, err error) {
	sendErrorResponse(w, err.Error(), core.HTTPStatus(err))
}

// HandleHealth is the liveness probe.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	sendJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleFiles lists the exposed data files.
func (s *Server) HandleFiles(w http.ResponseWriter, r *http.Request) {
	ctx := core.WithDefaultLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt32(&reqID, 1)))
	if preflight(w, r) {
		return
	}

	files, err := s.Catalog.List()
	if err != nil {
		core.Errorf(ctx, "Failed to list files: %v", err)
		sendError(w, err)
		return
	}
	if files == nil {
		files = []FileInfo{}
	}
	sendJSON(w, map[string]interface{}{"files": files})
}

// HandleSetPaths configures which files and directories are exposed.
func (s *Server) HandleSetPaths(w http.ResponseWriter, r *http.Request) {
	ctx := core.WithDefaultLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt32(&reqID, 1)))
	if preflight(w, r) {
		return
	}

	var req SetPathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Paths == nil {
		sendErrorResponse(w, "Missing 'paths' array", http.StatusBadRequest)
		return
	}

	count := s.Catalog.SetPaths(*req.Paths)
	core.Infof(ctx, "Updated data search paths, %d entries", count)
	sendJSON(w, map[string]interface{}{"ok": true, "count": count})
}

// HandleColumns returns the classified schema of a file.
func (s *Server) HandleColumns(w http.ResponseWriter, r *http.Request) {
	ctx := core.WithDefaultLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt32(&reqID, 1)))
	if preflight(w, r) {
		return
	}

	file, err := s.Catalog.Resolve(r.URL.Query().Get("file"))
	if err != nil {
		sendError(w, err)
		return
	}

	columns, err := s.Schema.Describe(ctx, file)
	if err != nil {
		core.Errorf(ctx, "Failed to describe %s: %v", file, err)
		sendError(w, err)
		return
	}
	sendJSON(w, map[string]interface{}{"columns": columns})
}

// HandleRange resolves the time domain of a column.
func (s *Server) HandleRange(w http.ResponseWriter, r *http.Request) {
	ctx := core.WithDefaultLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt32(&reqID, 1)))
	if preflight(w, r) {
		return
	}

	file, err := s.Catalog.Resolve(r.URL.Query().Get("file"))
	if err != nil {
		sendError(w, err)
		return
	}
	timeColumn := r.URL.Query().Get("time_column")
	if timeColumn == "" {
		sendErrorResponse(w, "Missing 'time_column' parameter", http.StatusBadRequest)
		return
	}

	result, err := s.Ranges.Range(ctx, file, timeColumn)
	if err != nil {
		core.Errorf(ctx, "Failed to resolve range for %s.%s: %v", file, timeColumn, err)
		sendError(w, err)
		return
	}
	sendJSON(w, result)
}

// HandleQuery runs the downsampling pipeline.
func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := core.WithDefaultLogger(r.Context(), fmt.Sprintf("req-%d", atomic.AddInt32(&reqID, 1)))
	if preflight(w, r) {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	file, err := s.Catalog.Resolve(req.File)
	if err != nil {
		sendError(w, err)
		return
	}

	maxPoints := s.DefaultMaxPoints
	if req.MaxPoints != nil {
		maxPoints = *req.MaxPoints
	}
	method := req.DownsampleMethod
	if method == "" {
		method = MethodLTTB
	}

	start := time.Now()
	result, err := s.Downsampler.Downsample(ctx, &DownsampleRequest{
		File:         file,
		TimeColumn:   req.TimeColumn,
		ValueColumns: req.ValueColumns,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		MaxPoints:    maxPoints,
		Method:       method,
	})
	if err != nil {
		core.Errorf(ctx, "Downsample failed for %s: %v", file, err)
		sendError(w, err)
		return
	}
	core.Infof(ctx, "Downsampled %s: %d of %d points in %v",
		file, result.ReturnedPoints, result.TotalPoints, time.Since(start))
	sendJSON(w, result)
}

// HandleUI serves the static chart UI.
func (s *Server) HandleUI(w http.ResponseWriter, r *http.Request) {
	if s.DisableUI {
		http.NotFound(w, r)
		return
	}
	addCORSHeaders(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestedPath := r.URL.Path
	if requestedPath == "/" || requestedPath == "" {
		content, err := s.UIFS.Open("index.html")
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		defer content.Close()
		w.WriteHeader(http.StatusOK)
		io.Copy(w, content)
		return
	}

	if _, err := s.UIFS.Stat(path.Clean(requestedPath)); err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	http.FileServer(afero.NewHttpFs(s.UIFS)).ServeHTTP(w, r)
}

// Close releases the engine connection.
func (s *Server) Close() error {
	return s.Engine.Close()
}
