package api

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/containment"
	"github.com/banshee-data/datacleaner/internal/dataset"
	"github.com/banshee-data/datacleaner/internal/db"
	"github.com/banshee-data/datacleaner/internal/exclusion"
	"github.com/banshee-data/datacleaner/internal/export"
	"github.com/banshee-data/datacleaner/internal/geom"
	"github.com/banshee-data/datacleaner/internal/httputil"
	"github.com/banshee-data/datacleaner/internal/monitoring"
	"github.com/banshee-data/datacleaner/internal/render"
	"github.com/banshee-data/datacleaner/internal/security"
	"github.com/banshee-data/datacleaner/internal/session"
	"github.com/banshee-data/datacleaner/internal/timeutil"
	"github.com/banshee-data/datacleaner/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// MaxUploadBytes bounds the size of an uploaded data file.
const MaxUploadBytes = 256 << 20

// Server exposes one cleaning session over HTTP. Requests are serialised
// because the session is not safe for concurrent use.
type Server struct {
	mu     sync.Mutex
	sess   *session.Session
	cfg    *config.CleanerConfig
	loader dataset.Loader
	db     *db.DB

	// dataDir is where /api/dataset/open may read files from; empty
	// disables the route.
	dataDir string
}

// NewServer returns a server with an empty session. store may be nil, in
// which case exports are not recorded and /api/runs is unavailable.
func NewServer(cfg *config.CleanerConfig, store *db.DB, clock timeutil.Clock) *Server {
	return &Server{
		sess:   session.New(cfg, clock),
		cfg:    cfg,
		loader: session.Loader(cfg),
		db:     store,
	}
}

// LoadFile loads a data file into the session.
func (s *Server) LoadFile(path string) error {
	ds, err := s.loader.LoadFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Load(ds, filepath.Base(path))
	return nil
}

// SetDataDir allows clients to open data files below dir by relative name.
func (s *Server) SetDataDir(dir string) {
	s.dataDir = dir
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/dataset", s.uploadDataset)
	mux.HandleFunc("/api/dataset/open", s.openDataset)
	mux.HandleFunc("/api/axes", s.setAxes)
	mux.HandleFunc("/api/curve", s.curve)
	mux.HandleFunc("/api/curve/points", s.addPoint)
	mux.HandleFunc("/api/exclude", s.exclude)
	mux.HandleFunc("/api/export", s.exportRecords)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/chart", s.chart)
	mux.HandleFunc("/plot.png", s.plotPNG)
	return mux
}

var badRequestErrors = []error{
	session.ErrNoDataset,
	session.ErrNoReason,
	session.ErrInvalidReason,
	session.ErrNoTarget,
	containment.ErrTooFewPoints,
	containment.ErrCurveOpen,
	containment.ErrCurveClosed,
	exclusion.ErrNegativeBuffer,
	dataset.ErrUnsupportedName,
	dataset.ErrNoTimestamps,
	dataset.ErrLengthMismatch,
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, dataset.ErrUnknownSeries) {
		httputil.NotFound(w, err.Error())
		return
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	httputil.InternalServerError(w, err.Error())
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	httputil.WriteJSONOK(w, s.sess.State())
}

func (s *Server) uploadDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.tsv"
	}
	ds, err := s.loader.Load(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to load %s: %v", name, err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Load(ds, security.SanitizeFilename(name))
	httputil.WriteJSONOK(w, s.sess.State())
}

type openRequest struct {
	Path string `json:"path"`
}

func (s *Server) openDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.dataDir == "" {
		httputil.ServiceUnavailable(w, "no data directory configured")
		return
	}
	var req openRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	path, err := security.ResolveWithin(s.dataDir, req.Path)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ds, err := s.loader.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httputil.NotFound(w, fmt.Sprintf("no data file %s", req.Path))
			return
		}
		httputil.BadRequest(w, fmt.Sprintf("failed to load %s: %v", req.Path, err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Load(ds, filepath.Base(path))
	httputil.WriteJSONOK(w, s.sess.State())
}

type axesRequest struct {
	X        *int   `json:"x,omitempty"`
	Y        *int   `json:"y,omitempty"`
	XName    string `json:"x_name,omitempty"`
	YName    string `json:"y_name,omitempty"`
	ExcludeX *bool  `json:"exclude_x,omitempty"`
	ExcludeY *bool  `json:"exclude_y,omitempty"`
}

func (s *Server) setAxes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		httputil.MethodNotAllowed(w)
		return
	}
	var req axesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch {
	case req.XName != "" || req.YName != "":
		err = s.sess.SetAxesByName(req.XName, req.YName)
	case req.X != nil && req.Y != nil:
		err = s.sess.SetAxes(*req.X, *req.Y)
	case req.X != nil || req.Y != nil:
		httputil.BadRequest(w, "both x and y are required")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	ex, ey := s.sess.Targets()
	if req.ExcludeX != nil {
		ex = *req.ExcludeX
	}
	if req.ExcludeY != nil {
		ey = *req.ExcludeY
	}
	s.sess.SetTargets(ex, ey)
	httputil.WriteJSONOK(w, s.sess.State())
}

func (s *Server) curve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		defer s.mu.Unlock()
		httputil.WriteJSONOK(w, s.sess.Curve())
	case http.MethodPut:
		var c containment.Curve
		if err := httputil.DecodeJSON(r, &c); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sess.SetCurve(c)
		httputil.WriteJSONOK(w, s.sess.Curve())
	case http.MethodDelete:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sess.ClearCurve()
		httputil.WriteJSONOK(w, s.sess.Curve())
	default:
		httputil.MethodNotAllowed(w)
	}
}

type pointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type pointResponse struct {
	Closed bool              `json:"closed"`
	Curve  containment.Curve `json:"curve"`
}

func (s *Server) addPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req pointRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	closed, err := s.sess.AddPoint(geom.Pt(req.X, req.Y))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, pointResponse{Closed: closed, Curve: s.sess.Curve()})
}

type excludeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) exclude(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req excludeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.sess.Exclude(req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, res)
}

// exportName derives the download name from the loaded source file.
func exportName(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return security.SanitizeFilename(base) + "_exclusions.tsv"
}

func (s *Server) exportRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	buffer := s.cfg.GetTimeBuffer()
	if b := r.URL.Query().Get("buffer"); b != "" {
		d, err := time.ParseDuration(b)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid 'buffer' parameter: %v", err))
			return
		}
		buffer = d
	}

	s.mu.Lock()
	records, generated, err := s.sess.Records(buffer)
	source := s.sess.Source()
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	run := export.NewRun(source, buffer, generated, records)
	if s.db != nil {
		if err := (export.DB{Store: s.db}).Write(r.Context(), run); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to record export: %v", err))
			return
		}
	}

	var buf bytes.Buffer
	if err := (export.TSV{W: &buf}).Write(r.Context(), run); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to write export: %v", err))
		return
	}
	httputil.SetAttachment(w, exportName(source), "text/tab-separated-values")
	w.Header().Set("X-Run-ID", run.ID.String())
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Logf("failed to send export: %v", err)
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "no run database configured")
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		records, err := s.db.RunRecords(r.Context(), id)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve run %s: %v", id, err))
			return
		}
		if len(records) == 0 {
			httputil.NotFound(w, fmt.Sprintf("no records for run %s", id))
			return
		}
		httputil.WriteJSONOK(w, records)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

// scene snapshots what to draw. Excluded points are shown unless the
// request says excluded=false.
func (s *Server) scene(r *http.Request) (render.Scene, error) {
	show := true
	if v := r.URL.Query().Get("excluded"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return render.Scene{}, fmt.Errorf("invalid 'excluded' parameter: %w", err)
		}
		show = b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Scene(show)
}

func (s *Server) chart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sc, err := s.scene(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := render.HTML(&buf, sc); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Logf("failed to send chart: %v", err)
	}
}

func (s *Server) plotPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sc, err := s.scene(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := render.PNG(&buf, sc, 8*vg.Inch, 6*vg.Inch); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(buf.Bytes()); err != nil {
		monitoring.Logf("failed to send plot: %v", err)
	}
}
