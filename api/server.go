// Package api - Thin HTTP layer over the pipeline
// The API is ONLY responsible for: upload ingestion, engine orchestration,
// report serialization and run history. It NEVER computes waterfall values.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"profit-engine/adapters/storage"
	"profit-engine/core/engine"
	"profit-engine/core/ingest"
	"profit-engine/core/output"
	"profit-engine/core/types"
	"profit-engine/internal/config"
	"profit-engine/internal/errors"
	"profit-engine/internal/logging"
	"profit-engine/internal/metrics"
)

// Options configures a Server
type Options struct {
	Version string

	// Store enables the history endpoints when set
	Store storage.Store

	// Gatherer is served on GET /metrics when set
	Gatherer prometheus.Gatherer

	// Pipeline and Precision are the defaults a request may override
	Pipeline  config.PipelineConfig
	Precision int32

	// MaxUploadBytes caps a POST /runs body
	MaxUploadBytes int64
}

// Server is the API server
type Server struct {
	opts Options
	mux  *http.ServeMux
	log  *zap.Logger
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	s := &Server{
		opts: opts,
		mux:  http.NewServeMux(),
		log:  logging.Named("api"),
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("POST /runs", s.handleRun)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("POST /diff", s.handleDiff)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Supporting endpoints
	s.mux.HandleFunc("GET /version", s.handleVersion)
	if s.opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

// handleRun handles POST /runs: a multipart upload of the three tables.
// Form fields mode, duplicates, metrics, workers, currency, format,
// precision and save override the server defaults.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.ContentLength > s.opts.MaxUploadBytes {
		s.writeError(w, "UPLOAD_TOO_LARGE", "request body exceeds "+strconv.FormatInt(s.opts.MaxUploadBytes, 10)+" bytes", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeError(w, "UPLOAD_TOO_LARGE", err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		s.writeError(w, "INVALID_FORM", err.Error(), http.StatusBadRequest)
		return
	}

	pipeline, err := s.pipelineFromForm(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	opts, err := engine.OptionsFromConfig(pipeline)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	formatter, err := s.formatter(r, output.FormatJSON)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	var tables types.Tables
	var names [3]string
	if tables.Volume, names[0], err = readPart(r, "volume", ingest.ReadVolume); err != nil {
		s.writeErr(w, err)
		return
	}
	if tables.Pricing, names[1], err = readPart(r, "pricing", ingest.ReadPricing); err != nil {
		s.writeErr(w, err)
		return
	}
	if tables.TradeSpend, names[2], err = readPart(r, "trade_spend", ingest.ReadTradeSpend); err != nil {
		s.writeErr(w, err)
		return
	}

	report, err := engine.NewOrchestrator(opts).Run(ctx, tables)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if s.opts.Store != nil && r.FormValue("save") != "false" {
		meta := map[string]string{
			"source":      "http",
			"volume":      names[0],
			"pricing":     names[1],
			"trade_spend": names[2],
			"mode":        string(opts.Mode),
			"currency":    string(report.Currency),
			"version":     s.opts.Version,
		}
		saveStart := time.Now()
		err := s.opts.Store.Save(ctx, storage.FromReport(report, meta))
		metrics.RecordStep("store", err, time.Since(saveStart))
		if err != nil {
			s.writeErr(w, err)
			return
		}
	}

	w.Header().Set("X-Run-ID", report.RunID)
	w.Header().Set("X-Report-Fingerprint", report.Fingerprint)
	s.render(w, formatter, report)
}

// handleListRuns handles GET /runs?limit=&since=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	filter := &storage.ListFilter{Limit: 20}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, "INVALID_QUERY", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			s.writeError(w, "INVALID_QUERY", "since: "+err.Error(), http.StatusBadRequest)
			return
		}
		filter.Since = time.Now().Add(-d)
	}

	runs, err := s.opts.Store.List(r.Context(), filter)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	resp := ListResponse{Runs: make([]RunSummary, 0, len(runs)), Count: len(runs)}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, summarize(run))
	}
	s.writeJSON(w, resp, http.StatusOK)
}

// handleGetRun handles GET /runs/{id}; "latest" selects the newest run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	formatter, err := s.formatter(r, output.FormatJSON)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	var run *storage.StoredRun
	if id := r.PathValue("id"); id == "latest" {
		run, err = s.opts.Store.GetLatest(r.Context())
	} else {
		run, err = s.opts.Store.Get(r.Context(), id)
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}

	w.Header().Set("X-Run-ID", run.ID)
	w.Header().Set("X-Report-Fingerprint", run.Fingerprint)
	s.render(w, formatter, &types.Report{
		RunID:       run.ID,
		Currency:    types.Currency(run.Metadata["currency"]),
		Metrics:     run.Metrics,
		Rows:        run.Rows,
		Stats:       run.Stats,
		Fingerprint: run.Fingerprint,
	})
}

// handleDiff handles POST /diff
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	start := time.Now()

	var req DiffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "INVALID_JSON", err.Error(), http.StatusBadRequest)
		return
	}
	if req.OldID == "" || req.NewID == "" {
		s.writeError(w, "VALIDATION_ERROR", "old_id and new_id are required", http.StatusBadRequest)
		return
	}

	res, err := s.opts.Store.Compare(r.Context(), req.OldID, req.NewID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, DiffResponse{CompareResult: res, DurationMs: time.Since(start).Milliseconds()}, http.StatusOK)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": s.opts.Version,
		"store":   s.opts.Store != nil,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version":     s.opts.Version,
		"engine":      "profit-engine",
		"api_version": "v1",
	}, http.StatusOK)
}

// pipelineFromForm overlays request form values on the server defaults.
func (s *Server) pipelineFromForm(r *http.Request) (config.PipelineConfig, error) {
	p := s.opts.Pipeline
	if v := r.FormValue("mode"); v != "" {
		p.Mode = v
	}
	if v := r.FormValue("duplicates"); v != "" {
		p.Duplicates = v
	}
	if v := r.FormValue("metrics"); v != "" {
		p.Metrics = strings.Split(v, ",")
	}
	if v := r.FormValue("currency"); v != "" {
		p.Currency = types.Currency(v)
	}
	if v := r.FormValue("workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, errors.Config("workers", err)
		}
		p.Workers = n
	}
	return p, nil
}

func (s *Server) formatter(r *http.Request, fallback output.Format) (output.Formatter, error) {
	precision := s.opts.Precision
	if v := r.FormValue("precision"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, errors.Config("precision", err)
		}
		precision = int32(n)
	}
	name := r.FormValue("format")
	if name == "" {
		name = string(fallback)
	}
	f, err := output.DefaultRegistry(output.Options{Precision: precision, NoColor: true}).Get(name)
	if err != nil {
		return nil, errors.Config("format", err)
	}
	return f, nil
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.opts.Store == nil {
		s.writeError(w, "NO_STORE", "run history is not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// render buffers the report so a formatter failure still yields a JSON error.
func (s *Server) render(w http.ResponseWriter, f output.Formatter, report *types.Report) {
	var buf bytes.Buffer
	if err := f.Render(&buf, report); err != nil {
		s.writeErr(w, errors.Internal("render "+string(f.Format()), err))
		return
	}
	w.Header().Set("Content-Type", contentType(f.Format()))
	if f.Format() == output.FormatXLSX {
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.RunID+`.xlsx"`)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, code, message string, status int) {
	s.writeJSON(w, ErrorResponse{Error: ErrorBody{Code: code, Message: message}}, status)
}

// writeErr maps pipeline and store errors onto HTTP statuses.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	body := ErrorBody{Code: "INTERNAL_ERROR", Message: err.Error()}
	status := http.StatusInternalServerError

	switch e, ok := errors.As(err); {
	case ok:
		body.Code = string(e.Type)
		body.Context = e.Context
		switch e.Type {
		case errors.TypeConfig:
			status = http.StatusBadRequest
		case errors.TypeInternal:
		default:
			status = http.StatusUnprocessableEntity
		}
	case stderrors.Is(err, storage.ErrNotFound):
		body.Code = "NOT_FOUND"
		status = http.StatusNotFound
	case stderrors.Is(err, context.Canceled):
		body.Code = "CANCELED"
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, ErrorResponse{Error: body}, status)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)))
}

// ListenAndServe starts the server and shuts it down when ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Helper functions

// readPart parses one uploaded table and returns it with its file name.
func readPart[T any](r *http.Request, field string, read func(io.Reader, string) ([]T, error)) ([]T, string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", errors.Input("missing upload "+field).WithContext("field", field)
	}
	defer f.Close()
	rows, err := read(f, hdr.Filename)
	return rows, hdr.Filename, err
}

func contentType(f output.Format) string {
	switch f {
	case output.FormatCSV:
		return "text/csv; charset=utf-8"
	case output.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case output.FormatTable:
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
