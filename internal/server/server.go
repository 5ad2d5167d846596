package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/nao1215/somnia-auditor/internal/audit"
	"github.com/nao1215/somnia-auditor/internal/database"
	"github.com/nao1215/somnia-auditor/internal/model"
	"github.com/nao1215/somnia-auditor/internal/report"
)

// HTTP server timeouts. Writes stay open long enough for a full audit.
const (
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 30 * time.Minute
	ShutdownTimeout = 10 * time.Second
)

// Auditor runs an audit. *audit.Auditor implements it.
type Auditor interface {
	Run(ctx context.Context, req audit.Request) (*model.AuditReport, error)
}

// Store persists audit reports. *database.AuditDB implements it.
type Store interface {
	SaveAudit(ctx context.Context, report *model.AuditReport) (int64, error)
	GetAuditByID(ctx context.Context, id int64) (*model.AuditReport, error)
	GetAuditHistoryWithMetadata(ctx context.Context, target string) ([]database.AuditMetadata, error)
	ListAuditedTargets(ctx context.Context) ([]string, error)
}

// Server serves the audit API.
type Server struct {
	auditor Auditor
	store   Store
	logger  *slog.Logger
	version string

	// slots limits how many audits run at once; the tools are CPU heavy.
	slots chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by /healthz and in JSON reports.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithMaxConcurrentAudits sets how many audits may run at once.
func WithMaxConcurrentAudits(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// New creates a Server. store may be nil, in which case audits are not
// persisted and the history endpoints answer 503.
func New(auditor Auditor, store Store, opts ...Option) *Server {
	s := &Server{
		auditor: auditor,
		store:   store,
		logger:  slog.Default(),
		version: "dev",
		slots:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/audits", func(r chi.Router) {
		r.Post("/", s.handleRunAudit)
		r.Get("/", s.handleListAudits)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAudit)
			r.Get("/report.md", s.handleGetMarkdown)
			r.Get("/report.sarif", s.handleGetSARIF)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("audit API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// auditRequest is the body of POST /audits. Recursive defaults to true.
type auditRequest struct {
	Path        string   `json:"path"`
	Recursive   *bool    `json:"recursive,omitempty"`
	IncludeLibs bool     `json:"include_libs"`
	Exclude     []string `json:"exclude,omitempty"`
}

// auditResponse is the reply to POST /audits.
type auditResponse struct {
	ID          int64         `json:"id,omitempty"`
	Target      string        `json:"target"`
	DateScanned time.Time     `json:"date_scanned"`
	Mode        string        `json:"mode"`
	Files       []string      `json:"files"`
	Summary     model.Summary `json:"summary"`
	AISummary   string        `json:"ai_summary,omitempty"`
	Duration    string        `json:"duration"`
}

func (s *Server) handleRunAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Path == "" {
		writeError(w, r, http.StatusBadRequest, "path is required")
		return
	}

	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-r.Context().Done():
		writeError(w, r, http.StatusServiceUnavailable, "request canceled while waiting for a free audit slot")
		return
	}

	rep, err := s.auditor.Run(r.Context(), audit.Request{
		Target:      req.Path,
		Recursive:   recursive,
		IncludeLibs: req.IncludeLibs,
		Excludes:    req.Exclude,
	})
	if err != nil {
		if errors.Is(err, audit.ErrTargetNotFound) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, audit.ErrNoSolidityFiles) {
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("audit failed", "path", req.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if s.store != nil {
		if _, err := s.store.SaveAudit(r.Context(), rep); err != nil {
			s.logger.Warn("failed to save audit", "target", rep.Target, "error", err)
		} else {
			status = http.StatusCreated
		}
	}

	render.Status(r, status)
	render.JSON(w, r, auditResponse{
		ID:          rep.ID,
		Target:      rep.Target,
		DateScanned: rep.DateScanned,
		Mode:        rep.Mode,
		Files:       rep.Files,
		Summary:     rep.Summary,
		AISummary:   rep.AISummary,
		Duration:    rep.Duration.Round(time.Millisecond).String(),
	})
}

// handleListAudits lists the audited targets, or the history of one target
// when ?target= is given.
func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w, r) {
		return
	}

	target := r.URL.Query().Get("target")
	if target == "" {
		targets, err := s.store.ListAuditedTargets(r.Context())
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]any{"targets": targets})
		return
	}

	if abs, err := filepath.Abs(target); err == nil {
		target = abs
	}
	history, err := s.store.GetAuditHistoryWithMetadata(r.Context(), target)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"target": target,
		"audits": history,
	})
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadAudit(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, report.JSONReport{Version: s.version, Report: rep})
}

func (s *Server) handleGetMarkdown(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadAudit(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	s.writeRendered(w, r, "text/markdown; charset=utf-8", report.NewMarkdownWriter(&buf), &buf, rep)
}

func (s *Server) handleGetSARIF(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadAudit(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	s.writeRendered(w, r, "application/sarif+json", report.NewSARIFWriter(&buf, s.version), &buf, rep)
}

// writeRendered renders rep with rw, which writes into buf, and sends buf
// only when rendering succeeded.
func (s *Server) writeRendered(w http.ResponseWriter, r *http.Request, contentType string, rw report.Writer, buf *bytes.Buffer, rep *model.AuditReport) {
	if _, err := rw.Write(rep); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) loadAudit(w http.ResponseWriter, r *http.Request) (*model.AuditReport, bool) {
	if !s.requireStore(w, r) {
		return nil, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid audit id")
		return nil, false
	}

	rep, err := s.store.GetAuditByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrAuditNotFound) {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("audit %d not found", id))
			return nil, false
		}
		s.internalError(w, r, err)
		return nil, false
	}
	return rep, true
}

func (s *Server) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if s.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit history is disabled")
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}
