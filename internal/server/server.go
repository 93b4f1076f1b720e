// Package server exposes the grading service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/telhawk-systems/rangehawk/internal/answerkey"
	"github.com/telhawk-systems/rangehawk/internal/catalog"
	"github.com/telhawk-systems/rangehawk/internal/logging"
	"github.com/telhawk-systems/rangehawk/internal/metrics"
	"github.com/telhawk-systems/rangehawk/internal/middleware"
	"github.com/telhawk-systems/rangehawk/internal/rubric"
	"github.com/telhawk-systems/rangehawk/internal/service"
)

// MaxBodyBytes bounds a submission upload.
const MaxBodyBytes = 1 << 20

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func(ctx context.Context) error

type Server struct {
	catalog *catalog.Catalog
	grader  *service.Grader
	auth    middleware.TokenValidator
	checks  map[string]ReadyCheck
	origins []string
	logger  *logging.Logger
}

func New(cat *catalog.Catalog, grader *service.Grader, auth middleware.TokenValidator, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		catalog: cat,
		grader:  grader,
		auth:    auth,
		checks:  make(map[string]ReadyCheck),
		logger:  logger,
	}
}

// AddReadyCheck registers a dependency probed by /readyz.
func (s *Server) AddReadyCheck(name string, check ReadyCheck) {
	s.checks[name] = check
}

// AllowOrigins enables CORS for browser clients served from these origins.
func (s *Server) AllowOrigins(origins ...string) {
	s.origins = append(s.origins, origins...)
}

// Handler returns the routed handler with request IDs and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	requireAuth := middleware.RequireAuth(s.auth)

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /readyz", s.readyCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/scenarios", s.listScenarios)
	mux.HandleFunc("GET /api/v1/scenarios/{scenario}", s.getScenario)
	mux.Handle("POST /api/v1/scenarios/{scenario}/instances/{id}/grade/{domain}", requireAuth(http.HandlerFunc(s.grade)))
	mux.Handle("GET /api/v1/instances/{id}/results", requireAuth(http.HandlerFunc(s.listResults)))

	var h http.Handler = mux
	if len(s.origins) > 0 {
		h = middleware.CORS(middleware.DefaultCORSConfig(s.origins...))(h)
	}
	return middleware.RequestID(s.accessLog(h))
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "rangehawk"})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "dependencies": deps})
}

type scenarioSummary struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Difficulty  string          `json:"difficulty"`
	Description string          `json:"description,omitempty"`
	Sources     []string        `json:"sources"`
	Domains     []rubric.Domain `json:"domains"`
}

func summarize(d *catalog.Definition) scenarioSummary {
	sources := []string{}
	for _, src := range d.SourceNames() {
		sources = append(sources, string(src))
	}
	return scenarioSummary{
		Name:        d.Name,
		Title:       d.Title,
		Difficulty:  d.Difficulty,
		Description: d.Description,
		Sources:     sources,
		Domains:     d.Domains(),
	}
}

func (s *Server) listScenarios(w http.ResponseWriter, r *http.Request) {
	out := []scenarioSummary{}
	for _, d := range s.catalog.List() {
		out = append(out, summarize(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": out})
}

func (s *Server) getScenario(w http.ResponseWriter, r *http.Request) {
	d, err := s.catalog.Get(r.PathValue("scenario"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(d))
}

func (s *Server) grade(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	instanceID := r.PathValue("id")
	if !claims.CanAccess(instanceID) {
		writeError(w, http.StatusForbidden, "token does not grant access to this instance")
		return
	}

	req := service.GradeRequest{
		Scenario:   r.PathValue("scenario"),
		InstanceID: instanceID,
		Trainee:    claims.Trainee,
		Domain:     rubric.Domain(r.PathValue("domain")),
	}
	if !req.Domain.Valid() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown domain %q", req.Domain))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "submission too large")
		return
	}

	if req.Domain == rubric.DomainCombined {
		req.SOC, req.ML, err = parseCombined(body)
	} else {
		req.Submission, err = rubric.ParseSubmission(body)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.grader.Grade(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseCombined splits {"soc": {...}, "ml": {...}}. A missing half grades
// as an empty submission.
func parseCombined(body []byte) (*rubric.Submission, *rubric.Submission, error) {
	var parts struct {
		SOC json.RawMessage `json:"soc"`
		ML  json.RawMessage `json:"ml"`
	}
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", rubric.ErrMalformedSubmission, err)
	}

	parse := func(raw json.RawMessage) (*rubric.Submission, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		return rubric.ParseSubmission(raw)
	}
	soc, err := parse(parts.SOC)
	if err != nil {
		return nil, nil, fmt.Errorf("soc: %w", err)
	}
	ml, err := parse(parts.ML)
	if err != nil {
		return nil, nil, fmt.Errorf("ml: %w", err)
	}
	return soc, ml, nil
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	instanceID := r.PathValue("id")
	if !claims.CanAccess(instanceID) {
		writeError(w, http.StatusForbidden, "token does not grant access to this instance")
		return
	}

	trainee := claims.Trainee
	if claims.IsInstructor() {
		trainee = r.URL.Query().Get("trainee")
	}

	history, err := s.grader.History(r.Context(), instanceID, trainee)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": history})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rubric.ErrMalformedSubmission), errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, answerkey.ErrInvalidInstance):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrUnknownScenario), errors.Is(err, answerkey.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, answerkey.ErrMissingFact):
		writeError(w, http.StatusUnprocessableEntity, "answer key does not match the scenario rubric")
	default:
		s.logger.ErrorContext(r.Context(), "request failed", logging.Path(r.URL.Path), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, fmt.Sprint(rec.status)).Inc()
		s.logger.DebugContext(r.Context(), "request",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Status(rec.status),
			logging.Duration(time.Since(start)),
		)
	})
}

// Config holds HTTP server timeouts.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Run serves h until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, h http.Handler, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grading service listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down grading service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
