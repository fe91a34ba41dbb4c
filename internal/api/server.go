// Package api exposes the HTTP interface for the capture service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/capture"
	"github.com/kingotools/capture/internal/config"
	"github.com/kingotools/capture/internal/metrics"
	"github.com/kingotools/capture/internal/orchestrator"
)

// Server wires HTTP handlers to the orchestrator service.
type Server struct {
	router  chi.Router
	service *orchestrator.Service
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service *orchestrator.Service, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.createTask)
			r.Get("/", s.listTasks)
			r.Route("/{task_id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Delete("/", s.deleteTask)
				r.Post("/start", s.startTask)
				r.Post("/stop", s.stopTask)
				r.Post("/resume", s.resumeTask)
			})
		})
		r.Get("/terms", s.getTerms)
		r.Post("/terms/reload", s.reloadTerms)
		r.Post("/settings/validate", s.validateSettings)
		r.Get("/status", s.getStatus)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Terms(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "term source unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createTaskRequest struct {
	TermCode string `json:"term_code"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TermCode == "" {
		writeError(w, http.StatusBadRequest, "missing term_code")
		return
	}
	task, err := s.service.Create(r.Context(), req.TermCode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskResponse(capture.TaskDetails{Task: task}))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	page := capture.PageRequest{
		Page: queryInt(r, "page", 1),
		Size: queryInt(r, "size", 20),
	}
	result, err := s.service.List(r.Context(), page)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(result.Items))
	for _, d := range result.Items {
		items = append(items, taskResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": result.Total,
		"page":  result.Page,
		"size":  result.Size,
	})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	details, err := s.service.Query(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse(details))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if err := s.service.Delete(r.Context(), taskID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": "deleted"})
}

type startTaskRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Threads  int    `json:"threads"`
}

func (s *Server) startTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	var req startTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	settings := s.toSettings(req)
	if settings.Username == "" || settings.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}
	details, err := s.service.Start(r.Context(), taskID, settings)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskResponse(details))
}

func (s *Server) stopTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	details, err := s.service.Stop(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse(details))
}

func (s *Server) resumeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	details, err := s.service.Resume(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse(details))
}

func (s *Server) getTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := s.service.Terms(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"terms": terms})
}

func (s *Server) reloadTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := s.service.ReloadTerms(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"terms": terms})
}

func (s *Server) validateSettings(w http.ResponseWriter, r *http.Request) {
	var req startTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	settings := s.toSettings(req)
	if settings.Username == "" || settings.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}
	if err := s.service.ValidateSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	capturing, importing := s.service.Counts()
	writeJSON(w, http.StatusOK, map[string]int64{
		"capturing": capturing,
		"importing": importing,
	})
}

func (s *Server) toSettings(req startTaskRequest) capture.Settings {
	settings := capture.Settings{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Threads:  req.Threads,
		Encoding: s.cfg.Capture.Charset,
	}
	if settings.Role == "" {
		settings.Role = s.cfg.Capture.Role
	}
	if settings.Threads <= 0 {
		settings.Threads = s.cfg.Capture.Threads
	}
	return settings
}

// taskResponse flattens a TaskDetails into the wire shape, attaching the
// runtime snapshot when the task has a registered runtime.
func taskResponse(d capture.TaskDetails) map[string]any {
	resp := map[string]any{
		"id":           d.ID,
		"term_code":    d.TermCode,
		"term_name":    d.TermName,
		"stage":        d.Stage,
		"stage_report": d.StageReport,
		"created_at":   d.CreatedAt,
	}
	if d.Runtime != nil {
		snap := d.Runtime.Snapshot()
		resp["runtime"] = map[string]any{
			"state":     snap.State,
			"queued":    snap.Queued,
			"succeeded": snap.Succeeded,
			"failed":    snap.Failed,
		}
	}
	return resp
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrTaskNotExists):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrTermNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, capture.ErrTaskRuntimeExists),
		errors.Is(err, capture.ErrTaskNotInitialized),
		errors.Is(err, capture.ErrRuntimeRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.status, elapsed)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
