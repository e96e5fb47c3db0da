// Package httpapi serves the daemon's REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/classify"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/contracts"
	"github.com/smart-mcp-proxy/connresult/internal/host"
	"github.com/smart-mcp-proxy/connresult/internal/observability"
	"github.com/smart-mcp-proxy/connresult/internal/resolution"
	"github.com/smart-mcp-proxy/connresult/internal/storage"
)

const maxBodyBytes = 1 << 20

// Controller defines the daemon functionality the API exposes
type Controller interface {
	// Classification
	Remediate(ctx context.Context, report classify.Report) (*resolution.Outcome, error)

	// Stored resolutions
	ListResolutions() ([]*storage.ResolutionRecord, error)
	GetResolution(token string) (*storage.ResolutionRecord, error)
	StartResolution(ctx context.Context, token string, requestID int) error
	CancelResolution(ctx context.Context, token string) (*storage.ResolutionRecord, error)

	// Completion callback from the interactive host
	CompleteRequest(ctx context.Context, requestID, resultCode int) (*storage.ResolutionRecord, error)
}

// Server provides HTTP API endpoints with chi router
type Server struct {
	controller    Controller
	logger        *zap.SugaredLogger
	router        *chi.Mux
	observability *observability.Manager
	now           func() time.Time
}

// NewServer creates a new HTTP API server. obs may be nil.
func NewServer(controller Controller, logger *zap.SugaredLogger, obs *observability.Manager) *Server {
	s := &Server{
		controller:    controller,
		logger:        logger,
		router:        chi.NewRouter(),
		observability: obs,
		now:           time.Now,
	}

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	if s.observability != nil {
		s.router.Use(s.observability.Tracing().HTTPMiddleware())
		s.router.Use(s.metricsMiddleware)
	}

	s.router.Use(s.httpLoggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(correlationIDMiddleware)

	if s.observability != nil {
		s.router.Get("/healthz", s.observability.Health().HealthzHandler())
		s.router.Method(http.MethodGet, "/metrics", s.observability.Metrics().Handler())
	} else {
		s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/codes", s.handleGetCodes)
		r.Post("/reports", s.handleReport)

		r.Route("/resolutions", func(r chi.Router) {
			r.Get("/", s.handleListResolutions)
			r.Route("/{token}", func(r chi.Router) {
				r.Get("/", s.handleGetResolution)
				r.Post("/start", s.handleStartResolution)
				r.Post("/cancel", s.handleCancelResolution)
			})
		})

		r.Post("/completions", s.handleCompletion)
	})

	s.logger.Debugw("HTTP API routes setup completed",
		"api_routes", "/api/v1/*",
		"health_routes", "/healthz",
		"metrics", s.observability != nil)
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, contracts.NewErrorResponse(message))
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}) {
	s.writeJSON(w, http.StatusOK, contracts.NewSuccessResponse(data))
}

// writeFailure maps err to a status code and writes the envelope
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("API request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err)
	}
	s.writeError(w, status, err.Error())
}

// statusForError maps resolution failures onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, connresult.ErrResolutionNotFound):
		return http.StatusNotFound
	case errors.Is(err, connresult.ErrResolutionConsumed),
		errors.Is(err, connresult.ErrResolutionCanceled),
		errors.Is(err, storage.ErrRequestInUse),
		errors.Is(err, storage.ErrNotAwaitingCompletion),
		errors.Is(err, host.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, connresult.ErrResolutionExpired):
		return http.StatusGone
	case connresult.IsDispatchError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// API v1 handlers

func (s *Server) handleGetCodes(w http.ResponseWriter, _ *http.Request) {
	s.writeSuccess(w, contracts.CodesResponse{
		Codes: contracts.ConvertCodes(connresult.Codes()),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var report classify.Report
	if err := decodeBody(w, r, &report); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if report.Service == "" {
		s.writeError(w, http.StatusBadRequest, "service is required")
		return
	}

	outcome, err := s.controller.Remediate(r.Context(), report)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	s.writeSuccess(w, contracts.ReportResponse{
		Service: report.Service,
		Result:  contracts.ConvertResult(outcome.Result),
		Summary: outcome.Summary,
		Detail:  outcome.Detail,
		Token:   outcome.Token,
	})
}

func (s *Server) handleListResolutions(w http.ResponseWriter, r *http.Request) {
	records, err := s.controller.ListResolutions()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	now := s.now()
	state := r.URL.Query().Get("state")
	service := r.URL.Query().Get("service")

	views := make([]contracts.Resolution, 0, len(records))
	for _, record := range records {
		view := contracts.ConvertResolution(record, record.Expired(now))
		if state != "" && view.State != state {
			continue
		}
		if service != "" && view.Service != service {
			continue
		}
		views = append(views, view)
	}

	s.writeSuccess(w, contracts.ResolutionsResponse{
		Resolutions: views,
		Total:       len(views),
	})
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	record, err := s.controller.GetResolution(chi.URLParam(r, "token"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeSuccess(w, contracts.ConvertResolution(record, record.Expired(s.now())))
}

func (s *Server) handleStartResolution(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var body struct {
		RequestID *int `json:"request_id"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.RequestID == nil {
		s.writeError(w, http.StatusBadRequest, "request_id is required")
		return
	}

	if err := s.controller.StartResolution(r.Context(), token, *body.RequestID); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	record, err := s.controller.GetResolution(token)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeSuccess(w, contracts.ConvertResolution(record, false))
}

func (s *Server) handleCancelResolution(w http.ResponseWriter, r *http.Request) {
	record, err := s.controller.CancelResolution(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeSuccess(w, contracts.ConvertResolution(record, false))
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID  *int `json:"request_id"`
		ResultCode *int `json:"result_code"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.RequestID == nil || body.ResultCode == nil {
		s.writeError(w, http.StatusBadRequest, "request_id and result_code are required")
		return
	}

	record, err := s.controller.CompleteRequest(r.Context(), *body.RequestID, *body.ResultCode)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	s.writeSuccess(w, contracts.CompletionResponse{
		Token:      record.Token,
		Service:    record.Service,
		RequestID:  *body.RequestID,
		ResultCode: *body.ResultCode,
		Retry:      connresult.ShouldRetry(*body.ResultCode),
	})
}
