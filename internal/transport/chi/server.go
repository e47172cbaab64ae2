package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
	"github.com/kailas-cloud/swarmkb/internal/usecase/catalog"
	healthuc "github.com/kailas-cloud/swarmkb/internal/usecase/health"
	"github.com/kailas-cloud/swarmkb/internal/usecase/verifier"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 16 << 20

// Response statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// ErrorCode is the machine-readable error kind returned to clients.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeMalformedCriteria      ErrorCode = "malformed_criteria"
	CodeNotFound               ErrorCode = "not_found"
	CodeConsistencyUnavailable ErrorCode = "consistency_unavailable"
	CodeStoreUnavailable       ErrorCode = "store_unavailable"
	CodeImmutableField         ErrorCode = "immutable_field"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeInvalidOptions         ErrorCode = "invalid_options"
	CodeInvalidStatement       ErrorCode = "invalid_statement"
	CodeBatchTooLarge          ErrorCode = "batch_too_large"
	CodeUnknownCommand         ErrorCode = "unknown_command"
	CodeTimeout                ErrorCode = "timeout"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Path    string            `json:"path,omitempty"`
	Peers   map[string]string `json:"peers,omitempty"`
}

// Response is the envelope of every successful answer.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
	Meta   any    `json:"meta,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Services are the use cases the API exposes. Enrichment may be nil.
type Services struct {
	Catalog    Catalog
	Query      Querier
	Metadata   Metadata
	SQL        SQLRunner
	Verifier   Verifier
	Replicas   []verifier.Peer
	Health     HealthChecker
	Enrichment DirtyCounter
}

// Server serves the node HTTP API.
type Server struct {
	svc           Services
	nodeID        string
	maxBody       int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(svc Services, nodeID string, logger *zap.Logger) *Server {
	s := &Server{
		svc:     svc,
		nodeID:  nodeID,
		maxBody: DefaultMaxBodyBytes,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		malformedCriteriaHandler,
		consistencyHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrImmutableField, http.StatusBadRequest, CodeImmutableField),
		sentinelHandler(domain.ErrInvalidSchema, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidOptions, http.StatusBadRequest, CodeInvalidOptions),
		sentinelHandler(domain.ErrInvalidStatement, http.StatusBadRequest, CodeInvalidStatement),
		sentinelHandler(catalog.ErrBatchTooLarge, http.StatusBadRequest, CodeBatchTooLarge),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
	}
	return s
}

// WithMaxBodyBytes overrides the request body limit.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBody = n
	}
	return s
}

// Routes builds the router. API routes live under /{contextPath}; health and
// metrics are also served at the root and bypass authentication.
func (s *Server) Routes(contextPath string, apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger, s.nodeID))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/"+contextPath, func(r chi.Router) {
		r.Get("/health", s.HealthCheck)
		r.Get("/metrics", s.Metrics)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiKeys))
			r.Post("/command", s.Command)
			r.Post("/upload", s.Upload)
			r.Get("/metadata", s.GetMetadata)
			r.Get("/metadata/status", s.EnrichmentStatus)
			r.Post("/metadata/update", s.UpdateMetadata)
			r.Post("/sql", s.ExecuteSQL)
			r.Get("/replication/{associated_id}", s.Replication)
			r.Get("/schema/verify", s.VerifySchema)
			r.Post("/peer/query", s.PeerQuery)
			r.Get("/agent/status", s.AgentStatus)
			r.Get("/peers", s.ListPeers)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	body := map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	}
	if _, ok := report.Checks[healthuc.ComponentBacklog]; ok {
		body["dirty"] = report.Dirty
	}
	writeJSON(w, httpStatus, body)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decode reads a JSON body into v. It writes the error response itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data, meta any) {
	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Data: data, Meta: meta})
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-facing message without exposing internals.
// Errors caused by the request itself keep their detail; server-side failures
// collapse to their sentinel text.
func safeDomainMessage(err error) string {
	clientErrors := []error{
		domain.ErrMalformedCriteria,
		domain.ErrNotFound,
		domain.ErrImmutableField,
		domain.ErrInvalidSchema,
		domain.ErrInvalidOptions,
		domain.ErrInvalidStatement,
		domain.ErrConsistencyUnavailable,
		catalog.ErrBatchTooLarge,
	}
	for _, s := range clientErrors {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	serverErrors := []error{
		domain.ErrStoreUnavailable,
		context.DeadlineExceeded,
	}
	for _, s := range serverErrors {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// malformedCriteriaHandler reports where in the criteria the input was rejected.
func malformedCriteriaHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrMalformedCriteria) {
		return false
	}
	resp := ErrorResponse{Code: CodeMalformedCriteria, Message: msg}
	var cerr *criteria.Error
	if errors.As(err, &cerr) {
		resp.Path = cerr.Path
	}
	writeJSON(w, http.StatusBadRequest, resp)
	return true
}

// consistencyHandler lists the peers that blocked a STRONG query.
func consistencyHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrConsistencyUnavailable) {
		return false
	}
	resp := ErrorResponse{Code: CodeConsistencyUnavailable, Message: msg}
	var cerr *domquery.ConsistencyError
	if errors.As(err, &cerr) {
		resp.Peers = cerr.Failed
	}
	writeJSON(w, http.StatusServiceUnavailable, resp)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
