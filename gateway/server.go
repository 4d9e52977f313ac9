package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cataloro/escrow"
	"cataloro/observability"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxRequestBody       = 1 << 20 // 1 MiB
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine    *escrow.Engine
	Audit     *AuditStore
	Logger    *slog.Logger
	JWTSecret []byte
	RateLimit RateLimit
}

// Server is the HTTP front-end for escrow lifecycle actions.
type Server struct {
	engine  *escrow.Engine
	audit   *AuditStore
	logger  *slog.Logger
	metrics *observability.EscrowMetrics
	nowFn   func() time.Time
	router  http.Handler
}

// New constructs a configured HTTP router with authentication, rate limiting
// and idempotency-token handling.
func New(cfg Config) *Server {
	if cfg.Engine == nil {
		panic("escrow engine required")
	}
	if len(cfg.JWTSecret) == 0 {
		panic("jwt secret required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  cfg.Engine,
		audit:   cfg.Audit,
		logger:  logger,
		metrics: observability.Escrow(),
		nowFn:   time.Now,
	}
	s.router = s.buildRouter(cfg)
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	limiter := NewRateLimiter(cfg.RateLimit, s.logger)
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(Authenticate(cfg.JWTSecret))
		api.Use(limiter.Middleware)
		api.Post("/escrows", s.handleCreate)
		api.Get("/escrows", s.handleList)
		api.Get("/escrows/{id}", s.handleGet)
		api.Post("/escrows/{id}/fund", s.handleFund)
		api.Post("/escrows/{id}/request-release", s.handleRequestRelease)
		api.Post("/escrows/{id}/approve-release", s.handleApproveRelease)
		api.Post("/escrows/{id}/dispute", s.handleDispute)
		api.Post("/escrows/{id}/resolve", s.handleResolve)
		api.Post("/escrows/{id}/cancel", s.handleCancel)
	})
	return r
}

// escrowResponse is the envelope returned for single-record reads and accepted
// transitions. Available actions are derived from the server-side transition
// table so callers never encode legality themselves.
type escrowResponse struct {
	Escrow           *escrow.Transaction `json:"escrow"`
	AvailableActions []escrow.Action     `json:"availableActions"`
}

type listResponse struct {
	Escrows []*escrow.Transaction `json:"escrows"`
	Summary escrow.Summary        `json:"summary"`
}

type errorBody struct {
	Code      string        `json:"code"`
	Message   string        `json:"message"`
	Status    escrow.Status `json:"status,omitempty"`
	Retryable bool          `json:"retryable"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, escrow.ActionCreate, http.StatusCreated, func(ctx context.Context, _, actor, token string, body []byte) (*escrow.Transaction, error) {
		var in escrow.CreateInput
		if err := decode(body, &in); err != nil {
			return nil, err
		}
		return s.engine.Create(ctx, actor, token, in)
	})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, escrow.ActionFund, http.StatusOK, func(ctx context.Context, id, actor, token string, body []byte) (*escrow.Transaction, error) {
		var in escrow.FundInput
		if err := decode(body, &in); err != nil {
			return nil, err
		}
		return s.engine.Fund(ctx, id, actor, token, in)
	})
}

func (s *Server) handleRequestRelease(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, escrow.ActionRequestRelease, http.StatusOK, func(ctx context.Context, id, actor, token string, body []byte) (*escrow.Transaction, error) {
		var in escrow.ReleaseRequestInput
		if err := decode(body, &in); err != nil {
			return nil, err
		}
		return s.engine.RequestRelease(ctx, id, actor, token, in)
	})
}

func (s *Server) handleApproveRelease(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, escrow.ActionApproveRelease, http.StatusOK, func(ctx context.Context, id, actor, token string, _ []byte) (*escrow.Transaction, error) {
		return s.engine.ApproveRelease(ctx, id, actor, token)
	})
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, escrow.ActionDispute, http.StatusOK, func(ctx context.Context, id, actor, token string, body []byte) (*escrow.Transaction, error) {
		var in escrow.DisputeInput
		if err := decode(body, &in); err != nil {
			return nil, err
		}
		return s.engine.Dispute(ctx, id, actor, token, in)
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, escrow.ActionResolve, http.StatusOK, func(ctx context.Context, id, actor, token string, body []byte) (*escrow.Transaction, error) {
		var in escrow.ResolveInput
		if err := decode(body, &in); err != nil {
			return nil, err
		}
		return s.engine.Resolve(ctx, id, actor, token, in)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, escrow.ActionCancel, http.StatusOK, func(ctx context.Context, id, actor, token string, body []byte) (*escrow.Transaction, error) {
		var in escrow.CancelInput
		if err := decode(body, &in); err != nil {
			return nil, err
		}
		return s.engine.Cancel(ctx, id, actor, token, in)
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := ActorFromContext(r.Context())
	t, err := s.engine.Get(r.Context(), id, actor)
	if err != nil {
		s.writeEngineError(w, "read", err)
		return
	}
	writeJSON(w, http.StatusOK, escrowResponse{Escrow: t, AvailableActions: escrow.AvailableActions(t.Status)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	statuses, err := parseStatusFilter(r.URL.Query()["status"])
	if err != nil {
		s.writeEngineError(w, "list", err)
		return
	}
	list, summary, err := s.engine.ListByActor(r.Context(), actor, statuses...)
	if err != nil {
		s.writeEngineError(w, "list", err)
		return
	}
	if list == nil {
		list = []*escrow.Transaction{}
	}
	writeJSON(w, http.StatusOK, listResponse{Escrows: list, Summary: summary})
}

type mutateFn func(ctx context.Context, id, actor, token string, body []byte) (*escrow.Transaction, error)

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, action escrow.Action, okStatus int, fn mutateFn) {
	start := s.nowFn()
	body, err := readRequestBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), "")
		return
	}
	actor := ActorFromContext(r.Context())
	token := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if token == "" {
		encoded := s.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "missing Idempotency-Key header", "")
		s.recordAudit(r, actor, body, http.StatusBadRequest, encoded)
		return
	}
	id := chi.URLParam(r, "id")
	result, err := fn(r.Context(), id, actor, token, body)
	if err != nil {
		status, encoded := s.writeEngineError(w, action, err)
		s.metrics.ObserveRejection(string(action), errorCode(err))
		if errors.Is(err, escrow.ErrConcurrentModification) {
			s.metrics.ObserveLeaseContention()
		}
		s.recordAudit(r, actor, body, status, encoded)
		return
	}
	s.metrics.ObserveTransition(string(action), s.nowFn().Sub(start))
	payload := escrowResponse{Escrow: result, AvailableActions: escrow.AvailableActions(result.Status)}
	encoded := writeJSON(w, okStatus, payload)
	s.recordAudit(r, actor, body, okStatus, encoded)
}

func (s *Server) recordAudit(r *http.Request, actor string, requestBody []byte, status int, responseBody []byte) {
	if s.audit == nil {
		return
	}
	entry := AuditEntry{
		Actor:          actor,
		Method:         r.Method,
		Path:           r.URL.Path,
		RequestBody:    append([]byte(nil), requestBody...),
		ResponseBody:   append([]byte(nil), responseBody...),
		ResponseStatus: status,
		Timestamp:      s.nowFn().UTC(),
	}
	if err := s.audit.Insert(r.Context(), entry); err != nil {
		s.logger.Error("audit insert failed", "error", err, "path", r.URL.Path)
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, action any, err error) (int, []byte) {
	httpStatus, code := classify(err)
	current, _ := escrow.CurrentStatus(err)
	s.logger.Info("escrow action rejected", "action", fmt.Sprint(action), "code", code, "error", err.Error())
	encoded := s.writeError(w, httpStatus, code, err.Error(), current)
	return httpStatus, encoded
}

func (s *Server) writeError(w http.ResponseWriter, httpStatus int, code, message string, current escrow.Status) []byte {
	return writeJSON(w, httpStatus, errorResponse{Error: errorBody{
		Code:      code,
		Message:   message,
		Status:    current,
		Retryable: code == "CONCURRENT_MODIFICATION" || code == "UNAVAILABLE",
	}})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, escrow.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, escrow.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, escrow.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, escrow.ErrIdempotencyMismatch):
		return http.StatusConflict, "IDEMPOTENCY_MISMATCH"
	case errors.Is(err, escrow.ErrConcurrentModification):
		return http.StatusConflict, "CONCURRENT_MODIFICATION"
	case errors.Is(err, escrow.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func errorCode(err error) string {
	_, code := classify(err)
	return code
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", escrow.ErrInvalidInput, err)
	}
	return nil
}

func parseStatusFilter(values []string) ([]escrow.Status, error) {
	var statuses []escrow.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.ToUpper(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			status := escrow.Status(trimmed)
			if !status.Valid() {
				return nil, fmt.Errorf("%w: invalid status filter %q", escrow.ErrInvalidInput, part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func readRequestBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, maxRequestBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(data) > maxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) []byte {
	encoded, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
	return encoded
}

func writeJSONError(w http.ResponseWriter, status int, code, message string, current escrow.Status) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message, Status: current}})
}
