package editing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/servicechange/internal/observability"
	"github.com/odyssey-erp/servicechange/internal/platform/httpx"
)

// Header names set by the fronting platform after it authenticates the caller.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type alerter interface {
	Alert(ctx context.Context, err error, message string)
}

// Handler exposes the operation registry over HTTP.
type Handler struct {
	registry *Registry
	alerts   alerter
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHandler builds a Handler serving the operations of service.
func NewHandler(service *Service, alerts alerter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: service.Registry(),
		alerts:   alerts,
		logger:   logger.With(slog.String("component", "editing.http")),
	}
}

// WithMetrics records every dispatched operation in m.
func (h *Handler) WithMetrics(m *observability.Metrics) *Handler {
	h.metrics = m
	return h
}

// MountRoutes registers the operation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Authenticate)
		r.Get("/", h.handleGet)
		r.Post("/", h.handlePost)
	})
}

// Authenticate resolves the caller from the platform headers.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderUserID)), 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid "+HeaderUserID)
			return
		}
		user := User{ID: id, Role: r.Header.Get(HeaderUserRole)}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	var req Request
	raw := r.URL.Query().Get("requestData")
	if raw == "" {
		h.respond(w, r, MethodGet, req, invalid("No operation specified."))
		return
	}
	if err := decodeRequest([]byte(raw), &req); err != nil {
		h.respond(w, r, MethodGet, req, err)
		return
	}
	h.dispatch(w, r, MethodGet, req)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respond(w, r, MethodPost, req, errors.Mark(err, ErrValidation))
		return
	}
	h.dispatch(w, r, MethodPost, req)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, method Method, req Request) {
	var (
		result any
		err    error
	)
	start := time.Now()
	done := h.metrics.StartOperation()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = errors.Newf("panic in %s operation [%s]: %v", method, req.Operation, rec)
			}
		}()
		result, err = h.registry.Dispatch(r.Context(), method, req)
	}()
	done()
	h.observe(method, req.Operation, err, time.Since(start))
	if err != nil {
		h.respond(w, r, method, req, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, method Method, req Request, err error) {
	if IsUserError(err) {
		h.logger.Info("operation rejected",
			slog.String("method", string(method)),
			slog.String("operation", req.Operation),
			slog.String("error", err.Error()))
	} else {
		user, _ := UserFromContext(r.Context())
		message := fmt.Sprintf("%s operation [%s] failed for user #%d (request %s). Params: %s",
			method, req.Operation, user.ID, chimw.GetReqID(r.Context()), string(req.Params))
		if h.alerts != nil {
			h.alerts.Alert(r.Context(), err, message)
		} else {
			h.logger.Error(message, slog.Any("error", err))
		}
	}
	httpx.RespondError(w, err)
}

func (h *Handler) observe(method Method, operation string, err error, elapsed time.Duration) {
	if !h.registry.Has(method, operation) {
		operation = "unknown"
	}
	outcome := observability.OutcomeOK
	switch {
	case err == nil:
	case IsUserError(err):
		outcome = observability.OutcomeRejected
	default:
		outcome = observability.OutcomeFailed
	}
	h.metrics.ObserveOperation(string(method), operation, outcome, elapsed)
}

func decodeRequest(raw []byte, req *Request) error {
	if err := json.Unmarshal(raw, req); err != nil {
		return errors.Mark(errors.Wrap(err, "decode requestData"), ErrValidation)
	}
	return nil
}
