// Package handler provides the admin HTTP handlers of vos-server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/service/reclaimer"
	"github.com/yndnr/vos-go/internal/telemetry/logger"
	"github.com/yndnr/vos-go/internal/vos"
)

// Engine is the part of vos.Engine the admin API reads.
type Engine interface {
	PoolQuery(ctx context.Context, poh vos.PoolHandle) (vos.PoolInfo, error)
	ContList(ctx context.Context, poh vos.PoolHandle) ([]vos.ContSummary, error)
	ContOpen(ctx context.Context, poh vos.PoolHandle, id uuid.UUID, mode domain.OpenMode, cookie uuid.UUID) (vos.ContHandle, error)
	ContClose(coh vos.ContHandle) error
	ContQuery(ctx context.Context, coh vos.ContHandle) (vos.ContInfo, error)
	SnapList(ctx context.Context, coh vos.ContHandle) ([]domain.Snapshot, error)
	DiscardByUUID(ctx context.Context, poh vos.PoolHandle, id uuid.UUID, epr domain.EpochRange, cookie uuid.UUID) (vos.DiscardStats, error)
}

// Reclaimer is the part of the reclaimer service the admin API drives.
type Reclaimer interface {
	Enqueue(job vos.DiscardJob) bool
	Pending() []vos.DiscardJob
	Stats() reclaimer.Stats
	RunOnce(ctx context.Context) (reclaimer.Report, error)
}

// Config wires the handler.
type Config struct {
	Engine    Engine
	Pool      vos.PoolHandle
	Reclaimer Reclaimer

	// Ready reports whether the server accepts work. Nil means always ready.
	Ready func() error

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	Logger *slog.Logger
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	engine    Engine
	poh       vos.PoolHandle
	reclaimer Reclaimer
	ready     func() error
	logger    *slog.Logger
	mux       *http.ServeMux
}

// New creates a new Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		engine:    cfg.Engine,
		poh:       cfg.Pool,
		reclaimer: cfg.Reclaimer,
		ready:     cfg.Ready,
		logger:    cfg.Logger,
		mux:       http.NewServeMux(),
	}
	h.registerRoutes(cfg.Metrics)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes(metrics http.Handler) {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
	if metrics != nil {
		h.mux.Handle("GET /metrics", metrics)
	}

	h.mux.HandleFunc("GET /admin/v1/pool", h.handlePool)
	h.mux.HandleFunc("GET /admin/v1/containers", h.handleListContainers)
	h.mux.HandleFunc("GET /admin/v1/containers/{uuid}", h.handleGetContainer)
	h.mux.HandleFunc("GET /admin/v1/containers/{uuid}/snapshots", h.handleListSnapshots)
	h.mux.HandleFunc("POST /admin/v1/containers/{uuid}/discard", h.handleDiscard)
	h.mux.HandleFunc("GET /admin/v1/reclaimer", h.handleReclaimer)
	h.mux.HandleFunc("POST /admin/v1/reclaimer/run", h.handleReclaimerRun)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteError(w, r, status, code, message, details)
}

// WriteError writes an error envelope. Middleware uses it too.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details))
}

// handleServiceError converts engine errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := errorCodeToHTTPStatus(de.Code)
		if status >= http.StatusInternalServerError {
			logger.L(r.Context()).Error("engine error", "code", de.Code, "error", err)
		}
		var details any
		if de.Details != "" {
			details = de.Details
		}
		h.writeError(w, r, status, de.Code, de.Message, details)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "request canceled", nil)
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
}

// errorCodeToHTTPStatus maps a VOS code to a status: the first three
// digits of the numeric suffix, when they name an HTTP status.
func errorCodeToHTTPStatus(code string) int {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 != 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(code[i+1:])
	if err != nil {
		return http.StatusInternalServerError
	}
	status := n / 10
	if http.StatusText(status) == "" {
		return http.StatusInternalServerError
	}
	return status
}

// parseUUID reads the {uuid} path value.
func parseUUID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidArgument.WithDetailsf("container uuid %q", r.PathValue("uuid"))
	}
	return id, nil
}
