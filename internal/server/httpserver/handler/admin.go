// Package handler provides the admin HTTP handlers of vos-server.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/telemetry/logger"
	"github.com/yndnr/vos-go/internal/vos"
)

// maxBodySize bounds admin request bodies.
const maxBodySize = 64 << 10

// handlePool handles GET /admin/v1/pool.
func (h *Handler) handlePool(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.PoolQuery(r.Context(), h.poh)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, info)
}

// handleListContainers handles GET /admin/v1/containers.
func (h *Handler) handleListContainers(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ContList(r.Context(), h.poh)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []vos.ContSummary{}
	}
	h.writeJSON(w, r, http.StatusOK, ContainerListResponse{Items: items, Total: len(items)})
}

// handleGetContainer handles GET /admin/v1/containers/{uuid}.
func (h *Handler) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	var info vos.ContInfo
	err := h.withContainer(r, func(coh vos.ContHandle) error {
		var err error
		info, err = h.engine.ContQuery(r.Context(), coh)
		return err
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, info)
}

// handleListSnapshots handles GET /admin/v1/containers/{uuid}/snapshots.
func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	var snaps []domain.Snapshot
	err := h.withContainer(r, func(coh vos.ContHandle) error {
		var err error
		snaps, err = h.engine.SnapList(r.Context(), coh)
		return err
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []domain.Snapshot{}
	}
	h.writeJSON(w, r, http.StatusOK, SnapshotListResponse{Items: snaps})
}

// handleDiscard handles POST /admin/v1/containers/{uuid}/discard.
func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var req DiscardRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body", err.Error())
		return
	}
	cookie, err := uuid.Parse(req.Cookie)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid cookie", req.Cookie)
		return
	}
	epr := domain.From(req.Lo)
	if req.Hi != nil {
		epr.Hi = *req.Hi
	}
	if err := epr.ValidateDiscard(); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	log := logger.L(r.Context())
	if req.Async {
		if h.reclaimer == nil {
			h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "reclaimer not running", nil)
			return
		}
		job := vos.DiscardJob{Container: id, Epr: epr, Cookie: cookie, Reason: "admin"}
		if !h.reclaimer.Enqueue(job) {
			h.writeError(w, r, http.StatusTooManyRequests, CodeTooMany, "discard queue full", nil)
			return
		}
		log.Info("discard queued", "container", id, "epr", epr.String(), "cookie", cookie)
		h.writeJSON(w, r, http.StatusAccepted, DiscardResponse{Epr: epr, Queued: true})
		return
	}

	stats, err := h.engine.DiscardByUUID(r.Context(), h.poh, id, epr, cookie)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	log.Info("discard finished",
		"container", id,
		"epr", epr.String(),
		"cookie", cookie,
		"deleted", stats.Deleted(),
		"bytes", stats.Bytes)
	h.writeJSON(w, r, http.StatusOK, DiscardResponse{Epr: epr, Stats: &stats})
}

// handleReclaimer handles GET /admin/v1/reclaimer.
func (h *Handler) handleReclaimer(w http.ResponseWriter, r *http.Request) {
	if h.reclaimer == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "reclaimer not running", nil)
		return
	}
	pending := h.reclaimer.Pending()
	if pending == nil {
		pending = []vos.DiscardJob{}
	}
	h.writeJSON(w, r, http.StatusOK, ReclaimerResponse{Stats: h.reclaimer.Stats(), Pending: pending})
}

// handleReclaimerRun handles POST /admin/v1/reclaimer/run.
func (h *Handler) handleReclaimerRun(w http.ResponseWriter, r *http.Request) {
	if h.reclaimer == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "reclaimer not running", nil)
		return
	}
	rep, err := h.reclaimer.RunOnce(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, rep)
}

// withContainer runs fn on a read-only handle of the {uuid} container.
func (h *Handler) withContainer(r *http.Request, fn func(coh vos.ContHandle) error) error {
	id, err := parseUUID(r)
	if err != nil {
		return err
	}
	coh, err := h.engine.ContOpen(r.Context(), h.poh, id, domain.ModeRO, uuid.Nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.engine.ContClose(coh); cerr != nil && !errors.Is(cerr, domain.ErrHandleNotFound) {
			logger.L(r.Context()).Warn("close admin handle", "container", id, "error", cerr)
		}
	}()
	return fn(coh)
}
