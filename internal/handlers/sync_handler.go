// Package handlers exposes the sync protocol over HTTP: pull (change feed),
// push (batch reconciliation) and resolve (explicit conflict settlement).
//
// Request-level failures (bad JSON, unknown/foreign/inactive device, batch
// size limits) are 4xx responses before anything is applied. Everything
// else in a well-formed batch is per-item data in a 200: conflicts are part
// of the payload, not errors.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/daygrid/daygrid/internal/logging"
	"github.com/daygrid/daygrid/internal/services"
	"github.com/go-chi/chi/v5"
)

type SyncHandler struct {
	pull    *services.PullService
	push    *services.PushService
	resolve *services.ResolveService
	logger  logging.Logger
}

func NewSyncHandler(pull *services.PullService, push *services.PushService, resolve *services.ResolveService, logger logging.Logger) *SyncHandler {
	return &SyncHandler{pull: pull, push: push, resolve: resolve, logger: logger}
}

func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/pull", h.handlePull)
	r.Post("/push", h.handlePush)
	r.Post("/resolve", h.handleResolve)
}

func (h *SyncHandler) handlePull(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user")
		return
	}

	var req services.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	req.UserID = userID

	resp, err := h.pull.Pull(r.Context(), req)
	if err != nil {
		h.respondSyncError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) handlePush(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user")
		return
	}

	var req services.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	req.UserID = userID

	resp, err := h.push.Push(r.Context(), req)
	if err != nil {
		h.respondSyncError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user")
		return
	}

	var req services.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	req.UserID = userID

	resp, err := h.resolve.Resolve(r.Context(), req)
	if err != nil {
		h.respondSyncError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) respondSyncError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrDeviceNotFound):
		respondError(w, http.StatusNotFound, "device_not_found", "device not found or inactive")
	case errors.Is(err, services.ErrBatchTooLarge):
		respondError(w, http.StatusBadRequest, "batch_too_large", "push batch exceeds size limits")
	default:
		h.logger.Error(r.Context(), "sync request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
