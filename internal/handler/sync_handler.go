package handler

import (
	"encoding/json"
	"net/http"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/middleware"
	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/pkg/response"
)

type SyncHandler struct {
	syncService     *service.SyncService
	conflictService *service.ConflictService
}

func NewSyncHandler(syncService *service.SyncService, conflictService *service.ConflictService) *SyncHandler {
	return &SyncHandler{
		syncService:     syncService,
		conflictService: conflictService,
	}
}

// ProcessSync runs one batch. Conflicts are part of a 200 response.
func (h *SyncHandler) ProcessSync(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	// A device-bound token pins the batch to that device.
	if device := middleware.GetDeviceID(r); device != "" {
		if req.DeviceID != "" && req.DeviceID != device {
			response.Forbidden(w, "device_id does not match the authenticated device")
			return
		}
		req.DeviceID = device
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.syncService.SyncBatch(r.Context(), &req)
	if err != nil {
		writeError(w, err, "Sync failed")
		return
	}

	response.Success(w, res)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = middleware.GetDeviceID(r)
	}
	if deviceID == "" {
		response.BadRequest(w, "device_id is required")
		return
	}

	status, err := h.syncService.Status(r.Context(), deviceID)
	if err != nil {
		writeError(w, err, "Failed to load sync status")
		return
	}

	response.Success(w, status)
}

// ListConflicts returns discarded edits, newest first. Without device_id it
// returns them for every device.
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	edits, err := h.conflictService.List(r.Context(), r.URL.Query().Get("device_id"))
	if err != nil {
		writeError(w, err, "Failed to list conflicts")
		return
	}

	response.Success(w, edits)
}
