package handler

import (
	"encoding/json"
	"net/http"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/pkg/response"
)

type DeviceHandler struct {
	deviceService *service.DeviceService
	authService   *service.AuthService
}

func NewDeviceHandler(deviceService *service.DeviceService, authService *service.AuthService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		authService:   authService,
	}
}

func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	device, err := h.deviceService.Register(r.Context(), &req)
	if err != nil {
		writeError(w, err, "Failed to register device")
		return
	}

	token, err := h.authService.IssueDeviceToken(device.ID)
	if err != nil {
		writeError(w, err, "Failed to issue device token")
		return
	}

	response.Created(w, &domain.DeviceRegistration{Device: device, Token: token})
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceService.List(r.Context())
	if err != nil {
		writeError(w, err, "Failed to list devices")
		return
	}

	response.Success(w, devices)
}
