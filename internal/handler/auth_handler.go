package handler

import (
	"encoding/json"
	"net/http"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/pkg/response"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.authService.Login(&req)
	if err != nil {
		writeError(w, err, "Failed to log in")
		return
	}

	response.Success(w, res)
}
