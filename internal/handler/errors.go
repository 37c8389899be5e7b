package handler

import (
	"errors"
	"log"
	"net/http"

	"hexanote-sync-server/internal/repository"
	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// writeError maps service errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 with the given message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	var conflictErr *service.ConflictError

	switch {
	case errors.As(err, &conflictErr):
		response.ErrorWithData(w, http.StatusConflict, "Version conflict", conflictErr.Conflict)
	case errors.Is(err, service.ErrUnknownDevice):
		response.NotFound(w, "Device is not registered")
	case errors.Is(err, repository.ErrNoteNotFound):
		response.NotFound(w, "Note not found")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid credentials")
	case errors.Is(err, service.ErrInvalidRequest):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrNoIndexer):
		response.Error(w, http.StatusServiceUnavailable, "Search indexing is not configured")
	case errors.Is(err, service.ErrBatchDeadline):
		response.GatewayTimeout(w, "Sync deadline exceeded")
	default:
		log.Printf("[HTTP] %s: %v", fallback, err)
		response.InternalError(w, fallback)
	}
}
