package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/middleware"
	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/pkg/response"

	"github.com/gorilla/mux"
)

type NoteHandler struct {
	service *service.NoteService
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{service: service}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), middleware.GetDeviceID(r), &req)
	if err != nil {
		writeError(w, err, "Failed to create note")
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := &domain.NoteListQuery{}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			response.BadRequest(w, "page must be a positive integer")
			return
		}
		query.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			response.BadRequest(w, "limit must be between 1 and 100")
			return
		}
		query.Limit = limit
	}
	if v := q.Get("tags"); v != "" {
		query.Tags = strings.Split(v, ",")
	}

	notes, err := h.service.List(r.Context(), query)
	if err != nil {
		writeError(w, err, "Failed to list notes")
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.Tags(r.Context())
	if err != nil {
		writeError(w, err, "Failed to list tags")
		return
	}

	response.Success(w, tags)
}

// Reindex rebuilds the search index from storage and reports the counts.
func (h *NoteHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Reindex(r.Context())
	if err != nil {
		writeError(w, err, "Failed to reindex notes")
		return
	}

	response.Success(w, res)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, err := h.service.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "Failed to load note")
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Update(r.Context(), middleware.GetDeviceID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, err, "Failed to update note")
		return
	}

	response.Success(w, note)
}

// Delete takes an optional ?version= base version; without it the current
// version is deleted.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var version int64
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 1 {
			response.BadRequest(w, "version must be a positive integer")
			return
		}
		version = parsed
	}

	note, err := h.service.Delete(r.Context(), middleware.GetDeviceID(r), mux.Vars(r)["id"], version)
	if err != nil {
		writeError(w, err, "Failed to delete note")
		return
	}

	response.Success(w, note)
}
