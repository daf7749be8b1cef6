package handler

import (
	"encoding/json"
	"net/http"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/service"
	"enotebook-sync/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

const queuedMessage = "saved locally, pending sync"

type SubNoteHandler struct {
	sync     *service.SyncService
	validate *validator.Validate
}

func NewSubNoteHandler(sync *service.SyncService) *SubNoteHandler {
	return &SubNoteHandler{
		sync:     sync,
		validate: validator.New(),
	}
}

// Create answers 201 for a confirmed child and 202 when it was queued.
func (h *SubNoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	child, err := h.sync.CreateSubNote(r.Context(), mux.Vars(r)["noteId"], req)
	if err != nil {
		writeError(w, err)
		return
	}

	if child.Unconfirmed() {
		response.Accepted(w, child, queuedMessage)
		return
	}
	response.Created(w, child)
}

func (h *SubNoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var patch domain.SubNotePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	child, err := h.sync.UpdateSubNote(r.Context(), vars["noteId"], vars["subNoteId"], patch)
	if err != nil {
		writeError(w, err)
		return
	}

	if child.Unconfirmed() {
		response.Accepted(w, child, queuedMessage)
		return
	}
	response.Success(w, child)
}

func (h *SubNoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.sync.DeleteSubNote(r.Context(), vars["noteId"], vars["subNoteId"]); err != nil {
		writeError(w, err)
		return
	}

	if kind, ok := h.sync.Queued(vars["noteId"], vars["subNoteId"]); ok && kind == domain.OpDelete {
		response.Accepted(w, nil, queuedMessage)
		return
	}
	response.Message(w, "Sub-note deleted successfully")
}
