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

type NoteHandler struct {
	service  *service.NoteService
	validate *validator.Validate
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{
		service:  service,
		validate: validator.New(),
	}
}

// List serves the local view. ?refresh=true reloads it from the remote
// first; queued sub-note changes survive the reload.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		notes, err := h.service.Refresh(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		response.Success(w, notes)
		return
	}
	response.Success(w, h.service.List())
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, err := h.service.GetByID(mux.Vars(r)["noteId"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, note)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["noteId"]

	var req domain.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	note, err := h.service.Update(r.Context(), noteID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["noteId"]); err != nil {
		writeError(w, err)
		return
	}

	response.Message(w, "Note deleted successfully")
}
