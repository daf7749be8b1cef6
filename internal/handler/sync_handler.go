package handler

import (
	"encoding/json"
	"net/http"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/service"
	"enotebook-sync/pkg/response"
)

// HealthSource exposes the latest connectivity probe.
type HealthSource interface {
	LastReport() (domain.HealthReport, bool)
}

type StatusResponse struct {
	domain.PendingStatus
	Health *domain.HealthReport `json:"health,omitempty"`
}

type SyncHandler struct {
	sync   *service.SyncService
	health HealthSource
}

func NewSyncHandler(sync *service.SyncService, health HealthSource) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		health: health,
	}
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{PendingStatus: h.sync.Status()}
	if h.health != nil {
		if report, ok := h.health.LastReport(); ok {
			resp.Health = &report
		}
	}
	response.Success(w, resp)
}

// Sync runs a reconciliation pass and returns its report. A pass already in
// progress yields a report with skipped set.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	report := h.sync.Reconcile(r.Context())
	response.Success(w, report)
}

func (h *SyncHandler) Selection(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.sync.Selection())
}

// Select sets the open note and sub-note. An empty body clears it.
func (h *SyncHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req domain.Selection
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request payload")
			return
		}
	}

	sel, err := h.sync.Select(req.NoteID, req.SubNoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, sel)
}
