package handler

import (
	"log"
	"net/http"

	"enotebook-sync/internal/middleware"

	"github.com/gorilla/mux"
)

type CORS struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type Handlers struct {
	Notes    *NoteHandler
	SubNotes *SubNoteHandler
	Sync     *SyncHandler
	// WebSocket is optional
	WebSocket *WebSocketHandler
}

// NewRouter lays out the local API the UI talks to.
func NewRouter(h Handlers, cors CORS, logger *log.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cors.AllowedOrigins,
		cors.AllowedMethods,
		cors.AllowedHeaders,
	))

	r.HandleFunc("/status", h.Sync.Status).Methods("GET", "OPTIONS")
	r.HandleFunc("/sync", h.Sync.Sync).Methods("POST", "OPTIONS")
	r.HandleFunc("/selection", h.Sync.Selection).Methods("GET", "OPTIONS")
	r.HandleFunc("/selection", h.Sync.Select).Methods("PUT", "OPTIONS")

	r.HandleFunc("/notes", h.Notes.List).Methods("GET", "OPTIONS")
	r.HandleFunc("/notes", h.Notes.Create).Methods("POST", "OPTIONS")
	r.HandleFunc("/notes/{noteId}", h.Notes.Get).Methods("GET", "OPTIONS")
	r.HandleFunc("/notes/{noteId}", h.Notes.Update).Methods("PUT", "OPTIONS")
	r.HandleFunc("/notes/{noteId}", h.Notes.Delete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/notes/{noteId}/subnotes", h.SubNotes.Create).Methods("POST", "OPTIONS")
	r.HandleFunc("/notes/{noteId}/subnotes/{subNoteId}", h.SubNotes.Update).Methods("PUT", "OPTIONS")
	r.HandleFunc("/notes/{noteId}/subnotes/{subNoteId}", h.SubNotes.Delete).Methods("DELETE", "OPTIONS")

	if h.WebSocket != nil {
		r.HandleFunc("/ws", h.WebSocket.HandleConnection)
	}

	r.HandleFunc("/health", healthHandler).Methods("GET")
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"notesync"}`))
}
