package domain

type EventType string

const (
	EventSubNoteUpsert  EventType = "subnote_upsert"
	EventSubNoteRemove  EventType = "subnote_remove"
	EventSubNoteReplace EventType = "subnote_replace"
	EventNoteUpsert     EventType = "note_upsert"
	EventNoteRemove     EventType = "note_remove"
	EventNotesReset     EventType = "notes_reset"
	EventStatus         EventType = "status"
	EventReconciled     EventType = "reconciled"
)

// Event is what the sync engine and monitor publish to UI subscribers.
type Event struct {
	Type       EventType        `json:"type"`
	NoteID     string           `json:"note_id,omitempty"`
	SubNoteID  string           `json:"sub_note_id,omitempty"`
	PreviousID string           `json:"previous_id,omitempty"`
	SubNote    *SubNote         `json:"sub_note,omitempty"`
	Note       *Note            `json:"note,omitempty"`
	Status     *PendingStatus   `json:"status,omitempty"`
	Report     *ReconcileReport `json:"report,omitempty"`
}
