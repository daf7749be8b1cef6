package domain

import "time"

type EntryOutcome string

const (
	OutcomeConfirmed EntryOutcome = "confirmed"
	OutcomeFailed    EntryOutcome = "failed"
	OutcomeSkipped   EntryOutcome = "skipped"
)

type EntryResult struct {
	NoteID    string       `json:"note_id"`
	SubNoteID string       `json:"sub_note_id"`
	ServerID  string       `json:"server_id,omitempty"`
	Kind      OpKind       `json:"kind"`
	Outcome   EntryOutcome `json:"outcome"`
	Error     string       `json:"error,omitempty"`
}

type ReconcileReport struct {
	Skipped   bool          `json:"skipped"`
	Attempted int           `json:"attempted"`
	Confirmed int           `json:"confirmed"`
	Failed    int           `json:"failed"`
	Refetched bool          `json:"refetched"`
	Remaining int           `json:"remaining"`
	Results   []EntryResult `json:"results"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

type PendingStatus struct {
	Available bool           `json:"available"`
	Syncing   bool           `json:"syncing"`
	Total     int            `json:"total"`
	PerNote   map[string]int `json:"per_note"`
}
