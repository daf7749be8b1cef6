package domain

import "time"

type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

type OutboxEntry struct {
	NoteID     string       `json:"note_id"`
	SubNoteID  string       `json:"sub_note_id"`
	Kind       OpKind       `json:"kind"`
	Payload    SubNotePatch `json:"payload"`
	RecordedAt time.Time    `json:"recorded_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Seq        int64        `json:"seq"`
}

// PendingSubNote materializes the local placeholder a Create entry stands for.
func (e OutboxEntry) PendingSubNote() SubNote {
	s := SubNote{
		ID:         e.SubNoteID,
		CreatedAt:  e.RecordedAt,
		UpdatedAt:  e.UpdatedAt,
		Provenance: ProvenancePending,
	}
	e.Payload.Apply(&s)
	return s
}
