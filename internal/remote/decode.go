package remote

import (
	"encoding/json"
	"errors"
	"fmt"

	"enotebook-sync/internal/domain"
)

// entity is the decoded shape of a success body. Sub-note mutations on the
// remote answer with the whole parent note, deletes with {message, note},
// and some deployments wrap everything in {success, data}.
type entity struct {
	note    *domain.Note
	subNote *domain.SubNote
}

var errEmptyBody = errors.New("empty response body")

func decodeEntity(body []byte) (entity, error) {
	if len(body) == 0 {
		return entity{}, errEmptyBody
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return entity{}, fmt.Errorf("decode response: %w", err)
	}

	if data, ok := fields["data"]; ok {
		if _, hasSuccess := fields["success"]; hasSuccess {
			return decodeEntity(data)
		}
	}
	if inner, ok := fields["note"]; ok {
		return decodeEntity(inner)
	}

	if _, ok := fields["subNotes"]; ok {
		var n domain.Note
		if err := json.Unmarshal(body, &n); err != nil {
			return entity{}, fmt.Errorf("decode note: %w", err)
		}
		normalizeNote(&n)
		return entity{note: &n}, nil
	}
	if _, ok := fields["content"]; ok {
		var s domain.SubNote
		if err := json.Unmarshal(body, &s); err != nil {
			return entity{}, fmt.Errorf("decode sub-note: %w", err)
		}
		s.Provenance = domain.ProvenanceConfirmed
		return entity{subNote: &s}, nil
	}
	if _, ok := fields["_id"]; ok {
		var n domain.Note
		if err := json.Unmarshal(body, &n); err != nil {
			return entity{}, fmt.Errorf("decode note: %w", err)
		}
		normalizeNote(&n)
		return entity{note: &n}, nil
	}
	return entity{}, nil
}

func decodeNotes(body []byte) ([]domain.Note, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		if data, ok := fields["data"]; ok {
			return decodeNotes(data)
		}
		return nil, fmt.Errorf("decode notes: unexpected object")
	}

	var notes []domain.Note
	if err := json.Unmarshal(body, &notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	for i := range notes {
		normalizeNote(&notes[i])
	}
	return notes, nil
}

// Everything that arrives from the remote is confirmed by definition.
func normalizeNote(n *domain.Note) {
	for i := range n.SubNotes {
		n.SubNotes[i].Provenance = domain.ProvenanceConfirmed
		n.SubNotes[i].Stale = false
	}
}

// created picks the sub-note a create produced. The remote appends, so when
// it answers with the parent the new child is the last one.
func (e entity) created() *domain.SubNote {
	if e.subNote != nil {
		return e.subNote
	}
	if e.note != nil && len(e.note.SubNotes) > 0 {
		s := e.note.SubNotes[len(e.note.SubNotes)-1]
		return &s
	}
	return nil
}

func (e entity) find(subNoteID string) *domain.SubNote {
	if e.subNote != nil && (e.subNote.ID == subNoteID || e.subNote.ID == "") {
		s := *e.subNote
		s.ID = subNoteID
		return &s
	}
	if e.note != nil {
		if i := e.note.SubNoteIndex(subNoteID); i >= 0 {
			s := e.note.SubNotes[i]
			return &s
		}
	}
	return nil
}
