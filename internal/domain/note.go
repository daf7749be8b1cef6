package domain

import (
	"strings"
	"time"
)

type Provenance string

const (
	ProvenanceConfirmed Provenance = "confirmed"
	ProvenancePending   Provenance = "pending"
)

// TempIDPrefix marks client-generated sub-note ids. Server ids never carry it.
const TempIDPrefix = "temp-"

type Note struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tag         string    `json:"tag"`
	SubNotes    []SubNote `json:"subNotes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type SubNote struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Provenance Provenance `json:"provenance,omitempty"`
	Stale      bool       `json:"stale,omitempty"`
}

func (s SubNote) IsPending() bool {
	return s.Provenance == ProvenancePending
}

// Unconfirmed reports whether the sub-note carries local state the remote
// has not acknowledged yet.
func (s SubNote) Unconfirmed() bool {
	return s.IsPending() || s.Stale
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Clone returns a copy that shares no slice memory with n.
func (n Note) Clone() Note {
	out := n
	if n.SubNotes != nil {
		out.SubNotes = make([]SubNote, len(n.SubNotes))
		copy(out.SubNotes, n.SubNotes)
	}
	return out
}

func (n Note) SubNoteIndex(id string) int {
	for i := range n.SubNotes {
		if n.SubNotes[i].ID == id {
			return i
		}
	}
	return -1
}

func (n Note) PendingCount() int {
	count := 0
	for _, s := range n.SubNotes {
		if s.Unconfirmed() {
			count++
		}
	}
	return count
}

type CreateNoteRequest struct {
	Title       string `json:"title" validate:"required,min=3"`
	Description string `json:"description" validate:"required,min=3"`
	Tag         string `json:"tag,omitempty"`
}

type UpdateNoteRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=3"`
	Description *string `json:"description,omitempty" validate:"omitempty,min=3"`
	Tag         *string `json:"tag,omitempty"`
}

type CreateSubNoteRequest struct {
	Title     string `json:"title" validate:"required"`
	Content   string `json:"content" validate:"required"`
	Completed bool   `json:"completed"`
}

func (r CreateSubNoteRequest) Patch() SubNotePatch {
	title, content, completed := r.Title, r.Content, r.Completed
	return SubNotePatch{Title: &title, Content: &content, Completed: &completed}
}

// SubNotePatch is both the update request body and the replay payload kept
// in the outbox. Nil fields are left untouched.
type SubNotePatch struct {
	Title     *string `json:"title,omitempty" validate:"omitempty,min=1"`
	Content   *string `json:"content,omitempty" validate:"omitempty,min=1"`
	Completed *bool   `json:"completed,omitempty"`
}

func (p SubNotePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Completed == nil
}

// Merge overlays other onto p; fields set in other win.
func (p SubNotePatch) Merge(other SubNotePatch) SubNotePatch {
	out := p.clone()
	if other.Title != nil {
		v := *other.Title
		out.Title = &v
	}
	if other.Content != nil {
		v := *other.Content
		out.Content = &v
	}
	if other.Completed != nil {
		v := *other.Completed
		out.Completed = &v
	}
	return out
}

func (p SubNotePatch) clone() SubNotePatch {
	var out SubNotePatch
	if p.Title != nil {
		v := *p.Title
		out.Title = &v
	}
	if p.Content != nil {
		v := *p.Content
		out.Content = &v
	}
	if p.Completed != nil {
		v := *p.Completed
		out.Completed = &v
	}
	return out
}

// Apply writes the set fields onto s and reports whether anything changed.
func (p SubNotePatch) Apply(s *SubNote) bool {
	changed := false
	if p.Title != nil && s.Title != *p.Title {
		s.Title = *p.Title
		changed = true
	}
	if p.Content != nil && s.Content != *p.Content {
		s.Content = *p.Content
		changed = true
	}
	if p.Completed != nil && s.Completed != *p.Completed {
		s.Completed = *p.Completed
		changed = true
	}
	return changed
}

// Diff returns the user-editable fields of want that differ from got.
func Diff(want, got SubNote) SubNotePatch {
	var p SubNotePatch
	if want.Title != got.Title {
		v := want.Title
		p.Title = &v
	}
	if want.Content != got.Content {
		v := want.Content
		p.Content = &v
	}
	if want.Completed != got.Completed {
		v := want.Completed
		p.Completed = &v
	}
	return p
}

// Selection is the note, and optionally the sub-note, the UI has open.
type Selection struct {
	NoteID    string `json:"note_id"`
	SubNoteID string `json:"sub_note_id,omitempty"`
}
