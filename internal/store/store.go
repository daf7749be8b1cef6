// Package store holds the in-process view of notes and their sub-notes.
//
// Every mutation completes under a single write lock, so readers observe
// either the state before a call or the state after it. Readers always
// receive deep copies.
package store

import (
	"errors"
	"sync"

	"enotebook-sync/internal/domain"
)

var (
	ErrNoteNotFound    = errors.New("note not found")
	ErrSubNoteNotFound = errors.New("sub-note not found")
	ErrDuplicateID     = errors.New("sub-note id already present in note")
)

type Store struct {
	mu    sync.RWMutex
	notes []domain.Note

	activeNote    string
	activeSubNote string
}

func New() *Store {
	return &Store{}
}

func (s *Store) Notes() []domain.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Note, len(s.notes))
	for i := range s.notes {
		out[i] = s.notes[i].Clone()
	}
	return out
}

func (s *Store) Note(id string) (domain.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Note{}, false
	}
	return s.notes[i].Clone(), true
}

func (s *Store) SubNote(noteID, subNoteID string) (domain.SubNote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(noteID)
	if i < 0 {
		return domain.SubNote{}, false
	}
	j := s.notes[i].SubNoteIndex(subNoteID)
	if j < 0 {
		return domain.SubNote{}, false
	}
	return s.notes[i].SubNotes[j], true
}

// ReplaceAll discards the current state. It performs no merge.
func (s *Store) ReplaceAll(notes []domain.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(notes)
}

// Swap computes the replacement from the current state while holding the
// write lock, so no mutation can slip in between read and replace.
func (s *Store) Swap(fn func(current []domain.Note) []domain.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make([]domain.Note, len(s.notes))
	for i := range s.notes {
		current[i] = s.notes[i].Clone()
	}
	s.replaceLocked(fn(current))
}

func (s *Store) replaceLocked(notes []domain.Note) {
	s.notes = make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		s.notes = append(s.notes, n.Clone())
	}
	if s.activeNote != "" && s.indexOf(s.activeNote) < 0 {
		s.activeNote, s.activeSubNote = "", ""
	}
}

// UpsertNote replaces a note in place or appends it.
func (s *Store) UpsertNote(note domain.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(note.ID); i >= 0 {
		s.notes[i] = note.Clone()
		return
	}
	s.notes = append(s.notes, note.Clone())
}

func (s *Store) RemoveNote(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.notes = append(s.notes[:i], s.notes[i+1:]...)
	if s.activeNote == id {
		s.activeNote, s.activeSubNote = "", ""
	}
	return true
}

// UpsertChild replaces the sub-note with the same id or appends it.
func (s *Store) UpsertChild(noteID string, child domain.SubNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(noteID)
	if i < 0 {
		return ErrNoteNotFound
	}
	note := &s.notes[i]
	subs := make([]domain.SubNote, len(note.SubNotes), len(note.SubNotes)+1)
	copy(subs, note.SubNotes)
	if j := note.SubNoteIndex(child.ID); j >= 0 {
		subs[j] = child
	} else {
		subs = append(subs, child)
	}
	note.SubNotes = subs
	return nil
}

func (s *Store) RemoveChild(noteID, subNoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(noteID)
	if i < 0 {
		return false
	}
	note := &s.notes[i]
	j := note.SubNoteIndex(subNoteID)
	if j < 0 {
		return false
	}
	subs := make([]domain.SubNote, 0, len(note.SubNotes)-1)
	subs = append(subs, note.SubNotes[:j]...)
	subs = append(subs, note.SubNotes[j+1:]...)
	note.SubNotes = subs
	if s.activeNote == noteID && s.activeSubNote == subNoteID {
		s.activeSubNote = ""
	}
	return true
}

// ReplaceChildID swaps oldID for merged (which must carry newID) at the same
// position and rewrites the active selection in the same critical section.
func (s *Store) ReplaceChildID(noteID, oldID, newID string, merged domain.SubNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(noteID)
	if i < 0 {
		return ErrNoteNotFound
	}
	note := &s.notes[i]
	j := note.SubNoteIndex(oldID)
	if j < 0 {
		return ErrSubNoteNotFound
	}
	if oldID != newID && note.SubNoteIndex(newID) >= 0 {
		return ErrDuplicateID
	}

	merged.ID = newID
	subs := make([]domain.SubNote, len(note.SubNotes))
	copy(subs, note.SubNotes)
	subs[j] = merged
	note.SubNotes = subs

	if s.activeNote == noteID && s.activeSubNote == oldID {
		s.activeSubNote = newID
	}
	return nil
}

// Select records the note (and optionally sub-note) the UI has open.
func (s *Store) Select(noteID, subNoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeNote, s.activeSubNote = noteID, subNoteID
}

func (s *Store) Selection() (noteID, subNoteID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeNote, s.activeSubNote
}

func (s *Store) indexOf(id string) int {
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}
