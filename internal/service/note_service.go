package service

import (
	"context"
	"fmt"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/remote"
)

// NoteService handles parent notes. Unlike sub-notes, parent mutations are
// never queued: without the remote they fail with ErrOffline and leave the
// store untouched.
type NoteService struct {
	sync *SyncService
}

func NewNoteService(sync *SyncService) *NoteService {
	return &NoteService{sync: sync}
}

func (s *NoteService) List() []domain.Note {
	return s.sync.Notes()
}

func (s *NoteService) GetByID(noteID string) (domain.Note, error) {
	note, ok := s.sync.Note(noteID)
	if !ok {
		return domain.Note{}, ErrNoteNotFound
	}
	return note, nil
}

// Refresh loads every note from the remote. Mutations still queued are
// re-applied on top of what the remote returned.
func (s *NoteService) Refresh(ctx context.Context) ([]domain.Note, error) {
	s.sync.fetchMu.Lock()
	defer s.sync.fetchMu.Unlock()

	notes, err := s.sync.remote.ListNotes(ctx)
	if err != nil {
		return nil, offline(err)
	}
	s.sync.replaceWithUnresolved(notes)
	return s.sync.Notes(), nil
}

func (s *NoteService) Create(ctx context.Context, req domain.CreateNoteRequest) (domain.Note, error) {
	if err := s.sync.validate.Struct(req); err != nil {
		return domain.Note{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	note, err := s.sync.remote.CreateNote(ctx, req)
	if err != nil {
		return domain.Note{}, offline(err)
	}
	s.sync.commit(func() { s.sync.store.UpsertNote(*note) })
	s.publishNote(*note)
	return note.Clone(), nil
}

func (s *NoteService) Update(ctx context.Context, noteID string, req domain.UpdateNoteRequest) (domain.Note, error) {
	if err := s.sync.validate.Struct(req); err != nil {
		return domain.Note{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, ok := s.sync.Note(noteID); !ok {
		return domain.Note{}, ErrNoteNotFound
	}

	updated, err := s.sync.remote.UpdateNote(ctx, noteID, req)
	if err != nil {
		return domain.Note{}, offline(err)
	}

	// The response carries the server's children; queued sub-note
	// mutations for this note still apply on top.
	var merged domain.Note
	s.sync.commit(func() {
		s.sync.store.Swap(func(current []domain.Note) []domain.Note {
			for i := range current {
				if current[i].ID != noteID {
					continue
				}
				if updated.SubNotes == nil {
					updated.SubNotes = current[i].SubNotes
					merged = *updated
				} else {
					merged = overlay([]domain.Note{*updated}, s.sync.outbox.Entries())[0]
				}
				current[i] = merged
			}
			return current
		})
	})
	s.publishNote(merged)
	return merged.Clone(), nil
}

// Delete removes the note remotely and drops any sub-note mutations still
// queued against it.
func (s *NoteService) Delete(ctx context.Context, noteID string) error {
	if _, ok := s.sync.Note(noteID); !ok {
		return ErrNoteNotFound
	}
	if err := s.sync.remote.DeleteNote(ctx, noteID); err != nil {
		return offline(err)
	}

	var dropped int
	s.sync.commit(func() {
		s.sync.store.RemoveNote(noteID)
		dropped = s.sync.outbox.ClearNote(noteID)
	})
	if dropped > 0 {
		s.sync.logger.Printf("dropped %d queued mutations of deleted note %s", dropped, noteID)
		s.sync.publishStatus()
	}
	s.sync.events.Publish(domain.Event{Type: domain.EventNoteRemove, NoteID: noteID})
	return nil
}

func (s *NoteService) publishNote(note domain.Note) {
	n := note.Clone()
	s.sync.events.Publish(domain.Event{Type: domain.EventNoteUpsert, NoteID: note.ID, Note: &n})
}

// offline marks connectivity failures with ErrOffline and passes anything
// else through.
func offline(err error) error {
	if remote.IsConnectivity(err) {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return err
}
