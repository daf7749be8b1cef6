package service

import (
	"context"
	"fmt"
	"time"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/remote"
	"enotebook-sync/internal/store"

	"github.com/cenkalti/backoff"
)

// Reconcile replays every queued mutation against the remote. A call made
// while a pass is running returns immediately with Skipped set. Entries that
// fail stay queued for the next pass.
func (s *SyncService) Reconcile(ctx context.Context) domain.ReconcileReport {
	if !s.syncing.CompareAndSwap(false, true) {
		return domain.ReconcileReport{Skipped: true, Remaining: s.TotalPending()}
	}
	defer s.syncing.Store(false)

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	report := domain.ReconcileReport{StartedAt: s.now(), Results: []domain.EntryResult{}}
	s.publishStatus()

	entries := s.outbox.Entries()
	if len(entries) > 0 {
		s.logger.Printf("reconciling %d queued mutations", len(entries))
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		r := s.replay(ctx, e)
		report.Results = append(report.Results, r)
		switch r.Outcome {
		case domain.OutcomeConfirmed:
			report.Attempted++
			report.Confirmed++
		case domain.OutcomeFailed:
			report.Attempted++
			report.Failed++
		}
	}

	if report.Confirmed > 0 {
		if err := s.refetch(ctx); err != nil {
			s.logger.Printf("re-fetch after reconcile failed: %v", err)
		} else {
			report.Refetched = true
		}
	}

	report.Remaining = s.TotalPending()
	report.Duration = time.Since(report.StartedAt)
	if report.Attempted > 0 {
		s.logger.Printf("reconcile done: %d confirmed, %d failed, %d remaining",
			report.Confirmed, report.Failed, report.Remaining)
	}

	s.syncing.Store(false)
	rep := report
	s.events.Publish(domain.Event{Type: domain.EventReconciled, Report: &rep})
	s.publishStatus()
	return report
}

// replay sends one entry with its latest payload while holding the child's
// lock.
func (s *SyncService) replay(ctx context.Context, snap domain.OutboxEntry) domain.EntryResult {
	id, unlock := s.locks.Lock(snap.NoteID, snap.SubNoteID)
	defer unlock()

	result := domain.EntryResult{NoteID: snap.NoteID, SubNoteID: id, Kind: snap.Kind}
	s.stateMu.RLock()
	entry, ok := s.outbox.Get(snap.NoteID, id)
	s.stateMu.RUnlock()
	if !ok {
		// settled by a user operation while the pass was running
		result.Outcome = domain.OutcomeSkipped
		return result
	}
	result.Kind = entry.Kind

	var res remote.Result
	switch entry.Kind {
	case domain.OpCreate:
		payload := entry.Payload
		res = s.remote.Perform(ctx, domain.OpCreate, entry.NoteID, "", &payload)
		if res.OK() {
			result.ServerID = s.settleCreate(ctx, entry, res.SubNote)
		}
	case domain.OpUpdate:
		payload := entry.Payload
		res = s.remote.Perform(ctx, domain.OpUpdate, entry.NoteID, id, &payload)
		if res.OK() {
			s.settleUpdate(entry, res.SubNote)
		}
	case domain.OpDelete:
		res = s.remote.Perform(ctx, domain.OpDelete, entry.NoteID, id, nil)
		if res.OK() || alreadyGone(res) {
			s.commit(func() { s.outbox.Clear(entry.NoteID, id) })
			res = remote.Result{Kind: remote.KindSuccess}
		}
	default:
		result.Outcome = domain.OutcomeFailed
		result.Error = fmt.Sprintf("unknown operation %q", entry.Kind)
		return result
	}

	if !res.OK() {
		result.Outcome = domain.OutcomeFailed
		result.Error = res.Err.Error()
		s.logger.Printf("replay %s %s/%s failed (%s): %v", entry.Kind, entry.NoteID, id, res.Kind, res.Err)
		return result
	}
	result.Outcome = domain.OutcomeConfirmed
	return result
}

// settleCreate swaps the temporary child for the server's and returns the
// server id. Without a decodable child the entry is still cleared and the
// re-fetch brings the created child in.
func (s *SyncService) settleCreate(ctx context.Context, entry domain.OutboxEntry, server *domain.SubNote) string {
	tempID := entry.SubNoteID
	if server == nil || server.ID == "" {
		s.commit(func() {
			s.store.RemoveChild(entry.NoteID, tempID)
			s.outbox.Clear(entry.NoteID, tempID)
		})
		s.publishRemoved(entry.NoteID, tempID)
		return ""
	}

	s.stateMu.RLock()
	local, ok := s.store.SubNote(entry.NoteID, tempID)
	s.stateMu.RUnlock()
	if !ok {
		local = entry.PendingSubNote()
	}
	merged, diff := settled(local, *server)

	// The id swap and the entry change land together: the create entry
	// either goes away or becomes the follow-up update under the server id.
	stored := true
	s.commit(func() {
		if err := s.store.ReplaceChildID(entry.NoteID, tempID, server.ID, merged); err != nil {
			s.store.RemoveChild(entry.NoteID, tempID)
			if err := s.store.UpsertChild(entry.NoteID, merged); err != nil {
				stored = false
				if err != store.ErrNoteNotFound {
					s.logger.Printf("store %s/%s: %v", entry.NoteID, server.ID, err)
				}
			}
		}
		if !stored {
			// the parent left the store; the re-fetch decides what remains
			diff = domain.SubNotePatch{}
			merged.Stale = false
		}
		if diff.IsEmpty() || !s.outbox.Rename(entry.NoteID, tempID, server.ID) {
			s.outbox.Clear(entry.NoteID, tempID)
		}
		if !diff.IsEmpty() {
			s.outbox.Record(entry.NoteID, server.ID, domain.OpUpdate, diff)
		}
	})
	s.locks.Alias(entry.NoteID, tempID, server.ID)

	c := merged
	s.events.Publish(domain.Event{
		Type:       domain.EventSubNoteReplace,
		NoteID:     entry.NoteID,
		SubNoteID:  server.ID,
		PreviousID: tempID,
		SubNote:    &c,
	})
	if !diff.IsEmpty() {
		s.followUp(ctx, entry.NoteID, merged, diff)
	}
	return server.ID
}

func (s *SyncService) settleUpdate(entry domain.OutboxEntry, server *domain.SubNote) {
	var (
		child   domain.SubNote
		updated bool
	)
	s.commit(func() {
		s.outbox.Clear(entry.NoteID, entry.SubNoteID)
		local, ok := s.store.SubNote(entry.NoteID, entry.SubNoteID)
		if !ok {
			return
		}
		child = local
		if server != nil {
			child = mergeLocal(local, *server)
		}
		child.ID = entry.SubNoteID
		child.Provenance = domain.ProvenanceConfirmed
		child.Stale = false
		updated = s.store.UpsertChild(entry.NoteID, child) == nil
	})
	if updated {
		s.publishChild(domain.EventSubNoteUpsert, entry.NoteID, child)
	}
}

// refetch reloads every note from the remote, retrying per the backoff
// policy, and lays still-queued mutations back over the result.
func (s *SyncService) refetch(ctx context.Context) error {
	var notes []domain.Note
	op := func() error {
		var err error
		notes, err = s.remote.ListNotes(ctx)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(s.backoff(), ctx)); err != nil {
		return err
	}
	s.replaceWithUnresolved(notes)
	return nil
}

// replaceWithUnresolved installs fetched as the new store contents with
// every queued mutation applied on top, so optimistic local state survives a
// bulk load.
func (s *SyncService) replaceWithUnresolved(fetched []domain.Note) {
	s.commit(func() {
		s.store.Swap(func([]domain.Note) []domain.Note {
			return overlay(fetched, s.outbox.Entries())
		})
	})
	s.events.Publish(domain.Event{Type: domain.EventNotesReset})
}

func overlay(fetched []domain.Note, entries []domain.OutboxEntry) []domain.Note {
	notes := make([]domain.Note, len(fetched))
	index := make(map[string]int, len(fetched))
	for i := range fetched {
		notes[i] = fetched[i].Clone()
		index[notes[i].ID] = i
		for j := range notes[i].SubNotes {
			notes[i].SubNotes[j].Provenance = domain.ProvenanceConfirmed
			notes[i].SubNotes[j].Stale = false
		}
	}

	for _, e := range entries {
		i, ok := index[e.NoteID]
		if !ok {
			continue
		}
		note := &notes[i]
		j := note.SubNoteIndex(e.SubNoteID)
		switch e.Kind {
		case domain.OpCreate:
			if j < 0 {
				note.SubNotes = append(note.SubNotes, e.PendingSubNote())
			}
		case domain.OpUpdate:
			if j >= 0 {
				e.Payload.Apply(&note.SubNotes[j])
				note.SubNotes[j].Stale = true
			}
		case domain.OpDelete:
			if j >= 0 {
				note.SubNotes = append(note.SubNotes[:j:j], note.SubNotes[j+1:]...)
			}
		}
	}
	return notes
}
