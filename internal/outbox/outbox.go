// Package outbox tracks sub-note mutations the remote has not confirmed.
//
// Entries are keyed by (note id, sub-note id). Recording the same key again
// overwrites the entry in place, so repeated local edits collapse into one
// replayable mutation carrying the latest payload.
package outbox

import (
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"enotebook-sync/internal/domain"
)

// Journal persists entries across restarts. Failures are logged, never
// surfaced: the in-memory outbox stays authoritative for the session.
type Journal interface {
	Save(entry domain.OutboxEntry) error
	Remove(noteID, subNoteID string) error
	Load() ([]domain.OutboxEntry, error)
}

type key struct {
	noteID    string
	subNoteID string
}

type Group struct {
	NoteID  string
	Entries []domain.OutboxEntry
}

type Outbox struct {
	mu       sync.Mutex
	notes    []string
	children map[string][]string
	entries  map[key]domain.OutboxEntry
	seq      int64

	journal Journal
	logger  *log.Logger
	now     func() time.Time
}

func New(journal Journal, logger *log.Logger) *Outbox {
	if logger == nil {
		logger = log.New(os.Stderr, "[outbox] ", log.LstdFlags)
	}
	return &Outbox{
		children: make(map[string][]string),
		entries:  make(map[key]domain.OutboxEntry),
		journal:  journal,
		logger:   logger,
		now:      time.Now,
	}
}

// Record creates or overwrites the entry for (noteID, subNoteID).
func (o *Outbox) Record(noteID, subNoteID string, kind domain.OpKind, payload domain.SubNotePatch) domain.OutboxEntry {
	o.mu.Lock()
	k := key{noteID, subNoteID}
	now := o.now()

	entry, exists := o.entries[k]
	if !exists {
		o.seq++
		entry = domain.OutboxEntry{
			NoteID:     noteID,
			SubNoteID:  subNoteID,
			RecordedAt: now,
			Seq:        o.seq,
		}
		o.appendKeyLocked(k)
	}
	entry.Kind = kind
	entry.Payload = domain.SubNotePatch{}.Merge(payload)
	entry.UpdatedAt = now
	o.entries[k] = entry
	o.mu.Unlock()

	if o.journal != nil {
		if err := o.journal.Save(entry); err != nil {
			o.logger.Printf("journal save %s/%s failed: %v", noteID, subNoteID, err)
		}
	}
	return entry
}

func (o *Outbox) Get(noteID, subNoteID string) (domain.OutboxEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[key{noteID, subNoteID}]
	return e, ok
}

// List returns entries grouped by note in first-recorded order, and within
// a note in first-recorded sub-note order. This is the replay order.
func (o *Outbox) List() []Group {
	o.mu.Lock()
	defer o.mu.Unlock()

	groups := make([]Group, 0, len(o.notes))
	for _, noteID := range o.notes {
		g := Group{NoteID: noteID}
		for _, subID := range o.children[noteID] {
			g.Entries = append(g.Entries, o.entries[key{noteID, subID}])
		}
		groups = append(groups, g)
	}
	return groups
}

// Entries is List flattened.
func (o *Outbox) Entries() []domain.OutboxEntry {
	var out []domain.OutboxEntry
	for _, g := range o.List() {
		out = append(out, g.Entries...)
	}
	return out
}

func (o *Outbox) Clear(noteID, subNoteID string) bool {
	o.mu.Lock()
	k := key{noteID, subNoteID}
	_, ok := o.entries[k]
	if ok {
		o.removeKeyLocked(k)
	}
	o.mu.Unlock()

	if ok && o.journal != nil {
		if err := o.journal.Remove(noteID, subNoteID); err != nil {
			o.logger.Printf("journal remove %s/%s failed: %v", noteID, subNoteID, err)
		}
	}
	return ok
}

// Rename re-keys the entry for oldID to newID keeping its replay position.
// It reports false when no entry exists for oldID or newID is already taken.
func (o *Outbox) Rename(noteID, oldID, newID string) bool {
	o.mu.Lock()
	from, to := key{noteID, oldID}, key{noteID, newID}
	entry, ok := o.entries[from]
	if _, taken := o.entries[to]; !ok || taken || oldID == newID {
		o.mu.Unlock()
		return false
	}
	delete(o.entries, from)
	entry.SubNoteID = newID
	o.entries[to] = entry
	subs := o.children[noteID]
	for i, id := range subs {
		if id == oldID {
			subs[i] = newID
			break
		}
	}
	o.mu.Unlock()

	if o.journal != nil {
		if err := o.journal.Remove(noteID, oldID); err != nil {
			o.logger.Printf("journal remove %s/%s failed: %v", noteID, oldID, err)
		}
		if err := o.journal.Save(entry); err != nil {
			o.logger.Printf("journal save %s/%s failed: %v", noteID, newID, err)
		}
	}
	return true
}

// ClearNote drops every entry recorded against noteID.
func (o *Outbox) ClearNote(noteID string) int {
	o.mu.Lock()
	subs := append([]string(nil), o.children[noteID]...)
	o.mu.Unlock()

	for _, subID := range subs {
		o.Clear(noteID, subID)
	}
	return len(subs)
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

func (o *Outbox) CountFor(noteID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.children[noteID])
}

// Counts returns the number of entries per note id.
func (o *Outbox) Counts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]int, len(o.notes))
	for _, noteID := range o.notes {
		out[noteID] = len(o.children[noteID])
	}
	return out
}

// Restore loads journaled entries, replay order following their sequence.
// Entries already present in memory win over journaled copies.
func (o *Outbox) Restore() (int, error) {
	if o.journal == nil {
		return 0, nil
	}
	loaded, err := o.journal.Load()
	if err != nil {
		return 0, err
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].Seq < loaded[j].Seq })

	o.mu.Lock()
	defer o.mu.Unlock()

	restored := 0
	for _, e := range loaded {
		k := key{e.NoteID, e.SubNoteID}
		if _, exists := o.entries[k]; exists {
			continue
		}
		if e.Seq > o.seq {
			o.seq = e.Seq
		}
		o.entries[k] = e
		o.appendKeyLocked(k)
		restored++
	}
	return restored, nil
}

func (o *Outbox) appendKeyLocked(k key) {
	if _, ok := o.children[k.noteID]; !ok {
		o.notes = append(o.notes, k.noteID)
	}
	o.children[k.noteID] = append(o.children[k.noteID], k.subNoteID)
}

func (o *Outbox) removeKeyLocked(k key) {
	delete(o.entries, k)

	subs := o.children[k.noteID]
	for i, id := range subs {
		if id == k.subNoteID {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) > 0 {
		o.children[k.noteID] = subs
		return
	}

	delete(o.children, k.noteID)
	for i, id := range o.notes {
		if id == k.noteID {
			o.notes = append(o.notes[:i:i], o.notes[i+1:]...)
			break
		}
	}
}
