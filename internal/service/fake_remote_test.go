package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/outbox"
	"enotebook-sync/internal/remote"
	"enotebook-sync/internal/store"

	"github.com/cenkalti/backoff"
)

// fakeRemote is an in-memory notes service. Going offline turns every call
// into a connectivity failure.
type fakeRemote struct {
	mu      sync.Mutex
	offline bool
	notes   []*domain.Note
	nextID  int
	calls   []string

	// creates with these titles fail with a connectivity error
	unreachableTitles map[string]bool
	// the service ignores completed on create
	dropCompleted bool
	// only the bulk list fails
	listOffline bool
	// only sub-note updates fail
	updatesOffline bool
	// Perform signals entered and waits on release when set, for every
	// operation or only for holdOp
	entered chan struct{}
	release chan struct{}
	holdOp  domain.OpKind
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{unreachableTitles: make(map[string]bool)}
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRemote) addNote(id, title string, subs ...domain.SubNote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, &domain.Note{ID: id, Title: title, SubNotes: subs})
}

func (f *fakeRemote) snapshot() []domain.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Note, 0, len(f.notes))
	for _, n := range f.notes {
		c := n.Clone()
		for i := range c.SubNotes {
			c.SubNotes[i].Provenance = domain.ProvenanceConfirmed
		}
		out = append(out, c)
	}
	return out
}

func (f *fakeRemote) serverChild(noteID, subID string) (domain.SubNote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.findLocked(noteID)
	if n == nil {
		return domain.SubNote{}, false
	}
	j := n.SubNoteIndex(subID)
	if j < 0 {
		return domain.SubNote{}, false
	}
	return n.SubNotes[j], true
}

func (f *fakeRemote) findLocked(id string) *domain.Note {
	for _, n := range f.notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func connectivity(op string) *remote.Failure {
	return &remote.Failure{
		Kind:     remote.KindConnectivity,
		Op:       op,
		Attempts: []remote.Attempt{{Method: "POST", URL: "http://fake", Err: errors.New("connection refused")}},
	}
}

func rejection(op string, status int) *remote.Failure {
	return &remote.Failure{
		Kind:     remote.KindRejection,
		Op:       op,
		Attempts: []remote.Attempt{{Method: "PUT", URL: "http://fake", Status: status, Body: http.StatusText(status)}},
	}
}

func (f *fakeRemote) Perform(ctx context.Context, op domain.OpKind, noteID, subNoteID string, payload *domain.SubNotePatch) remote.Result {
	if f.entered != nil && (f.holdOp == "" || f.holdOp == op) {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s/%s", op, noteID, subNoteID))

	if f.offline || (f.updatesOffline && op == domain.OpUpdate) {
		return remote.Result{Kind: remote.KindConnectivity, Err: connectivity(string(op))}
	}
	note := f.findLocked(noteID)
	if note == nil {
		return remote.Result{Kind: remote.KindRejection, Err: rejection(string(op), http.StatusNotFound)}
	}
	now := time.Now().UTC()

	switch op {
	case domain.OpCreate:
		if payload.Title != nil && f.unreachableTitles[*payload.Title] {
			return remote.Result{Kind: remote.KindConnectivity, Err: connectivity(string(op))}
		}
		f.nextID++
		child := domain.SubNote{ID: fmt.Sprintf("srv-%d", f.nextID), CreatedAt: now, UpdatedAt: now}
		payload.Apply(&child)
		if f.dropCompleted {
			child.Completed = false
		}
		note.SubNotes = append(note.SubNotes, child)
		c := note.Clone()
		return remote.Result{Kind: remote.KindSuccess, Note: &c, SubNote: &child}

	case domain.OpUpdate:
		j := note.SubNoteIndex(subNoteID)
		if j < 0 {
			return remote.Result{Kind: remote.KindRejection, Err: rejection(string(op), http.StatusNotFound)}
		}
		payload.Apply(&note.SubNotes[j])
		note.SubNotes[j].UpdatedAt = now
		child := note.SubNotes[j]
		return remote.Result{Kind: remote.KindSuccess, SubNote: &child}

	case domain.OpDelete:
		j := note.SubNoteIndex(subNoteID)
		if j < 0 {
			return remote.Result{Kind: remote.KindRejection, Err: rejection(string(op), http.StatusNotFound)}
		}
		note.SubNotes = append(note.SubNotes[:j:j], note.SubNotes[j+1:]...)
		return remote.Result{Kind: remote.KindSuccess}
	}
	return remote.Result{Kind: remote.KindRejection, Err: rejection(string(op), http.StatusBadRequest)}
}

func (f *fakeRemote) ListNotes(ctx context.Context) ([]domain.Note, error) {
	f.mu.Lock()
	offline := f.offline || f.listOffline
	f.calls = append(f.calls, "list")
	f.mu.Unlock()
	if offline {
		return nil, connectivity("list notes")
	}
	return f.snapshot(), nil
}

func (f *fakeRemote) CreateNote(ctx context.Context, req domain.CreateNoteRequest) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, connectivity("create note")
	}
	f.nextID++
	n := &domain.Note{ID: fmt.Sprintf("note-%d", f.nextID), Title: req.Title, Description: req.Description, Tag: req.Tag, SubNotes: []domain.SubNote{}}
	f.notes = append(f.notes, n)
	c := n.Clone()
	return &c, nil
}

func (f *fakeRemote) UpdateNote(ctx context.Context, noteID string, req domain.UpdateNoteRequest) (*domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, connectivity("update note")
	}
	n := f.findLocked(noteID)
	if n == nil {
		return nil, rejection("update note", http.StatusNotFound)
	}
	if req.Title != nil {
		n.Title = *req.Title
	}
	if req.Description != nil {
		n.Description = *req.Description
	}
	if req.Tag != nil {
		n.Tag = *req.Tag
	}
	c := n.Clone()
	return &c, nil
}

func (f *fakeRemote) DeleteNote(ctx context.Context, noteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return connectivity("delete note")
	}
	for i, n := range f.notes {
		if n.ID == noteID {
			f.notes = append(f.notes[:i], f.notes[i+1:]...)
			return nil
		}
	}
	return rejection("delete note", http.StatusNotFound)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Publish(e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	remote *fakeRemote
	store  *store.Store
	outbox *outbox.Outbox
	sink   *recordingSink
	sync   *SyncService
	notes  *NoteService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	h := &harness{
		remote: newFakeRemote(),
		store:  store.New(),
		outbox: outbox.New(nil, quiet),
		sink:   &recordingSink{},
	}
	h.sync = NewSyncService(h.remote, h.store, h.outbox,
		WithLogger(quiet),
		WithEvents(h.sink),
		WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		}),
	)
	h.notes = NewNoteService(h.sync)
	return h
}

// seed installs a parent on both sides.
func (h *harness) seed(id, title string, subs ...domain.SubNote) {
	h.remote.addNote(id, title, subs...)
	h.store.ReplaceAll(h.remote.snapshot())
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
