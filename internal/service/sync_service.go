package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/outbox"
	"enotebook-sync/internal/remote"
	"enotebook-sync/internal/store"

	"github.com/cenkalti/backoff"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Remote is what the engine needs from the notes service.
type Remote interface {
	Perform(ctx context.Context, op domain.OpKind, noteID, subNoteID string, payload *domain.SubNotePatch) remote.Result
	ListNotes(ctx context.Context) ([]domain.Note, error)
	CreateNote(ctx context.Context, req domain.CreateNoteRequest) (*domain.Note, error)
	UpdateNote(ctx context.Context, noteID string, req domain.UpdateNoteRequest) (*domain.Note, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// EventSink receives every change the engine applies to the store.
type EventSink interface {
	Publish(event domain.Event)
}

type Availability interface {
	Available() bool
}

type nopSink struct{}

func (nopSink) Publish(domain.Event) {}

type Option func(*SyncService)

func WithLogger(l *log.Logger) Option {
	return func(s *SyncService) { s.logger = l }
}

func WithEvents(sink EventSink) Option {
	return func(s *SyncService) { s.events = sink }
}

func WithAvailability(a Availability) Option {
	return func(s *SyncService) { s.availability = a }
}

// WithBackOff sets the retry policy for the re-fetch that follows a
// reconciliation pass. A fresh policy is requested per pass.
func WithBackOff(policy func() backoff.BackOff) Option {
	return func(s *SyncService) { s.backoff = policy }
}

func WithClock(now func() time.Time) Option {
	return func(s *SyncService) { s.now = now }
}

// WithTempIDs overrides how ids for offline-created sub-notes are minted.
func WithTempIDs(next func() string) Option {
	return func(s *SyncService) { s.tempID = next }
}

type SyncService struct {
	remote Remote
	store  *store.Store
	outbox *outbox.Outbox

	events       EventSink
	availability Availability
	validate     *validator.Validate
	logger       *log.Logger
	backoff      func() backoff.BackOff
	now          func() time.Time
	tempID       func() string

	locks   *childLocks
	syncing atomic.Bool
	// fetchMu keeps a user refresh from swapping the store while a
	// reconciliation pass is replaying entries.
	fetchMu sync.Mutex
	// stateMu makes a store change and its outbox change one step for
	// readers: a child is unconfirmed exactly when it has an entry.
	stateMu sync.RWMutex
}

func NewSyncService(
	rem Remote,
	st *store.Store,
	ob *outbox.Outbox,
	opts ...Option,
) *SyncService {
	s := &SyncService{
		remote:   rem,
		store:    st,
		outbox:   ob,
		events:   nopSink{},
		validate: validator.New(),
		logger:   log.New(os.Stderr, "[Sync] ", log.LstdFlags),
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
		now:    time.Now,
		tempID: func() string { return domain.TempIDPrefix + uuid.New().String() },
		locks:  newChildLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// commit applies fn with readers of store and outbox held off. fn must not
// publish events or call commit.
func (s *SyncService) commit(fn func()) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	fn()
}

func (s *SyncService) Notes() []domain.Note {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.store.Notes()
}

func (s *SyncService) Note(noteID string) (domain.Note, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.store.Note(noteID)
}

func (s *SyncService) PendingCount(noteID string) int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.outbox.CountFor(noteID)
}

func (s *SyncService) TotalPending() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.outbox.Len()
}

// Queued reports the mutation still waiting for the remote on a child.
func (s *SyncService) Queued(noteID, subNoteID string) (domain.OpKind, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	e, ok := s.outbox.Get(noteID, s.locks.Resolve(noteID, subNoteID))
	return e.Kind, ok
}

func (s *SyncService) Syncing() bool {
	return s.syncing.Load()
}

func (s *SyncService) Status() domain.PendingStatus {
	s.stateMu.RLock()
	st := domain.PendingStatus{
		Syncing: s.syncing.Load(),
		Total:   s.outbox.Len(),
		PerNote: s.outbox.Counts(),
	}
	s.stateMu.RUnlock()
	if s.availability != nil {
		st.Available = s.availability.Available()
	}
	return st
}

// Select records what the UI has open. An empty noteID clears the
// selection. A temporary id already replaced by the server's resolves to
// the server id, and later replacements keep the selection current.
func (s *SyncService) Select(noteID, subNoteID string) (domain.Selection, error) {
	if noteID == "" && subNoteID != "" {
		return domain.Selection{}, fmt.Errorf("%w: sub-note selected without its note", ErrInvalidRequest)
	}
	if subNoteID != "" {
		subNoteID = s.locks.Resolve(noteID, subNoteID)
	}

	var err error
	s.commit(func() {
		if noteID != "" {
			if _, ok := s.store.Note(noteID); !ok {
				err = ErrNoteNotFound
				return
			}
		}
		if subNoteID != "" {
			if _, ok := s.store.SubNote(noteID, subNoteID); !ok {
				err = ErrSubNoteNotFound
				return
			}
		}
		s.store.Select(noteID, subNoteID)
	})
	if err != nil {
		return domain.Selection{}, err
	}
	return domain.Selection{NoteID: noteID, SubNoteID: subNoteID}, nil
}

func (s *SyncService) Selection() domain.Selection {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	noteID, subNoteID := s.store.Selection()
	return domain.Selection{NoteID: noteID, SubNoteID: subNoteID}
}

// CreateSubNote adds a child to noteID. When the remote cannot be reached
// the child is kept locally under a temporary id and queued.
func (s *SyncService) CreateSubNote(ctx context.Context, noteID string, req domain.CreateSubNoteRequest) (domain.SubNote, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.SubNote{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, ok := s.Note(noteID); !ok {
		return domain.SubNote{}, ErrNoteNotFound
	}

	payload := req.Patch()
	res := s.remote.Perform(ctx, domain.OpCreate, noteID, "", &payload)
	switch res.Kind {
	case remote.KindSuccess:
		if res.SubNote == nil || res.SubNote.ID == "" {
			return domain.SubNote{}, fmt.Errorf("create sub-note: response carried no sub-note")
		}
		_, unlock := s.locks.Lock(noteID, res.SubNote.ID)
		defer unlock()

		local := domain.SubNote{Title: req.Title, Content: req.Content, Completed: req.Completed}
		child, diff := settled(local, *res.SubNote)
		var err error
		s.commit(func() {
			if err = s.store.UpsertChild(noteID, child); err == nil && !diff.IsEmpty() {
				s.outbox.Record(noteID, child.ID, domain.OpUpdate, diff)
			}
		})
		if err != nil {
			return domain.SubNote{}, err
		}
		s.publishChild(domain.EventSubNoteUpsert, noteID, child)
		if !diff.IsEmpty() {
			s.publishStatus()
			child = s.followUp(ctx, noteID, child, diff)
		}
		return child, nil

	case remote.KindConnectivity:
		now := s.now()
		child := domain.SubNote{
			ID:         s.tempID(),
			Title:      req.Title,
			Content:    req.Content,
			Completed:  req.Completed,
			CreatedAt:  now,
			UpdatedAt:  now,
			Provenance: domain.ProvenancePending,
		}
		var err error
		s.commit(func() {
			if err = s.store.UpsertChild(noteID, child); err == nil {
				s.outbox.Record(noteID, child.ID, domain.OpCreate, payload)
			}
		})
		if err != nil {
			return domain.SubNote{}, err
		}
		s.logger.Printf("queued create of %s in note %s: %v", child.ID, noteID, res.Err)
		s.publishChild(domain.EventSubNoteUpsert, noteID, child)
		s.publishStatus()
		return child, nil

	default:
		return domain.SubNote{}, res.Error()
	}
}

// UpdateSubNote applies patch to a child. Pending children are edited in
// place and never touch the network; their queued create absorbs the patch.
func (s *SyncService) UpdateSubNote(ctx context.Context, noteID, subNoteID string, patch domain.SubNotePatch) (domain.SubNote, error) {
	if patch.IsEmpty() {
		return domain.SubNote{}, fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
	}
	if err := s.validate.Struct(patch); err != nil {
		return domain.SubNote{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id, unlock := s.locks.Lock(noteID, subNoteID)
	defer unlock()

	s.stateMu.RLock()
	current, ok := s.store.SubNote(noteID, id)
	_, noteExists := s.store.Note(noteID)
	queued, hasQueued := s.outbox.Get(noteID, id)
	s.stateMu.RUnlock()
	if !ok {
		if !noteExists {
			return domain.SubNote{}, ErrNoteNotFound
		}
		return domain.SubNote{}, ErrSubNoteNotFound
	}

	if hasQueued && queued.Kind == domain.OpCreate {
		child := current
		patch.Apply(&child)
		child.UpdatedAt = s.now()
		var err error
		s.commit(func() {
			if err = s.store.UpsertChild(noteID, child); err == nil {
				s.outbox.Record(noteID, id, domain.OpCreate, queued.Payload.Merge(patch))
			}
		})
		if err != nil {
			return domain.SubNote{}, err
		}
		s.publishChild(domain.EventSubNoteUpsert, noteID, child)
		return child, nil
	}

	// A child with an unsent update ships the accumulated change, so the
	// remote never misses an earlier offline edit.
	send := patch
	if hasQueued && queued.Kind == domain.OpUpdate {
		send = queued.Payload.Merge(patch)
	}

	res := s.remote.Perform(ctx, domain.OpUpdate, noteID, id, &send)
	switch res.Kind {
	case remote.KindSuccess:
		local := current
		send.Apply(&local)
		child := local
		if res.SubNote != nil {
			child = mergeLocal(local, *res.SubNote)
		}
		child.Provenance = domain.ProvenanceConfirmed
		child.Stale = false
		var err error
		s.commit(func() {
			if err = s.store.UpsertChild(noteID, child); err == nil && hasQueued {
				s.outbox.Clear(noteID, id)
			}
		})
		if err != nil {
			return domain.SubNote{}, err
		}
		if hasQueued {
			s.publishStatus()
		}
		s.publishChild(domain.EventSubNoteUpsert, noteID, child)
		return child, nil

	case remote.KindConnectivity:
		child := current
		send.Apply(&child)
		child.UpdatedAt = s.now()
		child.Stale = true
		var err error
		s.commit(func() {
			if err = s.store.UpsertChild(noteID, child); err == nil {
				s.outbox.Record(noteID, id, domain.OpUpdate, send)
			}
		})
		if err != nil {
			return domain.SubNote{}, err
		}
		s.logger.Printf("queued update of %s in note %s: %v", id, noteID, res.Err)
		s.publishChild(domain.EventSubNoteUpsert, noteID, child)
		s.publishStatus()
		return child, nil

	default:
		return domain.SubNote{}, res.Error()
	}
}

// DeleteSubNote removes a child. A pending child was never seen by the
// remote, so dropping it and its queued create is the whole operation.
func (s *SyncService) DeleteSubNote(ctx context.Context, noteID, subNoteID string) error {
	id, unlock := s.locks.Lock(noteID, subNoteID)
	defer unlock()

	s.stateMu.RLock()
	_, ok := s.store.SubNote(noteID, id)
	_, noteExists := s.store.Note(noteID)
	queued, hasQueued := s.outbox.Get(noteID, id)
	s.stateMu.RUnlock()
	if !ok {
		if !noteExists {
			return ErrNoteNotFound
		}
		return ErrSubNoteNotFound
	}

	if hasQueued && queued.Kind == domain.OpCreate {
		s.commit(func() {
			s.store.RemoveChild(noteID, id)
			s.outbox.Clear(noteID, id)
		})
		s.publishRemoved(noteID, id)
		s.publishStatus()
		return nil
	}

	res := s.remote.Perform(ctx, domain.OpDelete, noteID, id, nil)
	switch {
	case res.OK(), alreadyGone(res):
		var cleared bool
		s.commit(func() {
			s.store.RemoveChild(noteID, id)
			cleared = s.outbox.Clear(noteID, id)
		})
		if cleared {
			s.publishStatus()
		}
		s.publishRemoved(noteID, id)
		return nil

	case res.Kind == remote.KindConnectivity:
		s.commit(func() {
			s.store.RemoveChild(noteID, id)
			s.outbox.Record(noteID, id, domain.OpDelete, domain.SubNotePatch{})
		})
		s.logger.Printf("queued delete of %s in note %s: %v", id, noteID, res.Err)
		s.publishRemoved(noteID, id)
		s.publishStatus()
		return nil

	default:
		return res.Error()
	}
}

// settled merges a server-acknowledged create with what the user asked for.
// diff holds the user fields the server did not keep; when it is not empty
// the child is stale until a follow-up update carries them.
func settled(local, server domain.SubNote) (domain.SubNote, domain.SubNotePatch) {
	merged := mergeLocal(local, server)
	merged.Provenance = domain.ProvenanceConfirmed
	diff := domain.Diff(merged, server)
	merged.Stale = !diff.IsEmpty()
	return merged, diff
}

// followUp sends the fields a create confirmation dropped. The update is
// already queued against the server id, so a connectivity failure leaves it
// for the next pass. The caller holds the child's lock.
func (s *SyncService) followUp(ctx context.Context, noteID string, child domain.SubNote, diff domain.SubNotePatch) domain.SubNote {
	res := s.remote.Perform(ctx, domain.OpUpdate, noteID, child.ID, &diff)
	switch res.Kind {
	case remote.KindConnectivity:
		s.logger.Printf("queued follow-up update of %s in note %s: %v", child.ID, noteID, res.Err)
		return child
	case remote.KindRejection:
		s.logger.Printf("follow-up update of %s in note %s rejected: %v", child.ID, noteID, res.Err)
	}

	if res.OK() && res.SubNote != nil {
		child = mergeLocal(child, *res.SubNote)
	}
	child.Provenance = domain.ProvenanceConfirmed
	child.Stale = false
	s.commit(func() {
		s.outbox.Clear(noteID, child.ID)
		if _, ok := s.store.SubNote(noteID, child.ID); ok {
			s.store.UpsertChild(noteID, child)
		}
	})
	s.publishChild(domain.EventSubNoteUpsert, noteID, child)
	s.publishStatus()
	return child
}

// mergeLocal keeps the user-editable fields of local and takes identity and
// timestamps from the server copy.
func mergeLocal(local, server domain.SubNote) domain.SubNote {
	out := server
	out.Title = local.Title
	out.Content = local.Content
	out.Completed = local.Completed
	if out.CreatedAt.IsZero() {
		out.CreatedAt = local.CreatedAt
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = local.UpdatedAt
	}
	return out
}

// alreadyGone reports a delete the remote answered with 404 on every route:
// the child no longer exists there, which is the state a delete wants.
func alreadyGone(res remote.Result) bool {
	return res.Kind == remote.KindRejection && res.Err != nil && res.Err.StatusCode() == http.StatusNotFound
}

func (s *SyncService) publishChild(t domain.EventType, noteID string, child domain.SubNote) {
	c := child
	s.events.Publish(domain.Event{Type: t, NoteID: noteID, SubNoteID: child.ID, SubNote: &c})
}

func (s *SyncService) publishRemoved(noteID, subNoteID string) {
	s.events.Publish(domain.Event{Type: domain.EventSubNoteRemove, NoteID: noteID, SubNoteID: subNoteID})
}

func (s *SyncService) publishStatus() {
	st := s.Status()
	s.events.Publish(domain.Event{Type: domain.EventStatus, Status: &st})
}
