package repository

import (
	"context"
	"fmt"
	"net/http"

	"enotebook-sync/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const outboxDocType = "outbox_entry"

// OutboxRepository journals queued sub-note mutations in CouchDB so they
// survive a restart. It satisfies outbox.Journal.
type OutboxRepository interface {
	Save(entry domain.OutboxEntry) error
	Remove(noteID, subNoteID string) error
	Load() ([]domain.OutboxEntry, error)
}

type outboxRepository struct {
	client *kivik.Client
	dbName string
}

type outboxDoc struct {
	ID   string `json:"_id"`
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.OutboxEntry
}

func NewOutboxRepository(client *kivik.Client, dbName string) OutboxRepository {
	return &outboxRepository{
		client: client,
		dbName: dbName,
	}
}

// Connect opens the CouchDB server at url and creates dbName when missing.
func Connect(ctx context.Context, url, dbName string) (*kivik.Client, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	return client, nil
}

func outboxDocID(noteID, subNoteID string) string {
	return fmt.Sprintf("outbox:%s:%s", noteID, subNoteID)
}

func (r *outboxRepository) Save(entry domain.OutboxEntry) error {
	db := r.client.DB(r.dbName)
	docID := outboxDocID(entry.NoteID, entry.SubNoteID)

	rev, err := r.currentRev(db, docID)
	if err != nil {
		return err
	}

	doc := outboxDoc{ID: docID, Rev: rev, Type: outboxDocType, OutboxEntry: entry}
	if _, err := db.Put(context.Background(), docID, doc); err != nil {
		return fmt.Errorf("failed to save outbox entry: %w", err)
	}
	return nil
}

func (r *outboxRepository) Remove(noteID, subNoteID string) error {
	db := r.client.DB(r.dbName)
	docID := outboxDocID(noteID, subNoteID)

	rev, err := r.currentRev(db, docID)
	if err != nil {
		return err
	}
	if rev == "" {
		return nil
	}

	if _, err := db.Delete(context.Background(), docID, rev); err != nil && kivik.HTTPStatus(err) != http.StatusNotFound {
		return fmt.Errorf("failed to remove outbox entry: %w", err)
	}
	return nil
}

func (r *outboxRepository) Load() ([]domain.OutboxEntry, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type": outboxDocType,
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}
	defer rows.Close()

	var entries []domain.OutboxEntry
	for rows.Next() {
		var doc outboxDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		entries = append(entries, doc.OutboxEntry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}

	return entries, nil
}

// currentRev returns "" when the document does not exist.
func (r *outboxRepository) currentRev(db *kivik.DB, docID string) (string, error) {
	var existing struct {
		Rev string `json:"_rev"`
	}
	err := db.Get(context.Background(), docID).ScanDoc(&existing)
	switch {
	case err == nil:
		return existing.Rev, nil
	case kivik.HTTPStatus(err) == http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("failed to read outbox entry: %w", err)
	}
}
