package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"hexanote-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// NoteRepository is the version ledger. It is the only writer of notes.
type NoteRepository interface {
	// FindByID returns the note including tombstones, or ErrNoteNotFound.
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	// Create stores a new note at version 1. An empty id allocates one. If the
	// id is already taken a *VersionConflictError carrying the stored note is
	// returned.
	Create(ctx context.Context, id string, content *domain.NoteContent, deviceID string) (*domain.Note, error)
	// Commit atomically checks the stored version against expectedVersion and,
	// on a match, applies change and increments the version by one.
	Commit(ctx context.Context, id string, expectedVersion int64, change NoteChange) (*domain.Note, error)
	// ListChangedSince returns every note, tombstones included, with
	// updated_at strictly after since, ordered by updated_at then id.
	ListChangedSince(ctx context.Context, since time.Time) ([]*domain.Note, error)
}

type NoteChange struct {
	Content  *domain.NoteContent
	Delete   bool
	DeviceID string
}

// apply mutates n in place for an accepted commit stamped at now.
func (c NoteChange) apply(n *domain.Note, now time.Time) {
	if now.Before(n.UpdatedAt) {
		now = n.UpdatedAt
	}
	if c.Delete {
		deletedAt := now
		n.DeletedAt = &deletedAt
	} else {
		c.Content.Apply(n)
	}
	n.Version++
	n.UpdatedAt = now
	n.LastEditDevice = c.DeviceID
}

func newNote(id string, content *domain.NoteContent, deviceID string, now time.Time) *domain.Note {
	n := &domain.Note{
		ID:             id,
		Tags:           []string{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastEditDevice: deviceID,
	}
	content.Apply(n)
	return n
}

func sortByUpdated(notes []*domain.Note) {
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].UpdatedAt.Before(notes[j].UpdatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
}

const (
	noteDocType    = "note"
	maxCASAttempts = 5
)

type noteDoc struct {
	DocID          string     `json:"_id"`
	Rev            string     `json:"_rev,omitempty"`
	DocType        string     `json:"doc_type"`
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Tags           []string   `json:"tags"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	UpdatedNs      int64      `json:"updated_ns"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	LastEditDevice string     `json:"last_edit_device,omitempty"`
}

func noteDocID(id string) string {
	return fmt.Sprintf("note:%s", id)
}

func toNoteDoc(n *domain.Note, rev string) *noteDoc {
	return &noteDoc{
		DocID:          noteDocID(n.ID),
		Rev:            rev,
		DocType:        noteDocType,
		ID:             n.ID,
		Title:          n.Title,
		Content:        n.Content,
		Tags:           n.Tags,
		Version:        n.Version,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
		UpdatedNs:      unixNano(n.UpdatedAt),
		DeletedAt:      n.DeletedAt,
		LastEditDevice: n.LastEditDevice,
	}
}

func (d *noteDoc) toNote() *domain.Note {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &domain.Note{
		ID:             d.ID,
		Title:          d.Title,
		Content:        d.Content,
		Tags:           tags,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		DeletedAt:      d.DeletedAt,
		LastEditDevice: d.LastEditDevice,
	}
}

// unixNano maps times before the epoch (including the zero time) to -1 so
// "since the beginning" range queries stay well defined.
func unixNano(t time.Time) int64 {
	if t.Before(time.Unix(0, 0)) {
		return -1
	}
	return t.UnixNano()
}

type noteRepository struct {
	db       *kivik.DB
	now      func() time.Time
	newID    func() string
	pageSize int
}

// NewNoteRepository returns a CouchDB-backed ledger. CouchDB's document
// revisions provide the per-note compare-and-swap.
func NewNoteRepository(client *kivik.Client, dbName string) NoteRepository {
	return &noteRepository{
		db:       client.DB(dbName),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newUUID,
		pageSize: findPageSize,
	}
}

func (r *noteRepository) get(ctx context.Context, id string) (*noteDoc, error) {
	var doc noteDoc
	if err := r.db.Get(ctx, noteDocID(id)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return &doc, nil
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toNote(), nil
}

func (r *noteRepository) Create(ctx context.Context, id string, content *domain.NoteContent, deviceID string) (*domain.Note, error) {
	if id == "" {
		id = r.newID()
	}
	note := newNote(id, content, deviceID, r.now())

	_, err := r.db.Put(ctx, noteDocID(id), toNoteDoc(note, ""))
	if err == nil {
		return note, nil
	}
	if kivik.HTTPStatus(err) == http.StatusConflict {
		existing, findErr := r.FindByID(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		return nil, &VersionConflictError{Expected: 0, Current: existing}
	}
	return nil, fmt.Errorf("failed to create note: %w", err)
}

func (r *noteRepository) Commit(ctx context.Context, id string, expectedVersion int64, change NoteChange) (*domain.Note, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}

		note := doc.toNote()
		if note.Version != expectedVersion {
			return nil, &VersionConflictError{Expected: expectedVersion, Current: note}
		}

		change.apply(note, r.now())

		_, err = r.db.Put(ctx, doc.DocID, toNoteDoc(note, doc.Rev))
		if err == nil {
			return note, nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return nil, fmt.Errorf("failed to commit note: %w", err)
		}
		// Lost the revision race; the re-read reports the winner.
	}

	return nil, fmt.Errorf("failed to commit note %s: %w", id, ErrRevisionConflict)
}

func (r *noteRepository) ListChangedSince(ctx context.Context, since time.Time) ([]*domain.Note, error) {
	docs, err := findAll[noteDoc](ctx, r.db, map[string]interface{}{
		"doc_type":   noteDocType,
		"updated_ns": map[string]interface{}{"$gt": unixNano(since)},
	}, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed notes: %w", err)
	}

	notes := make([]*domain.Note, 0, len(docs))
	for i := range docs {
		notes = append(notes, docs[i].toNote())
	}
	sortByUpdated(notes)
	return notes, nil
}
