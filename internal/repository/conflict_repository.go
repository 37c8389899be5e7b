package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"hexanote-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// ConflictRepository is the side log of client edits discarded by server-wins
// resolution.
type ConflictRepository interface {
	Create(ctx context.Context, edit *domain.DiscardedEdit) error
	// List returns edits newest first. An empty deviceID lists every device.
	List(ctx context.Context, deviceID string) ([]*domain.DiscardedEdit, error)
}

const conflictDocType = "discarded_edit"

type conflictDoc struct {
	DocID         string              `json:"_id"`
	DocType       string              `json:"doc_type"`
	ID            string              `json:"id"`
	NoteID        string              `json:"note_id"`
	DeviceID      string              `json:"device_id"`
	Action        domain.SyncAction   `json:"action"`
	ClientVersion int64               `json:"client_version"`
	ServerVersion int64               `json:"server_version"`
	ClientData    *domain.NoteContent `json:"client_data,omitempty"`
	DetectedAt    time.Time           `json:"detected_at"`
}

type conflictRepo struct {
	db       *kivik.DB
	pageSize int
}

func NewConflictRepository(client *kivik.Client, dbName string) ConflictRepository {
	return &conflictRepo{
		db:       client.DB(dbName),
		pageSize: findPageSize,
	}
}

func (r *conflictRepo) Create(ctx context.Context, edit *domain.DiscardedEdit) error {
	doc := &conflictDoc{
		DocID:         fmt.Sprintf("conflict:%s", edit.ID),
		DocType:       conflictDocType,
		ID:            edit.ID,
		NoteID:        edit.NoteID,
		DeviceID:      edit.DeviceID,
		Action:        edit.Action,
		ClientVersion: edit.ClientVersion,
		ServerVersion: edit.ServerVersion,
		ClientData:    edit.ClientData,
		DetectedAt:    edit.DetectedAt,
	}

	if _, err := r.db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}

	return nil
}

func (r *conflictRepo) List(ctx context.Context, deviceID string) ([]*domain.DiscardedEdit, error) {
	selector := map[string]interface{}{
		"doc_type": conflictDocType,
	}
	if deviceID != "" {
		selector["device_id"] = deviceID
	}

	docs, err := findAll[conflictDoc](ctx, r.db, selector, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}

	edits := make([]*domain.DiscardedEdit, 0, len(docs))
	for _, doc := range docs {
		edits = append(edits, &domain.DiscardedEdit{
			ID:            doc.ID,
			NoteID:        doc.NoteID,
			DeviceID:      doc.DeviceID,
			Action:        doc.Action,
			ClientVersion: doc.ClientVersion,
			ServerVersion: doc.ServerVersion,
			ClientData:    doc.ClientData,
			DetectedAt:    doc.DetectedAt,
		})
	}

	sort.SliceStable(edits, func(i, j int) bool {
		return edits[i].DetectedAt.After(edits[j].DetectedAt)
	})
	return edits, nil
}
