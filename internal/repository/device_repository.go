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

type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	FindByID(ctx context.Context, id string) (*domain.Device, error)
	List(ctx context.Context) ([]*domain.Device, error)
	// UpdateLastSync moves last_sync_at forward; older timestamps are ignored.
	UpdateLastSync(ctx context.Context, id string, ts time.Time) error
}

const deviceDocType = "device"

type deviceDoc struct {
	DocID      string             `json:"_id"`
	Rev        string             `json:"_rev,omitempty"`
	DocType    string             `json:"doc_type"`
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Class      domain.DeviceClass `json:"class"`
	LastSyncAt *time.Time         `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func deviceDocID(id string) string {
	return fmt.Sprintf("device:%s", id)
}

func (d *deviceDoc) toDevice() *domain.Device {
	return &domain.Device{
		ID:         d.ID,
		Name:       d.Name,
		Class:      d.Class,
		LastSyncAt: d.LastSyncAt,
		CreatedAt:  d.CreatedAt,
	}
}

func sortDevices(devices []*domain.Device) {
	sort.Slice(devices, func(i, j int) bool {
		if !devices[i].CreatedAt.Equal(devices[j].CreatedAt) {
			return devices[i].CreatedAt.Before(devices[j].CreatedAt)
		}
		return devices[i].ID < devices[j].ID
	})
}

type deviceRepository struct {
	db       *kivik.DB
	pageSize int
}

func NewDeviceRepository(client *kivik.Client, dbName string) DeviceRepository {
	return &deviceRepository{
		db:       client.DB(dbName),
		pageSize: findPageSize,
	}
}

func (r *deviceRepository) Create(ctx context.Context, device *domain.Device) error {
	doc := &deviceDoc{
		DocID:      deviceDocID(device.ID),
		DocType:    deviceDocType,
		ID:         device.ID,
		Name:       device.Name,
		Class:      device.Class,
		LastSyncAt: device.LastSyncAt,
		CreatedAt:  device.CreatedAt,
	}

	if _, err := r.db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

func (r *deviceRepository) get(ctx context.Context, id string) (*deviceDoc, error) {
	var doc deviceDoc
	if err := r.db.Get(ctx, deviceDocID(id)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	return &doc, nil
}

func (r *deviceRepository) FindByID(ctx context.Context, id string) (*domain.Device, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDevice(), nil
}

func (r *deviceRepository) List(ctx context.Context) ([]*domain.Device, error) {
	docs, err := findAll[deviceDoc](ctx, r.db, map[string]interface{}{
		"doc_type": deviceDocType,
	}, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]*domain.Device, 0, len(docs))
	for i := range docs {
		devices = append(devices, docs[i].toDevice())
	}

	sortDevices(devices)
	return devices, nil
}

func (r *deviceRepository) UpdateLastSync(ctx context.Context, id string, ts time.Time) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		doc, err := r.get(ctx, id)
		if err != nil {
			return err
		}
		if doc.LastSyncAt != nil && !ts.After(*doc.LastSyncAt) {
			return nil
		}

		doc.LastSyncAt = &ts
		_, err = r.db.Put(ctx, doc.DocID, doc)
		if err == nil {
			return nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return fmt.Errorf("failed to update last sync: %w", err)
		}
	}

	return fmt.Errorf("failed to update last sync for device %s: %w", id, ErrRevisionConflict)
}
