package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"hexanote-sync-server/internal/domain"

	"github.com/google/uuid"
)

func newUUID() string {
	return uuid.New().String()
}

type noteEntry struct {
	mu   sync.Mutex
	note *domain.Note
}

// MemoryNoteRepository keeps the ledger in process. Each note has its own
// lock, so commits to different notes never serialise on each other.
type MemoryNoteRepository struct {
	mu    sync.RWMutex
	notes map[string]*noteEntry
	now   func() time.Time
	newID func() string
}

func NewMemoryNoteRepository() *MemoryNoteRepository {
	return NewMemoryNoteRepositoryWithClock(func() time.Time { return time.Now().UTC() })
}

func NewMemoryNoteRepositoryWithClock(now func() time.Time) *MemoryNoteRepository {
	return &MemoryNoteRepository{
		notes: make(map[string]*noteEntry),
		now:   now,
		newID: newUUID,
	}
}

func (r *MemoryNoteRepository) entry(id string) (*noteEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.notes[id]
	return e, ok
}

func (r *MemoryNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, ErrNoteNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.note.Clone(), nil
}

func (r *MemoryNoteRepository) Create(ctx context.Context, id string, content *domain.NoteContent, deviceID string) (*domain.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		id = r.newID()
	}

	r.mu.Lock()
	if existing, ok := r.notes[id]; ok {
		r.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return nil, &VersionConflictError{Expected: 0, Current: existing.note.Clone()}
	}
	note := newNote(id, content, deviceID, r.now())
	r.notes[id] = &noteEntry{note: note}
	r.mu.Unlock()

	return note.Clone(), nil
}

func (r *MemoryNoteRepository) Commit(ctx context.Context, id string, expectedVersion int64, change NoteChange) (*domain.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := r.entry(id)
	if !ok {
		return nil, ErrNoteNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.note.Version != expectedVersion {
		return nil, &VersionConflictError{Expected: expectedVersion, Current: e.note.Clone()}
	}

	next := e.note.Clone()
	change.apply(next, r.now())
	e.note = next

	return next.Clone(), nil
}

func (r *MemoryNoteRepository) ListChangedSince(ctx context.Context, since time.Time) ([]*domain.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entries := make([]*noteEntry, 0, len(r.notes))
	for _, e := range r.notes {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var notes []*domain.Note
	for _, e := range entries {
		e.mu.Lock()
		if e.note.UpdatedAt.After(since) {
			notes = append(notes, e.note.Clone())
		}
		e.mu.Unlock()
	}

	sortByUpdated(notes)
	return notes, nil
}

// MemoryDeviceRepository is the in-process device store.
type MemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*domain.Device
}

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{devices: make(map[string]*domain.Device)}
}

func (r *MemoryDeviceRepository) Create(ctx context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := *device
	r.devices[device.ID] = &d
	return nil
}

func (r *MemoryDeviceRepository) FindByID(ctx context.Context, id string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	c := *d
	return &c, nil
}

func (r *MemoryDeviceRepository) List(ctx context.Context) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	devices := make([]*domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		c := *d
		devices = append(devices, &c)
	}
	sortDevices(devices)
	return devices, nil
}

func (r *MemoryDeviceRepository) UpdateLastSync(ctx context.Context, id string, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	if d.LastSyncAt == nil || ts.After(*d.LastSyncAt) {
		d.LastSyncAt = &ts
	}
	return nil
}

// MemoryConflictRepository keeps discarded edits in process.
type MemoryConflictRepository struct {
	mu    sync.RWMutex
	edits []*domain.DiscardedEdit
}

func NewMemoryConflictRepository() *MemoryConflictRepository {
	return &MemoryConflictRepository{}
}

func (r *MemoryConflictRepository) Create(ctx context.Context, edit *domain.DiscardedEdit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *edit
	r.edits = append(r.edits, &e)
	return nil
}

func (r *MemoryConflictRepository) List(ctx context.Context, deviceID string) ([]*domain.DiscardedEdit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DiscardedEdit
	for _, e := range r.edits {
		if deviceID != "" && e.DeviceID != deviceID {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}
