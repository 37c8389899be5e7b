package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/repository"
	"hexanote-sync-server/internal/websocket"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type broadcast struct {
	device string
	msg    *websocket.Message
}

type fakeHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (h *fakeHub) SendToDevice(deviceID string, msg *websocket.Message) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, broadcast{device: deviceID, msg: msg})
	return 1, nil
}

func (h *fakeHub) messages() []broadcast {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]broadcast(nil), h.sent...)
}

type fakePresence struct {
	connected map[string]bool
}

func (p *fakePresence) ConnectedDevices() []string {
	var ids []string
	for id, ok := range p.connected {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (p *fakePresence) DeviceConnections(deviceID string) int {
	if p.connected[deviceID] {
		return 1
	}
	return 0
}

// watcher is a device the fixture keeps connected so pushes have somewhere
// to go.
const watcher = "watcher"

type fixture struct {
	clock        *stepClock
	notes        repository.NoteRepository
	deviceRepo   *repository.MemoryDeviceRepository
	conflictRepo *repository.MemoryConflictRepository
	hub          *fakeHub
	presence     *fakePresence
	devices      *DeviceService
	conflicts    *ConflictService
	sync         *SyncService
	noteService  *NoteService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithNotes(t, nil)
}

// newFixtureWithNotes lets a test wrap the in-memory ledger.
func newFixtureWithNotes(t *testing.T, wrap func(repository.NoteRepository) repository.NoteRepository) *fixture {
	t.Helper()

	clock := newStepClock()
	var notes repository.NoteRepository = repository.NewMemoryNoteRepositoryWithClock(clock.Now)
	if wrap != nil {
		notes = wrap(notes)
	}

	f := &fixture{
		clock:        clock,
		notes:        notes,
		deviceRepo:   repository.NewMemoryDeviceRepository(),
		conflictRepo: repository.NewMemoryConflictRepository(),
		hub:          &fakeHub{},
	}
	f.presence = &fakePresence{connected: map[string]bool{watcher: true}}
	f.devices = NewDeviceService(f.deviceRepo, f.presence)
	f.devices.now = clock.Now
	f.conflicts = NewConflictService(f.conflictRepo)
	f.conflicts.now = clock.Now

	broadcaster := NewBroadcaster(f.hub, f.devices)
	f.sync = NewSyncService(notes, f.devices, f.conflicts, broadcaster, SyncOptions{
		BatchTimeout:  5 * time.Second,
		MaxOperations: 100,
	})
	f.sync.now = clock.Now
	f.noteService = NewNoteService(notes, f.devices, f.conflicts, broadcaster)
	return f
}

func (f *fixture) register(t *testing.T, name string) string {
	t.Helper()
	device, err := f.devices.Register(context.Background(), &domain.RegisterDeviceRequest{
		Name:  name,
		Class: domain.DeviceClassDesktop,
	})
	require.NoError(t, err)
	return device.ID
}

func (f *fixture) syncBatch(t *testing.T, deviceID string, since time.Time, ops ...domain.NoteOperation) *domain.SyncBatchResult {
	t.Helper()
	result, err := f.sync.SyncBatch(context.Background(), &domain.SyncBatchRequest{
		DeviceID:          deviceID,
		LastSyncTimestamp: domain.Watermark{Time: since},
		Notes:             ops,
	})
	require.NoError(t, err)
	return result
}

func createOp(id, title string) domain.NoteOperation {
	return domain.NoteOperation{
		ID:     id,
		Action: domain.ActionCreate,
		Data:   &domain.NoteContent{Title: strPtr(title), Content: strPtr("# " + title)},
	}
}

func updateOp(id string, version int64, content string) domain.NoteOperation {
	return domain.NoteOperation{
		ID:      id,
		Version: version,
		Action:  domain.ActionUpdate,
		Data:    &domain.NoteContent{Content: strPtr(content)},
	}
}

func deleteOp(id string, version int64) domain.NoteOperation {
	return domain.NoteOperation{ID: id, Version: version, Action: domain.ActionDelete}
}

func noteIDs(notes []*domain.Note) []string {
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	return ids
}
