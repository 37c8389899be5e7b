package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/repository"
)

type SyncOptions struct {
	BatchTimeout  time.Duration
	MaxOperations int
	// CommitSkew holds the returned watermark back from the listing time. A
	// store whose writes are stamped before they become visible to queries
	// needs it to be at least that lag; the overlap is re-sent next sync.
	CommitSkew time.Duration
}

// SyncService coordinates one sync batch: it resolves and commits the
// device's operations, computes what the device is missing, advances its
// watermark and fans the committed notes out to the other devices.
type SyncService struct {
	notes       repository.NoteRepository
	devices     *DeviceService
	conflicts   *ConflictService
	broadcaster *Broadcaster
	opts        SyncOptions
	now         func() time.Time
}

func NewSyncService(
	notes repository.NoteRepository,
	devices *DeviceService,
	conflicts *ConflictService,
	broadcaster *Broadcaster,
	opts SyncOptions,
) *SyncService {
	return &SyncService{
		notes:       notes,
		devices:     devices,
		conflicts:   conflicts,
		broadcaster: broadcaster,
		opts:        opts,
		now:         time.Now,
	}
}

// batch is the per-call state of SyncBatch.
type batch struct {
	deviceID  string
	committed []*domain.Note
	// written maps note id to the version this device now holds.
	written map[string]int64
	lost    []LostEdit
	result  *domain.SyncBatchResult
}

func (s *SyncService) SyncBatch(ctx context.Context, req *domain.SyncBatchRequest) (*domain.SyncBatchResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	known, err := s.devices.IsKnown(ctx, req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}
	if !known {
		return nil, ErrUnknownDevice
	}

	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	b := &batch{
		deviceID: req.DeviceID,
		written:  make(map[string]int64),
		result: &domain.SyncBatchResult{
			NotesToUpdate: []*domain.Note{},
			NotesToDelete: []string{},
			Conflicts:     []domain.SyncConflict{},
			Applied:       []domain.AppliedOperation{},
		},
	}
	// Whatever was committed stays committed, so it is published and its
	// losers recorded even when the batch fails part way.
	defer s.finish(ctx, b)

	for i := range req.Notes {
		if err := s.applyOperation(ctx, b, &req.Notes[i]); err != nil {
			return nil, s.batchError(err)
		}
	}

	serverTime := s.now().UTC()
	changed, err := s.notes.ListChangedSince(ctx, req.LastSyncTimestamp.Time)
	if err != nil {
		return nil, s.batchError(err)
	}

	for _, note := range changed {
		if v, ok := b.written[note.ID]; ok && v == note.Version {
			continue
		}
		if note.IsDeleted() {
			b.result.NotesToDelete = append(b.result.NotesToDelete, note.ID)
		} else {
			b.result.NotesToUpdate = append(b.result.NotesToUpdate, note)
		}
	}

	watermark := s.watermark(serverTime)
	if err := s.devices.Touch(ctx, req.DeviceID, watermark); err != nil {
		log.Printf("[Sync] failed to advance watermark for device %s: %v", req.DeviceID, err)
	}

	b.result.ServerTimestamp = watermark
	log.Printf("[Sync] device %s: %d ops, %d applied, %d conflicts, %d to update, %d to delete",
		req.DeviceID, len(req.Notes), len(b.result.Applied), len(b.result.Conflicts),
		len(b.result.NotesToUpdate), len(b.result.NotesToDelete))

	return b.result, nil
}

// watermark is the point the next catch-up for this device starts from.
func (s *SyncService) watermark(serverTime time.Time) time.Time {
	if s.opts.CommitSkew <= 0 {
		return serverTime
	}
	return serverTime.Add(-s.opts.CommitSkew)
}

func (s *SyncService) applyOperation(ctx context.Context, b *batch, op *domain.NoteOperation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var current *domain.Note
	if op.ID != "" {
		note, err := s.notes.FindByID(ctx, op.ID)
		switch {
		case err == nil:
			current = note
		case errors.Is(err, repository.ErrNoteNotFound):
		default:
			return err
		}
	}

	switch Resolve(op, current) {
	case DecisionNoop:
		b.written[current.ID] = current.Version
		b.result.Applied = append(b.result.Applied, domain.AppliedOperation{
			NoteID:  current.ID,
			Action:  op.Action,
			Version: current.Version,
		})
		return nil

	case DecisionConflict:
		b.conflict(op, current)
		return nil
	}

	note, err := s.commit(ctx, op, b.deviceID)
	var vc *repository.VersionConflictError
	switch {
	case errors.As(err, &vc):
		// Another writer got there between the read and the commit.
		b.conflict(op, vc.Current)
		return nil
	case errors.Is(err, repository.ErrNoteNotFound):
		b.conflict(op, nil)
		return nil
	case err != nil:
		return err
	}

	b.committed = append(b.committed, note)
	b.written[note.ID] = note.Version
	b.result.Applied = append(b.result.Applied, domain.AppliedOperation{
		NoteID:  note.ID,
		Action:  op.Action,
		Version: note.Version,
	})
	return nil
}

func (s *SyncService) commit(ctx context.Context, op *domain.NoteOperation, deviceID string) (*domain.Note, error) {
	switch op.Action {
	case domain.ActionCreate:
		return s.notes.Create(ctx, op.ID, op.Data, deviceID)
	case domain.ActionDelete:
		return s.notes.Commit(ctx, op.ID, op.Version, repository.NoteChange{Delete: true, DeviceID: deviceID})
	default:
		return s.notes.Commit(ctx, op.ID, op.Version, repository.NoteChange{Content: op.Data, DeviceID: deviceID})
	}
}

func (b *batch) conflict(op *domain.NoteOperation, current *domain.Note) {
	c := conflictFor(op, current)
	b.result.Conflicts = append(b.result.Conflicts, c)
	b.lost = append(b.lost, LostEdit{Op: *op, Conflict: c})
}

func (s *SyncService) finish(ctx context.Context, b *batch) {
	s.broadcaster.Publish(b.committed, b.deviceID)
	s.conflicts.Record(context.WithoutCancel(ctx), b.deviceID, b.lost)
}

func (s *SyncService) batchError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrBatchDeadline
	}
	return err
}

func (s *SyncService) validate(req *domain.SyncBatchRequest) error {
	if req.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}
	if s.opts.MaxOperations > 0 && len(req.Notes) > s.opts.MaxOperations {
		return fmt.Errorf("%w: batch has %d operations, limit is %d", ErrInvalidRequest, len(req.Notes), s.opts.MaxOperations)
	}
	for i, op := range req.Notes {
		switch op.Action {
		case domain.ActionCreate:
			if op.Data == nil {
				return fmt.Errorf("%w: operation %d: create requires data", ErrInvalidRequest, i)
			}
		case domain.ActionUpdate, domain.ActionDelete:
			if op.ID == "" {
				return fmt.Errorf("%w: operation %d: %s requires an id", ErrInvalidRequest, i, op.Action)
			}
		default:
			return fmt.Errorf("%w: operation %d: unknown action %q", ErrInvalidRequest, i, op.Action)
		}
	}
	return nil
}

// Status reports how many notes changed since the device last synced.
func (s *SyncService) Status(ctx context.Context, deviceID string) (*domain.SyncStatusResponse, error) {
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var since time.Time
	if device.LastSyncAt != nil {
		since = *device.LastSyncAt
	}

	changed, err := s.notes.ListChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}

	pending := 0
	for _, note := range changed {
		if note.LastEditDevice != deviceID {
			pending++
		}
	}

	status := domain.SyncStatusSynced
	if pending > 0 {
		status = domain.SyncStatusPending
	}

	return &domain.SyncStatusResponse{
		DeviceID:     deviceID,
		LastSync:     device.LastSyncAt,
		PendingCount: pending,
		Status:       status,
	}, nil
}
