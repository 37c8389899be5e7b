package service

import (
	"context"
	"log"
	"time"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/repository"

	"github.com/google/uuid"
)

// ConflictService keeps the client edits that lost to the server copy so they
// can be recovered by hand.
type ConflictService struct {
	conflictRepo repository.ConflictRepository
	now          func() time.Time
}

func NewConflictService(conflictRepo repository.ConflictRepository) *ConflictService {
	return &ConflictService{
		conflictRepo: conflictRepo,
		now:          time.Now,
	}
}

// LostEdit pairs a rejected client operation with the conflict it produced.
type LostEdit struct {
	Op       domain.NoteOperation
	Conflict domain.SyncConflict
}

// Record stores one discarded edit per lost operation. It is best effort: a
// failed write is logged and the rest are still recorded.
func (s *ConflictService) Record(ctx context.Context, deviceID string, lost []LostEdit) {
	if s == nil || len(lost) == 0 {
		return
	}

	detectedAt := s.now().UTC()
	for _, l := range lost {
		edit := &domain.DiscardedEdit{
			ID:            uuid.New().String(),
			NoteID:        l.Conflict.NoteID,
			DeviceID:      deviceID,
			Action:        l.Op.Action,
			ClientVersion: l.Conflict.ClientVersion,
			ServerVersion: l.Conflict.ServerVersion,
			ClientData:    l.Op.Data,
			DetectedAt:    detectedAt,
		}
		if err := s.conflictRepo.Create(ctx, edit); err != nil {
			log.Printf("[Conflict] failed to record discarded edit for note %s: %v", edit.NoteID, err)
		}
	}
}

func (s *ConflictService) List(ctx context.Context, deviceID string) ([]*domain.DiscardedEdit, error) {
	edits, err := s.conflictRepo.List(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if edits == nil {
		edits = []*domain.DiscardedEdit{}
	}
	return edits, nil
}
