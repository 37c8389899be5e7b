package repository

import (
	"context"

	"hexanote-sync-server/internal/domain"
)

// CommitNotifier receives every note the ledger successfully writes. Notify
// must not block; it is called on the commit path.
type CommitNotifier interface {
	Notify(note *domain.Note)
}

type notifyingNoteRepository struct {
	NoteRepository
	notifier CommitNotifier
}

// WithCommitNotifier wraps repo so that each successful Create or Commit is
// handed to notifier. Notifier failures cannot reach the caller.
func WithCommitNotifier(repo NoteRepository, notifier CommitNotifier) NoteRepository {
	if notifier == nil {
		return repo
	}
	return &notifyingNoteRepository{NoteRepository: repo, notifier: notifier}
}

func (r *notifyingNoteRepository) Create(ctx context.Context, id string, content *domain.NoteContent, deviceID string) (*domain.Note, error) {
	note, err := r.NoteRepository.Create(ctx, id, content, deviceID)
	if err != nil {
		return nil, err
	}
	r.notifier.Notify(note.Clone())
	return note, nil
}

func (r *notifyingNoteRepository) Commit(ctx context.Context, id string, expectedVersion int64, change NoteChange) (*domain.Note, error) {
	note, err := r.NoteRepository.Commit(ctx, id, expectedVersion, change)
	if err != nil {
		return nil, err
	}
	r.notifier.Notify(note.Clone())
	return note, nil
}
