package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/repository"
)

const (
	defaultNoteLimit = 50
	maxNoteLimit     = 100
)

// NoteService is the single-note write path. It goes through the same ledger
// create/commit calls as a sync batch and publishes what it writes.
type NoteService struct {
	repo        repository.NoteRepository
	devices     *DeviceService
	conflicts   *ConflictService
	broadcaster *Broadcaster
	indexer     Reindexer
}

// Reindexer rebuilds the search index from a full set of notes.
type Reindexer interface {
	Reindex(ctx context.Context, notes []*domain.Note) (*domain.ReindexResult, error)
}

func NewNoteService(
	repo repository.NoteRepository,
	devices *DeviceService,
	conflicts *ConflictService,
	broadcaster *Broadcaster,
) *NoteService {
	return &NoteService{
		repo:        repo,
		devices:     devices,
		conflicts:   conflicts,
		broadcaster: broadcaster,
	}
}

func (s *NoteService) SetIndexer(ix Reindexer) {
	s.indexer = ix
}

// Reindex hands every note in the ledger, tombstones included, to the
// indexer so the search index matches storage again.
func (s *NoteService) Reindex(ctx context.Context) (*domain.ReindexResult, error) {
	if s.indexer == nil {
		return nil, ErrNoIndexer
	}
	all, err := s.repo.ListChangedSince(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	return s.indexer.Reindex(ctx, all)
}

// checkDevice accepts an empty device id; a non-empty one must be registered.
func (s *NoteService) checkDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" || s.devices == nil {
		return nil
	}
	known, err := s.devices.IsKnown(ctx, deviceID)
	if err != nil {
		return err
	}
	if !known {
		return ErrUnknownDevice
	}
	return nil
}

func (s *NoteService) Create(ctx context.Context, deviceID string, req *domain.CreateNoteRequest) (*domain.Note, error) {
	if err := s.checkDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	note, err := s.repo.Create(ctx, "", &domain.NoteContent{
		Title:   &req.Title,
		Content: &req.Content,
		Tags:    tags,
	}, deviceID)
	if err != nil {
		return nil, err
	}

	s.broadcaster.Publish([]*domain.Note{note}, deviceID)
	return note, nil
}

// GetByID hides tombstones behind ErrNoteNotFound.
func (s *NoteService) GetByID(ctx context.Context, noteID string) (*domain.Note, error) {
	note, err := s.repo.FindByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.IsDeleted() {
		return nil, repository.ErrNoteNotFound
	}
	return note, nil
}

func (s *NoteService) List(ctx context.Context, query *domain.NoteListQuery) (*domain.NoteListResponse, error) {
	page, limit := query.Page, query.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultNoteLimit
	}
	if limit > maxNoteLimit {
		limit = maxNoteLimit
	}

	live, err := s.live(ctx)
	if err != nil {
		return nil, err
	}

	filter := domain.NormalizeTags(query.Tags)
	matched := make([]*domain.Note, 0, len(live))
	for _, note := range live {
		if hasAllTags(note, filter) {
			matched = append(matched, note)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return &domain.NoteListResponse{
		Notes: matched[start:end],
		Total: len(matched),
		Page:  page,
		Limit: limit,
	}, nil
}

// Tags counts the tags in use across live notes, sorted by tag.
func (s *NoteService) Tags(ctx context.Context) ([]domain.TagCount, error) {
	live, err := s.live(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, note := range live {
		for _, tag := range note.Tags {
			counts[tag]++
		}
	}

	tags := make([]domain.TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, domain.TagCount{Tag: tag, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Tag < tags[j].Tag })
	return tags, nil
}

func (s *NoteService) Update(ctx context.Context, deviceID, noteID string, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	if err := s.checkDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	op := domain.NoteOperation{
		ID:      noteID,
		Version: req.Version,
		Action:  domain.ActionUpdate,
		Data:    &domain.NoteContent{Title: &req.Title, Content: &req.Content, Tags: tags},
	}
	return s.write(ctx, deviceID, op, repository.NoteChange{Content: op.Data, DeviceID: deviceID})
}

// Delete tombstones the note. A zero version deletes whatever version is
// current; the commit is still version checked.
func (s *NoteService) Delete(ctx context.Context, deviceID, noteID string, version int64) (*domain.Note, error) {
	if err := s.checkDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	if version == 0 {
		current, err := s.GetByID(ctx, noteID)
		if err != nil {
			return nil, err
		}
		version = current.Version
	}

	op := domain.NoteOperation{ID: noteID, Version: version, Action: domain.ActionDelete}
	return s.write(ctx, deviceID, op, repository.NoteChange{Delete: true, DeviceID: deviceID})
}

func (s *NoteService) write(ctx context.Context, deviceID string, op domain.NoteOperation, change repository.NoteChange) (*domain.Note, error) {
	current, err := s.repo.FindByID(ctx, op.ID)
	if err != nil {
		return nil, err
	}
	if current.IsDeleted() {
		return nil, repository.ErrNoteNotFound
	}

	if Resolve(&op, current) == DecisionConflict {
		return nil, s.conflict(ctx, deviceID, op, current)
	}

	note, err := s.repo.Commit(ctx, op.ID, op.Version, change)
	var vc *repository.VersionConflictError
	if errors.As(err, &vc) {
		return nil, s.conflict(ctx, deviceID, op, vc.Current)
	}
	if err != nil {
		return nil, err
	}

	s.broadcaster.Publish([]*domain.Note{note}, deviceID)
	return note, nil
}

func (s *NoteService) conflict(ctx context.Context, deviceID string, op domain.NoteOperation, current *domain.Note) error {
	c := conflictFor(&op, current)
	s.conflicts.Record(ctx, deviceID, []LostEdit{{Op: op, Conflict: c}})
	return &ConflictError{Conflict: &c}
}

func (s *NoteService) live(ctx context.Context) ([]*domain.Note, error) {
	all, err := s.repo.ListChangedSince(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	live := make([]*domain.Note, 0, len(all))
	for _, note := range all {
		if !note.IsDeleted() {
			live = append(live, note)
		}
	}
	return live, nil
}

func hasAllTags(note *domain.Note, want []string) bool {
	for _, w := range want {
		found := false
		for _, t := range note.Tags {
			if t == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
