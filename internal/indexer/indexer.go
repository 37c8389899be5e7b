package indexer

import (
	"context"
	"log"
	"sync"
	"time"

	"hexanote-sync-server/internal/domain"

	"github.com/yuin/goldmark"
)

// Document is what the search index receives for one note version.
type Document struct {
	NoteID    string    `json:"note_id"`
	Version   int64     `json:"version"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	Chunks    []string  `json:"chunks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sink is the external search index.
type Sink interface {
	Index(ctx context.Context, doc *Document) error
	Remove(ctx context.Context, noteID string) error
}

type Options struct {
	QueueSize    int
	Timeout      time.Duration
	ChunkSize    int
	ChunkOverlap int
}

// Indexer hands committed notes to a Sink off the commit path. Notify never
// blocks: when the queue is full the note is dropped and logged, and the next
// commit of that note will enqueue it again.
type Indexer struct {
	sink  Sink
	queue chan *domain.Note
	md    goldmark.Markdown
	opts  Options

	closeOnce sync.Once
	closed    chan struct{}
}

func New(sink Sink, opts Options) *Indexer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1500
	}
	return &Indexer{
		sink:   sink,
		queue:  make(chan *domain.Note, opts.QueueSize),
		md:     goldmark.New(),
		opts:   opts,
		closed: make(chan struct{}),
	}
}

func (ix *Indexer) Notify(note *domain.Note) {
	select {
	case <-ix.closed:
		return
	default:
	}

	select {
	case ix.queue <- note:
	default:
		log.Printf("[Indexer] queue full, dropping note %s version %d", note.ID, note.Version)
	}
}

// Run drains the queue until ctx is done or Close is called.
func (ix *Indexer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ix.closed:
			return
		case note := <-ix.queue:
			ix.process(ctx, note)
		}
	}
}

func (ix *Indexer) Close() {
	ix.closeOnce.Do(func() { close(ix.closed) })
}

func (ix *Indexer) process(ctx context.Context, note *domain.Note) {
	if err := ix.apply(ctx, note); err != nil {
		log.Printf("[Indexer] failed to index note %s: %v", note.ID, err)
	}
}

// apply sends one note to the sink: tombstones are removed, live notes
// indexed.
func (ix *Indexer) apply(ctx context.Context, note *domain.Note) error {
	ctx, cancel := context.WithTimeout(ctx, ix.opts.Timeout)
	defer cancel()

	if note.IsDeleted() {
		return ix.sink.Remove(ctx, note.ID)
	}
	return ix.sink.Index(ctx, ix.Document(note))
}

// Reindex pushes every given note to the sink directly, bypassing the queue,
// and reports how many made it. It stops early only when ctx is done.
func (ix *Indexer) Reindex(ctx context.Context, notes []*domain.Note) (*domain.ReindexResult, error) {
	res := &domain.ReindexResult{Total: len(notes)}
	for _, note := range notes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := ix.apply(ctx, note); err != nil {
			log.Printf("[Indexer] reindex: note %s: %v", note.ID, err)
			res.Errors++
			continue
		}
		res.Success++
	}
	log.Printf("[Indexer] reindexed %d/%d notes (%d errors)", res.Success, res.Total, res.Errors)
	return res, nil
}

// Document builds the index payload for a live note.
func (ix *Indexer) Document(note *domain.Note) *Document {
	body := PlainText(ix.md, note.Content)
	if note.Title != "" {
		body = note.Title + "\n\n" + body
	}

	chunks := Chunk(body, ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	if chunks == nil {
		chunks = []string{}
	}
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}

	return &Document{
		NoteID:    note.ID,
		Version:   note.Version,
		Title:     note.Title,
		Tags:      tags,
		Chunks:    chunks,
		UpdatedAt: note.UpdatedAt,
	}
}
