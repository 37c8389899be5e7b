package domain

import (
	"strings"
	"time"
)

type Note struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	LastEditDevice string `json:"last_edit_device,omitempty"`
}

// IsDeleted reports whether the note is a tombstone.
func (n *Note) IsDeleted() bool {
	return n.DeletedAt != nil
}

// Clone returns a deep copy so callers can never alias ledger state.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	if n.Tags != nil {
		c.Tags = append(make([]string, 0, len(n.Tags)), n.Tags...)
	}
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// NoteContent is the writable part of a note. Nil fields are left untouched
// on update.
type NoteContent struct {
	Title   *string  `json:"title,omitempty" validate:"omitempty,max=500"`
	Content *string  `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Apply copies the non-nil fields of c onto n.
func (c *NoteContent) Apply(n *Note) {
	if c == nil {
		return
	}
	if c.Title != nil {
		n.Title = *c.Title
	}
	if c.Content != nil {
		n.Content = *c.Content
	}
	if c.Tags != nil {
		n.Tags = NormalizeTags(c.Tags)
	}
}

// IsEmpty reports whether c would leave a note unchanged.
func (c *NoteContent) IsEmpty() bool {
	return c == nil || (c.Title == nil && c.Content == nil && c.Tags == nil)
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type CreateNoteRequest struct {
	Title   string   `json:"title" validate:"required,min=1,max=500"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type UpdateNoteRequest struct {
	Title   string   `json:"title" validate:"required,min=1,max=500"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Version int64    `json:"version" validate:"required,min=1"`
}

type NoteListQuery struct {
	Page  int
	Limit int
	Tags  []string
}

type NoteListResponse struct {
	Notes []*Note `json:"notes"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ReindexResult reports a rebuild of the search index from the ledger.
type ReindexResult struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}
