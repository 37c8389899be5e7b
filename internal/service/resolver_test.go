package service

import (
	"testing"
	"time"

	"hexanote-sync-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestResolve(t *testing.T) {
	deletedAt := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	live := &domain.Note{ID: "n1", Version: 3}
	tombstone := &domain.Note{ID: "n1", Version: 4, DeletedAt: &deletedAt}

	tests := []struct {
		name    string
		op      domain.NoteOperation
		current *domain.Note
		want    Decision
	}{
		{"create new", createOp("n1", "a"), nil, DecisionAccept},
		{"create over existing", createOp("n1", "a"), live, DecisionConflict},
		{"update matching", updateOp("n1", 3, "x"), live, DecisionAccept},
		{"update stale", updateOp("n1", 2, "x"), live, DecisionConflict},
		{"update ahead", updateOp("n1", 9, "x"), live, DecisionConflict},
		{"update missing", updateOp("n1", 1, "x"), nil, DecisionConflict},
		{"update tombstone", updateOp("n1", 4, "x"), tombstone, DecisionConflict},
		{"update empty", domain.NoteOperation{ID: "n1", Version: 3, Action: domain.ActionUpdate}, live, DecisionNoop},
		{"update empty stale", domain.NoteOperation{ID: "n1", Version: 1, Action: domain.ActionUpdate}, live, DecisionConflict},
		{"delete matching", deleteOp("n1", 3), live, DecisionAccept},
		{"delete stale", deleteOp("n1", 1), live, DecisionConflict},
		{"delete missing", deleteOp("n1", 0), nil, DecisionConflict},
		{"delete tombstone", deleteOp("n1", 4), tombstone, DecisionConflict},
		{"unknown action", domain.NoteOperation{ID: "n1", Version: 3, Action: "merge"}, live, DecisionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(&tt.op, tt.current))
		})
	}
}

func TestResolveProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		action := rapid.SampledFrom([]domain.SyncAction{
			domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete,
		}).Draw(t, "action")
		op := domain.NoteOperation{
			ID:      "n",
			Version: rapid.Int64Range(0, 5).Draw(t, "claimed"),
			Action:  action,
		}
		if rapid.Bool().Draw(t, "hasData") {
			op.Data = &domain.NoteContent{Content: strPtr("body")}
		}

		var current *domain.Note
		if rapid.Bool().Draw(t, "exists") {
			current = &domain.Note{ID: "n", Version: rapid.Int64Range(1, 5).Draw(t, "server")}
			if rapid.Bool().Draw(t, "deleted") {
				now := time.Now()
				current.DeletedAt = &now
			}
		}

		got := Resolve(&op, current)

		switch got {
		case DecisionAccept:
			if action == domain.ActionCreate {
				if current != nil {
					t.Fatalf("create accepted over an existing note")
				}
				return
			}
			if current == nil || current.IsDeleted() || current.Version != op.Version {
				t.Fatalf("accepted %s with claimed %d against %+v", action, op.Version, current)
			}
		case DecisionNoop:
			if action != domain.ActionUpdate || !op.Data.IsEmpty() {
				t.Fatalf("noop for %s with data %v", action, op.Data)
			}
			if current == nil || current.Version != op.Version {
				t.Fatalf("noop without a version match")
			}
		}

		// A stale claim never gets through.
		if action != domain.ActionCreate && current != nil && current.Version != op.Version && got != DecisionConflict {
			t.Fatalf("stale %s resolved to %s", action, got)
		}
	})
}

func TestConflictForMissingNote(t *testing.T) {
	op := updateOp("ghost", 2, "x")
	c := conflictFor(&op, nil)

	assert.True(t, c.Missing)
	assert.Equal(t, int64(0), c.ServerVersion)
	assert.Equal(t, int64(2), c.ClientVersion)
	assert.Equal(t, "ghost", c.ServerNote.ID)
	assert.Equal(t, domain.ResolutionServerWins, c.ResolutionStrategy)
}

func TestConflictForCopiesServerNote(t *testing.T) {
	current := &domain.Note{ID: "n1", Version: 4, Tags: []string{"a"}}
	op := updateOp("n1", 3, "x")
	c := conflictFor(&op, current)

	current.Tags[0] = "changed"
	assert.Equal(t, []string{"a"}, c.ServerNote.Tags)
	assert.Equal(t, int64(4), c.ServerVersion)
	assert.False(t, c.Missing)
}
