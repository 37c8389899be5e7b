package service

import "hexanote-sync-server/internal/domain"

type Decision int

const (
	DecisionAccept Decision = iota
	DecisionConflict
	DecisionNoop
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionConflict:
		return "conflict"
	case DecisionNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Resolve decides what to do with one client operation given the server copy
// of the note, or nil when the server has never seen it. The server copy
// always wins: anything other than Accept or Noop leaves the ledger as is.
func Resolve(op *domain.NoteOperation, current *domain.Note) Decision {
	switch op.Action {
	case domain.ActionCreate:
		if current != nil {
			return DecisionConflict
		}
		return DecisionAccept

	case domain.ActionUpdate:
		if current == nil || current.IsDeleted() || op.Version != current.Version {
			return DecisionConflict
		}
		if op.Data.IsEmpty() {
			return DecisionNoop
		}
		return DecisionAccept

	case domain.ActionDelete:
		if current == nil || current.IsDeleted() || op.Version != current.Version {
			return DecisionConflict
		}
		return DecisionAccept
	}
	return DecisionConflict
}

// conflictFor builds the conflict report for op. A nil current yields the
// synthetic missing-note state at version 0.
func conflictFor(op *domain.NoteOperation, current *domain.Note) domain.SyncConflict {
	c := domain.SyncConflict{
		NoteID:             op.ID,
		ClientVersion:      op.Version,
		ResolutionStrategy: domain.ResolutionServerWins,
	}
	if current == nil {
		c.Missing = true
		c.ServerNote = &domain.Note{ID: op.ID, Tags: []string{}}
		return c
	}
	c.ServerVersion = current.Version
	c.ServerNote = current.Clone()
	return c
}
