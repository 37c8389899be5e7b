package repository

import (
	"errors"
	"fmt"

	"hexanote-sync-server/internal/domain"
)

var (
	ErrNoteNotFound     = errors.New("note not found")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrRevisionConflict = errors.New("revision conflict")
)

// VersionConflictError is returned by a commit whose expected version no longer
// matches the stored one. Current is the server copy at the time of the check;
// nothing was written.
type VersionConflictError struct {
	Expected int64
	Current  *domain.Note
}

func (e *VersionConflictError) Error() string {
	if e.Current == nil {
		return fmt.Sprintf("version conflict: expected %d", e.Expected)
	}
	return fmt.Sprintf("version conflict on note %s: expected %d, server has %d",
		e.Current.ID, e.Expected, e.Current.Version)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrRevisionConflict
}
