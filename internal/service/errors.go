package service

import (
	"errors"

	"hexanote-sync-server/internal/domain"
)

var (
	ErrUnknownDevice      = errors.New("device is not registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBatchDeadline      = errors.New("sync batch deadline exceeded")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNoIndexer          = errors.New("search indexing is not configured")
)

// ConflictError is returned by single-note writes that lost the version check.
type ConflictError struct {
	Conflict *domain.SyncConflict
}

func (e *ConflictError) Error() string {
	return "conflict detected"
}
