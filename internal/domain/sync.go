package domain

import "time"

type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// NoteOperation is one client-side change inside a sync batch. Version is the
// base version the client last saw for the note.
type NoteOperation struct {
	ID      string       `json:"id"`
	Version int64        `json:"version" validate:"min=0"`
	Action  SyncAction   `json:"action" validate:"required,oneof=create update delete"`
	Data    *NoteContent `json:"data,omitempty"`
}

type SyncBatchRequest struct {
	DeviceID          string          `json:"device_id" validate:"required"`
	LastSyncTimestamp Watermark       `json:"last_sync_timestamp"`
	Notes             []NoteOperation `json:"notes" validate:"dive"`
}

const ResolutionServerWins = "server_wins"

type SyncConflict struct {
	NoteID             string `json:"note_id"`
	ClientVersion      int64  `json:"client_version"`
	ServerVersion      int64  `json:"server_version"`
	ServerNote         *Note  `json:"server_note"`
	Missing            bool   `json:"missing,omitempty"`
	ResolutionStrategy string `json:"resolution_strategy"`
}

type AppliedOperation struct {
	NoteID  string     `json:"note_id"`
	Action  SyncAction `json:"action"`
	Version int64      `json:"version"`
}

type SyncBatchResult struct {
	NotesToUpdate   []*Note            `json:"notes_to_update"`
	NotesToDelete   []string           `json:"notes_to_delete"`
	Conflicts       []SyncConflict     `json:"conflicts"`
	Applied         []AppliedOperation `json:"applied"`
	ServerTimestamp time.Time          `json:"server_timestamp"`
}

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
)

type SyncStatusResponse struct {
	DeviceID     string     `json:"device_id"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
	PendingCount int        `json:"pending_count"`
	Status       SyncStatus `json:"status"`
}
