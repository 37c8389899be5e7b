package domain

import "time"

// DiscardedEdit is a client operation that lost to the server copy. It is kept
// so the losing edit can be recovered by hand.
type DiscardedEdit struct {
	ID            string       `json:"id"`
	NoteID        string       `json:"note_id"`
	DeviceID      string       `json:"device_id"`
	Action        SyncAction   `json:"action"`
	ClientVersion int64        `json:"client_version"`
	ServerVersion int64        `json:"server_version"`
	ClientData    *NoteContent `json:"client_data,omitempty"`
	DetectedAt    time.Time    `json:"detected_at"`
}
