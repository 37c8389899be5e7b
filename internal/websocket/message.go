package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeSyncRequest  MessageType = "sync_request"
	TypeSyncResponse MessageType = "sync_response"
	TypeNoteUpdate   MessageType = "note_update"
	TypeNoteDelete   MessageType = "note_delete"
	TypeError        MessageType = "error"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NoteUpdatePayload carries the full snapshot of a live note.
type NoteUpdatePayload struct {
	NoteID    string    `json:"note_id"`
	Version   int64     `json:"version"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// NoteDeletePayload is the tombstone marker pushed for deleted notes.
type NoteDeletePayload struct {
	NoteID    string    `json:"note_id"`
	Version   int64     `json:"version"`
	Tombstone bool      `json:"tombstone"`
	UpdatedAt time.Time `json:"updated_at"`
	DeviceID  string    `json:"device_id,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
