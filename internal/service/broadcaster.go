package service

import (
	"log"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/websocket"
)

// Hub is the live channel the broadcaster sends on.
type Hub interface {
	SendToDevice(deviceID string, message *websocket.Message) (int, error)
}

// Registry names the devices currently reachable on the live channel.
// DeviceService is the production implementation.
type Registry interface {
	ConnectedDevices() []string
}

// Broadcaster pushes committed notes to every connected device other than the
// one that wrote them. Delivery is best effort; devices that miss a push pick
// the change up on their next sync.
type Broadcaster struct {
	hub      Hub
	registry Registry
}

func NewBroadcaster(hub Hub, registry Registry) *Broadcaster {
	return &Broadcaster{hub: hub, registry: registry}
}

func (b *Broadcaster) Publish(notes []*domain.Note, excludeDeviceID string) {
	if b == nil || b.hub == nil || b.registry == nil || len(notes) == 0 {
		return
	}

	var targets []string
	for _, deviceID := range b.registry.ConnectedDevices() {
		if deviceID != excludeDeviceID {
			targets = append(targets, deviceID)
		}
	}
	if len(targets) == 0 {
		return
	}

	for _, note := range notes {
		msg, err := noteMessage(note)
		if err != nil {
			log.Printf("[Broadcast] failed to build message for note %s: %v", note.ID, err)
			continue
		}
		for _, deviceID := range targets {
			if _, err := b.hub.SendToDevice(deviceID, msg); err != nil {
				log.Printf("[Broadcast] failed to publish note %s to %s: %v", note.ID, deviceID, err)
			}
		}
	}
}

func noteMessage(note *domain.Note) (*websocket.Message, error) {
	if note.IsDeleted() {
		return websocket.NewMessage(websocket.TypeNoteDelete, &websocket.NoteDeletePayload{
			NoteID:    note.ID,
			Version:   note.Version,
			Tombstone: true,
			UpdatedAt: note.UpdatedAt,
			DeviceID:  note.LastEditDevice,
		})
	}

	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	return websocket.NewMessage(websocket.TypeNoteUpdate, &websocket.NoteUpdatePayload{
		NoteID:    note.ID,
		Version:   note.Version,
		Title:     note.Title,
		Content:   note.Content,
		Tags:      tags,
		UpdatedAt: note.UpdatedAt,
		DeviceID:  note.LastEditDevice,
	})
}
