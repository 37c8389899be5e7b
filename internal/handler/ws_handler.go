package handler

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"hexanote-sync-server/internal/domain"
	"hexanote-sync-server/internal/middleware"
	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager       *websocket.Manager
	deviceService *service.DeviceService
	tokens        middleware.TokenValidator
	upgrader      ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, deviceService *service.DeviceService, tokens middleware.TokenValidator, readBuffer, writeBuffer int) *WebSocketHandler {
	return &WebSocketHandler{
		manager:       manager,
		deviceService: deviceService,
		tokens:        tokens,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection opens a device's live channel. The token comes from
// ?token= or the Authorization header; the device from the token or
// ?device_id=, and it must be registered.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		log.Printf("[WebSocket] token validation failed: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	deviceID := claims.DeviceID
	if deviceID == "" {
		deviceID = r.URL.Query().Get("device_id")
	}
	if deviceID == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}

	known, err := h.deviceService.IsKnown(r.Context(), deviceID)
	if err != nil {
		log.Printf("[WebSocket] device lookup failed: %v", err)
		http.Error(w, "device lookup failed", http.StatusInternalServerError)
		return
	}
	if !known {
		http.Error(w, "device is not registered", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), deviceID, conn, h.manager)
	if err := h.manager.Register(client); err != nil {
		log.Printf("[WebSocket] rejecting connection for device %s: %v", deviceID, err)
		conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketMessageHandler answers the few messages a client may send on its
// live channel.
type WebSocketMessageHandler struct {
	syncService *service.SyncService
}

func NewWebSocketMessageHandler(syncService *service.SyncService) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{syncService: syncService}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSyncRequest:
		return h.handleSyncRequest(client, msg)
	case websocket.TypePing:
		return h.reply(client, websocket.TypePong, nil)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// handleSyncRequest runs a batch for the connection's own device, whatever
// device_id the payload names.
func (h *WebSocketMessageHandler) handleSyncRequest(client *websocket.Client, msg *websocket.Message) error {
	var req domain.SyncBatchRequest
	if err := msg.UnmarshalPayload(&req); err != nil {
		return fmt.Errorf("invalid sync request: %w", err)
	}
	req.DeviceID = client.DeviceID

	if err := validate.Struct(req); err != nil {
		return err
	}

	// The read goroutine has no request context; the batch deadline bounds it.
	res, err := h.syncService.SyncBatch(client.Context(), &req)
	if err != nil {
		return err
	}
	return h.reply(client, websocket.TypeSyncResponse, res)
}

func (h *WebSocketMessageHandler) reply(client *websocket.Client, msgType websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return client.Manager.SendToClient(client.ID, msg)
}
