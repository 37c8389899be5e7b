package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	ErrTooManyConnections = errors.New("too many connections for device")
	ErrManagerClosed      = errors.New("connection manager is shut down")
)

type Options struct {
	MaxConnPerDevice int
	SendBuffer       int
	MaxMissedPushes  int
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
}

// Manager owns the set of live connections. A device is connected while at
// least one of its connections is registered; membership changes only on
// register, on disconnect, or when a connection is dropped for stalling.
type Manager struct {
	clients      map[string]*Client
	deviceIndex  map[string]map[string]bool
	closed       bool
	clientsMutex sync.RWMutex

	maxConnPerDevice int
	sendBuffer       int
	maxMissedPushes  int32
	maxMessageSize   int64
	writeWait        time.Duration
	pongWait         time.Duration
	pingPeriod       time.Duration

	messageHandler MessageHandler
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

func NewManager(opts Options) *Manager {
	if opts.MaxConnPerDevice <= 0 {
		opts.MaxConnPerDevice = 5
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMissedPushes <= 0 {
		opts.MaxMissedPushes = 1
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}

	return &Manager{
		clients:          make(map[string]*Client),
		deviceIndex:      make(map[string]map[string]bool),
		maxConnPerDevice: opts.MaxConnPerDevice,
		sendBuffer:       opts.SendBuffer,
		maxMissedPushes:  int32(opts.MaxMissedPushes),
		maxMessageSize:   opts.MaxMessageSize,
		writeWait:        opts.WriteWait,
		pongWait:         opts.PongWait,
		pingPeriod:       opts.PingPeriod,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

// Run blocks until ctx is done, then closes every connection. Register fails
// with ErrManagerClosed from then on.
func (m *Manager) Run(ctx context.Context) {
	<-ctx.Done()
	m.closeAll()
}

// Register adds client before its pumps start, so a pump that fails at once
// always finds it registered and removes it. On error client.Send is closed.
func (m *Manager) Register(client *Client) error {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.closed {
		close(client.Send)
		return ErrManagerClosed
	}

	if len(m.deviceIndex[client.DeviceID]) >= m.maxConnPerDevice {
		close(client.Send)
		return ErrTooManyConnections
	}

	if m.deviceIndex[client.DeviceID] == nil {
		m.deviceIndex[client.DeviceID] = make(map[string]bool)
	}
	m.clients[client.ID] = client
	m.deviceIndex[client.DeviceID][client.ID] = true

	log.Printf("[WebSocket] client registered: %s (device: %s)", client.ID, client.DeviceID)
	return nil
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.deviceIndex[client.DeviceID], client.ID)

		if len(m.deviceIndex[client.DeviceID]) == 0 {
			delete(m.deviceIndex, client.DeviceID)
		}

		close(client.Send)
		log.Printf("[WebSocket] client unregistered: %s (device: %s)", client.ID, client.DeviceID)
	}
}

// remove is called by the pumps when a connection ends.
func (m *Manager) remove(client *Client) {
	m.unregisterClient(client)
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.closed = true
	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.deviceIndex = make(map[string]map[string]bool)
}

func (m *Manager) dispatch(client *Client, msg *Message) {
	if m.messageHandler == nil {
		return
	}
	if err := m.messageHandler.HandleWebSocketMessage(client, msg); err != nil {
		log.Printf("[WebSocket] error handling %s from %s: %v", msg.Type, client.ID, err)
		if errMsg, mErr := NewMessage(TypeError, &ErrorPayload{Error: err.Error()}); mErr == nil {
			m.SendToClient(client.ID, errMsg)
		}
	}
}

// SendToDevice enqueues message on every connection of deviceID and returns
// how many accepted it. It never waits on a connection: a full send buffer
// counts as a missed push, and a connection that misses too many pushes in a
// row is dropped.
func (m *Manager) SendToDevice(deviceID string, message *Message) (int, error) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}

	var stalled []*Client
	delivered := 0

	m.clientsMutex.RLock()
	for clientID := range m.deviceIndex[deviceID] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
			client.missed.Store(0)
			delivered++
		default:
			if client.missed.Add(1) >= m.maxMissedPushes {
				stalled = append(stalled, client)
			}
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range stalled {
		log.Printf("[WebSocket] client %s (device: %s) stalled, dropping connection", client.ID, client.DeviceID)
		m.unregisterClient(client)
	}

	return delivered, nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		log.Printf("[WebSocket] client %s send buffer full", clientID)
	}

	return nil
}

// ConnectedDevices returns the ids of devices with an open connection, sorted.
func (m *Manager) ConnectedDevices() []string {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	devices := make([]string, 0, len(m.deviceIndex))
	for deviceID := range m.deviceIndex {
		devices = append(devices, deviceID)
	}
	sort.Strings(devices)
	return devices
}

func (m *Manager) DeviceConnections(deviceID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.deviceIndex[deviceID])
}
