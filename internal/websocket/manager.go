// Package websocket fans engine events out to local UI subscribers.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"enotebook-sync/internal/domain"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

type Manager struct {
	clients       map[string]*Client
	clientsMutex  sync.RWMutex
	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage
	done          chan struct{}
	stopOnce      sync.Once

	maxClients     int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	messageHandler MessageHandler
	logger         *log.Logger
}

func NewManager(maxClients int, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:       make(map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
		done:          make(chan struct{}),
		maxClients:    maxClients,
		writeWait:     writeWait,
		pongWait:      pongWait,
		pingPeriod:    pingPeriod,
		logger:        log.New(os.Stderr, "[WebSocket] ", log.LstdFlags),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) SetLogger(l *log.Logger) {
	m.logger = l
}

// Run serves registrations and inbound messages until ctx is done, then
// disconnects every client.
func (m *Manager) Run(ctx context.Context) {
	defer m.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

// Done is closed once Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) shutdown() {
	m.stopOnce.Do(func() {
		m.clientsMutex.Lock()
		for id, client := range m.clients {
			delete(m.clients, id)
			close(client.Send)
		}
		m.clientsMutex.Unlock()
		close(m.done)
	})
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.maxClients > 0 && len(m.clients) >= m.maxClients {
		m.logger.Printf("max connections reached, rejecting %s", client.ID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.logger.Printf("client registered: %s", client.ID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		m.logger.Printf("client unregistered: %s", client.ID)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Printf("error unmarshaling message: %v", err)
		return
	}

	if msg.Type == TypePing {
		if pong, err := NewMessage(TypePong, nil); err == nil {
			m.SendToClient(clientMsg.Client.ID, pong)
		}
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			m.logger.Printf("error handling message: %v", err)
		}
	}
}

// Publish implements the engine's event sink. Slow clients are dropped
// rather than allowed to stall the engine.
func (m *Manager) Publish(event domain.Event) {
	msg, err := EventMessage(event)
	if err != nil {
		m.logger.Printf("error encoding %s event: %v", event.Type, err)
		return
	}
	if err := m.Broadcast(msg); err != nil {
		m.logger.Printf("error broadcasting %s event: %v", event.Type, err)
	}
}

func (m *Manager) Broadcast(message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client
	m.clientsMutex.RLock()
	for id, client := range m.clients {
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Printf("client %s send buffer full, closing connection", id)
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		go m.drop(client)
	}
	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Printf("client %s send buffer full", clientID)
	}

	return nil
}

func (m *Manager) Connections() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// drop unregisters client unless the manager has already stopped.
func (m *Manager) drop(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}
