package handler

import (
	"context"
	"log"
	"net/http"
	"os"

	"enotebook-sync/internal/service"
	"enotebook-sync/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
	logger   *log.Logger
}

func NewWebSocketHandler(manager *websocket.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the API listens locally for the bundled UI
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.New(os.Stderr, "[WebSocket] ", log.LstdFlags),
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), conn, h.manager)

	select {
	case h.manager.Register <- client:
	case <-h.manager.Done():
		conn.Close()
		return
	}

	go client.Serve()
}

// WebSocketMessageHandler serves requests UI clients send over the socket.
type WebSocketMessageHandler struct {
	sync    *service.SyncService
	manager *websocket.Manager
	ctx     context.Context
}

func NewWebSocketMessageHandler(ctx context.Context, sync *service.SyncService, manager *websocket.Manager) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		sync:    sync,
		manager: manager,
		ctx:     ctx,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSyncRequest:
		// the hub loop must keep running while the pass talks to the remote
		go h.reconcile(client.ID)
		return nil
	default:
		ack, err := websocket.NewMessage(websocket.TypeAck, &websocket.AckPayload{
			Success: false,
			Error:   "unknown message type: " + string(msg.Type),
		})
		if err != nil {
			return err
		}
		return h.manager.SendToClient(client.ID, ack)
	}
}

func (h *WebSocketMessageHandler) reconcile(clientID string) {
	report := h.sync.Reconcile(h.ctx)
	ack, err := websocket.NewMessage(websocket.TypeAck, &websocket.AckPayload{Success: !report.Skipped})
	if err != nil {
		return
	}
	h.manager.SendToClient(clientID, ack)
}
