package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dagline/dagline/internal/logger"
	"github.com/dagline/dagline/pkg/engine"
)

// EventHub fans out engine.Event notifications to every connected
// websocket client, adapted from the teacher's observer.WebSocketHub/
// WebSocketObserver pair into a single type: dagline has one event
// stream to serve, not a pluggable observer registry, so the hub
// itself implements engine.Notifier directly instead of wrapping a
// hub behind a separate observer adapter.
type EventHub struct {
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewEventHub(log *logger.Logger) *EventHub {
	return &EventHub{logger: log, clients: make(map[*hubClient]struct{})}
}

// Notify implements engine.Notifier. It must never block the
// scheduler, so a slow or dead client's event is dropped rather than
// backing up the fan-out.
func (h *EventHub) Notify(ctx context.Context, event engine.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping event for slow websocket client")
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleStream upgrades GET /executions/stream to a websocket and
// streams every engine.Event until the client disconnects.
func (h *EventHub) HandleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	// Drain and discard anything the client sends; this is a
	// server-push-only stream. Reading is still required so the
	// connection's close/ping control frames are processed.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload := <-client.send:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
