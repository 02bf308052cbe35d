package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"arpguard/internal/model"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// wsClient pairs a connection with its write mutex. The dispatcher's workers
// deliver different alerts to the same hub concurrently and the underlying
// connection allows only one writer at a time.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(payload []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub pushes alerts to connected UI clients over WebSocket. It is both a
// notification channel (SendAlert) and an HTTP handler for the stream
// endpoint. The UI channel usually wraps the hub with a minimum-priority
// filter to avoid notification fatigue.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]bool

	writeTimeout time.Duration
	logger       *logrus.Logger
}

// NewHub creates an empty WebSocket hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:      make(map[*wsClient]bool),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

func (h *Hub) Name() string {
	return "ui"
}

// HandleStream upgrades the request and registers the client until its read
// side closes.
func (h *Hub) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Infof("UI client connected from %s (%d total)", r.RemoteAddr, count)

	// Reader goroutine only exists to detect disconnects.
	go func() {
		defer h.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected UI clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// SendAlert pushes the alert to every connected client; clients that fail a
// write are dropped.
func (h *Hub) SendAlert(alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if err := client.write(payload, h.writeTimeout); err != nil {
			h.logger.Debugf("Dropping UI client after write failure: %v", err)
			h.drop(client)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*wsClient]bool)
	h.mu.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
	}
	h.mu.Unlock()
	_ = client.conn.Close()
}
