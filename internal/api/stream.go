package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ActivityEvent describes websocket payloads emitted after scoring requests.
type ActivityEvent struct {
	Type       string    `json:"type"`
	AuditID    uint      `json:"audit_id"`
	Kind       string    `json:"kind"`
	ResultText string    `json:"result_text"`
	Confidence float64   `json:"confidence"`
	Owner      string    `json:"owner"`
	Timestamp  time.Time `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// ActivityNotifier tracks active websocket clients and broadcasts scoring
// activity to them. The most recent event is replayed to new clients.
type ActivityNotifier struct {
	mu        sync.Mutex
	clients   map[*wsClient]struct{}
	lastEvent *ActivityEvent
}

// NewActivityNotifier constructs a notifier instance.
func NewActivityNotifier() *ActivityNotifier {
	return &ActivityNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and returns a client handle.
func (n *ActivityNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	last := n.lastEvent
	n.mu.Unlock()

	if last != nil {
		_ = client.writeJSON(*last)
	}
	return client
}

// Unregister removes the websocket client and closes the socket.
func (n *ActivityNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the event to all registered clients, dropping any whose
// write fails.
func (n *ActivityNotifier) Broadcast(event ActivityEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	snapshot := event
	n.lastEvent = &snapshot
	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// LastEvent returns a copy of the most recently broadcast event.
func (n *ActivityNotifier) LastEvent() *ActivityEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastEvent == nil {
		return nil
	}
	copied := *n.lastEvent
	return &copied
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
