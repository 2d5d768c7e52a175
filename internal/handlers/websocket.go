package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/downloads"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is one message pushed to download list subscribers
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Download list message types
const (
	MessageSnapshot = "snapshot"
	MessagePut      = "put"
	MessageRemove   = "remove"
	MessageDestroy  = "destroy"
)

// DownloadHub is the download list rendered in every connected page. It is the
// Mount the download registry attaches its list view to; each attached view is
// mirrored to all websocket clients, and a client connecting later receives the
// current items as a snapshot.
type DownloadHub struct {
	logger      arbor.ILogger
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex

	itemsMu  sync.Mutex
	items    map[string]downloads.Item
	attached bool

	instanceID string // clients use it to detect a server restart
}

// NewDownloadHub creates an empty hub
func NewDownloadHub(logger arbor.ILogger) *DownloadHub {
	h := &DownloadHub{
		logger:      logger,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
		items:       make(map[string]downloads.Item),
		instanceID:  uuid.New().String(),
	}
	logger.Debug().Str("instance_id", h.instanceID).Msg("Download hub initialized")
	return h
}

// Attach creates the list view; the previous view, if any, is replaced
func (h *DownloadHub) Attach() downloads.ListView {
	h.itemsMu.Lock()
	h.items = make(map[string]downloads.Item)
	h.attached = true
	h.itemsMu.Unlock()
	return &hubList{hub: h}
}

// Items returns the items currently in the list ordered by key
func (h *DownloadHub) Items() []downloads.Item {
	h.itemsMu.Lock()
	defer h.itemsMu.Unlock()
	items := make([]downloads.Item, 0, len(h.items))
	for _, item := range h.items {
		items = append(items, item)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Key < items[b].Key })
	return items
}

// Attached reports whether a list view is live
func (h *DownloadHub) Attached() bool {
	h.itemsMu.Lock()
	defer h.itemsMu.Unlock()
	return h.attached
}

// Count returns the number of items in the list
func (h *DownloadHub) Count() int {
	h.itemsMu.Lock()
	defer h.itemsMu.Unlock()
	return len(h.items)
}

// HandleWebSocket subscribes a page to the download list
func (h *DownloadHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("Download list client connected")

	h.send(conn, mutex, WSMessage{
		Type: MessageSnapshot,
		Payload: map[string]interface{}{
			"instanceId": h.instanceID,
			"items":      h.Items(),
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", clientCount).Msg("Download list client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// Clients returns the number of connected pages
func (h *DownloadHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *DownloadHub) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal download message")
		return
	}
	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()
	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send download message to client")
	}
}

func (h *DownloadHub) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal download message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send download message to client")
		}
	}
}

// hubList is one attached list view. Once destroyed it ignores further updates,
// so a stale view cannot touch a list attached after it.
type hubList struct {
	hub       *DownloadHub
	mu        sync.Mutex
	destroyed bool
}

func (l *hubList) Put(item downloads.Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return
	}
	l.hub.itemsMu.Lock()
	l.hub.items[item.Key] = item
	l.hub.itemsMu.Unlock()
	l.hub.broadcast(WSMessage{Type: MessagePut, Payload: item})
}

func (l *hubList) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return
	}
	l.hub.itemsMu.Lock()
	delete(l.hub.items, key)
	l.hub.itemsMu.Unlock()
	l.hub.broadcast(WSMessage{Type: MessageRemove, Payload: map[string]string{"key": key}})
}

func (l *hubList) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return
	}
	l.destroyed = true
	l.hub.itemsMu.Lock()
	l.hub.items = make(map[string]downloads.Item)
	l.hub.attached = false
	l.hub.itemsMu.Unlock()
	l.hub.broadcast(WSMessage{Type: MessageDestroy})
	l.hub.logger.Debug().Msg("Download list destroyed")
}
