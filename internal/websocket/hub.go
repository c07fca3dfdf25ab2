package websocket

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// queueSize bounds both the hub's pending events and each client's outbox
const queueSize = 256

// HubConfig contains configuration for the WebSocket hub
type HubConfig struct {
	BroadcastClean       bool
	BroadcastSystem      bool
	BroadcastConnections bool
	Username             string
	Password             string
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64
	ActiveConnections  int64
	TotalMessages      int64
	TotalBroadcasts    int64
	DroppedEvents      int64
	LastConnectionTime time.Time
	LastDisconnectTime time.Time
	LastBroadcastTime  time.Time
}

// Hub fans engine events out to overlay and dashboard clients. A client
// that connects late is sent the most recent changed line first, so an
// overlay never starts blank.
type Hub struct {
	config *HubConfig
	logger *zap.Logger

	events     chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	lastLine *Event
	stats    HubStats
}

// NewHub creates a new WebSocket hub
func NewHub(config *HubConfig, logger *zap.Logger) *Hub {
	return &Hub{
		config:     config,
		logger:     logger.With(zap.String("component", "websocket")),
		events:     make(chan Event, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run serves registrations and events until ctx is done, then disconnects
// every client
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.attach(client)

		case client := <-h.unregister:
			h.detach(client)

		case event := <-h.events:
			h.fanOut(event, nil)
		}
	}
}

func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.stats.TotalConnections++
	h.stats.LastConnectionTime = time.Now()
	active := len(h.clients)
	if h.lastLine != nil {
		client.offer(*h.lastLine)
	}
	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int("active_connections", active))

	h.announce(client, "connected")
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	h.remove(client)
	h.stats.LastDisconnectTime = time.Now()
	active := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client disconnected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Duration("connected_for", time.Since(client.ConnectedAt)),
		zap.Int("active_connections", active))

	h.announce(client, "disconnected")
}

// announce tells the other clients about a connection change
func (h *Hub) announce(client *Client, action string) {
	if !h.shouldBroadcastEvent(EventTypeConnection) {
		return
	}

	h.fanOut(Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:    action,
			ClientID:  client.ID,
			ClientIP:  client.IP,
			UserAgent: client.UserAgent,
			Message:   fmt.Sprintf("Client %s %s", client.ID, action),
		},
	}, client)
}

// remove forgets a client and closes its outbox; h.mu must be held
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.Send)
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.remove(client)
	}
}

// fanOut delivers event to every interested client except skip. Clients
// that cannot keep up are disconnected.
func (h *Hub) fanOut(event Event, skip *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clean, ok := event.Data.(CleanEvent); ok && clean.Changed {
		h.lastLine = &event
	}

	for client := range h.clients {
		if client == skip || !h.shouldSendToClient(client, event) {
			continue
		}
		if client.offer(event) {
			h.stats.TotalMessages++
			continue
		}

		h.logger.Warn("Client too slow, disconnecting", zap.String("client_id", client.ID))
		h.remove(client)
	}

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcastTime = time.Now()
}

// shouldSendToClient applies the client's subscription; no subscription
// means every event
func (h *Hub) shouldSendToClient(client *Client, event Event) bool {
	sub := client.Subscription
	if sub == nil {
		return true
	}

	for _, eventType := range sub.Events {
		if eventType != event.Type {
			continue
		}
		if sub.Filter == nil {
			return true
		}
		return applyEventFilter(sub.Filter, event)
	}
	return false
}

// applyEventFilter narrows clean events; other event types always pass
func applyEventFilter(filter *EventFilter, event Event) bool {
	clean, ok := event.Data.(CleanEvent)
	if !ok {
		return true
	}
	if filter.ChangedOnly && !clean.Changed {
		return false
	}
	if len(filter.Sources) == 0 {
		return true
	}
	for _, source := range filter.Sources {
		if source == clean.Source {
			return true
		}
	}
	return false
}

// BroadcastEvent queues event for all clients when its type is enabled.
// It never blocks; events are dropped while the queue is full.
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}

	select {
	case h.events <- event:
	default:
		h.mu.Lock()
		h.stats.DroppedEvents++
		h.mu.Unlock()
		h.logger.Warn("Event queue full, dropping event", zap.String("event_type", string(event.Type)))
	}
}

// PublishClean broadcasts the outcome of one cleaning pass
func (h *Hub) PublishClean(clean CleanEvent) {
	h.BroadcastEvent(Event{
		Type:      EventTypeClean,
		Timestamp: time.Now(),
		Data:      clean,
		RequestID: clean.RequestID,
	})
}

// PublishStatus broadcasts engine and service status
func (h *Hub) PublishStatus(status SystemStatusEvent) {
	status.ConnectedClients = h.ClientCount()
	h.BroadcastEvent(Event{
		Type:      EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data:      status,
	})
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	if h.config == nil {
		return false
	}

	switch eventType {
	case EventTypeClean:
		return h.config.BroadcastClean
	case EventTypeSystemStatus:
		return h.config.BroadcastSystem
	case EventTypeConnection:
		return h.config.BroadcastConnections
	default:
		return false
	}
}

// authorized checks basic auth when credentials are configured
func (h *Hub) authorized(r *http.Request) bool {
	if h.config == nil || h.config.Username == "" {
		return true
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password)) == 1
	return userOK && passOK
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}
