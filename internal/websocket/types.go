package websocket

import (
	"encoding/json"
	"time"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeClean is sent whenever a text passed through the engine
	EventTypeClean EventType = "clean"
	// EventTypeSystemStatus carries engine and service status
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// CleanEvent describes one pass of a text through the engine
type CleanEvent struct {
	Source         string   `json:"source"` // watcher, api, textassist
	RequestID      string   `json:"request_id,omitempty"`
	Changed        bool     `json:"changed"`
	Skipped        bool     `json:"skipped,omitempty"`
	Stages         []string `json:"stages,omitempty"`
	OriginalLength int      `json:"original_length"`
	CleanedLength  int      `json:"cleaned_length"`
	Cleaned        string   `json:"cleaned,omitempty"`
	ProcessingMS   float64  `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"` // running, reloaded, reload_failed
	Uptime           string `json:"uptime"`
	Mode             string `json:"mode"`
	RuleCount        int    `json:"rule_count"`
	Fingerprint      string `json:"fingerprint"`
	TotalCleaned     int64  `json:"total_cleaned"`
	TotalChanged     int64  `json:"total_changed"`
	ConnectedClients int    `json:"connected_clients"`
	MemoryUsage      string `json:"memory_usage"`
	Message          string `json:"message,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string          `json:"type"` // subscribe or ping
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows clean events for a subscription
type EventFilter struct {
	Sources     []string `json:"sources,omitempty"`
	ChangedOnly bool     `json:"changed_only,omitempty"`
}
