package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestShouldBroadcastEvent(t *testing.T) {
	hub := NewHub(&HubConfig{
		BroadcastClean:       true,
		BroadcastSystem:      false,
		BroadcastConnections: true,
	}, zap.NewNop())

	tests := []struct {
		eventType EventType
		want      bool
	}{
		{EventTypeClean, true},
		{EventTypeSystemStatus, false},
		{EventTypeConnection, true},
		{EventTypePong, false},
		{EventType("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := hub.shouldBroadcastEvent(tt.eventType); got != tt.want {
				t.Errorf("shouldBroadcastEvent(%s) = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}

	t.Run("nil config broadcasts nothing", func(t *testing.T) {
		if NewHub(nil, zap.NewNop()).shouldBroadcastEvent(EventTypeClean) {
			t.Error("expected false with nil config")
		}
	})
}

func TestShouldSendToClient(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())

	changed := Event{Type: EventTypeClean, Data: CleanEvent{Source: "watcher", Changed: true}}
	unchanged := Event{Type: EventTypeClean, Data: CleanEvent{Source: "api", Changed: false}}
	status := Event{Type: EventTypeSystemStatus, Data: SystemStatusEvent{Status: "running"}}

	tests := []struct {
		name         string
		subscription *SubscriptionRequest
		event        Event
		want         bool
	}{
		{"no subscription", nil, unchanged, true},
		{"not subscribed", &SubscriptionRequest{Events: []EventType{EventTypeSystemStatus}}, changed, false},
		{"subscribed", &SubscriptionRequest{Events: []EventType{EventTypeClean}}, unchanged, true},
		{
			"changed only drops unchanged",
			&SubscriptionRequest{Events: []EventType{EventTypeClean}, Filter: &EventFilter{ChangedOnly: true}},
			unchanged, false,
		},
		{
			"changed only keeps changed",
			&SubscriptionRequest{Events: []EventType{EventTypeClean}, Filter: &EventFilter{ChangedOnly: true}},
			changed, true,
		},
		{
			"source filter",
			&SubscriptionRequest{Events: []EventType{EventTypeClean}, Filter: &EventFilter{Sources: []string{"watcher"}}},
			unchanged, false,
		},
		{
			"filter ignores other event types",
			&SubscriptionRequest{Events: []EventType{EventTypeSystemStatus}, Filter: &EventFilter{ChangedOnly: true}},
			status, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{ID: "test", Subscription: tt.subscription}
			if got := hub.shouldSendToClient(client, tt.event); got != tt.want {
				t.Errorf("shouldSendToClient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorized(t *testing.T) {
	open := NewHub(&HubConfig{}, zap.NewNop())
	locked := NewHub(&HubConfig{Username: "reader", Password: "secret"}, zap.NewNop())

	anonymous := httptest.NewRequest(http.MethodGet, "/ws", nil)
	good := httptest.NewRequest(http.MethodGet, "/ws", nil)
	good.SetBasicAuth("reader", "secret")
	bad := httptest.NewRequest(http.MethodGet, "/ws", nil)
	bad.SetBasicAuth("reader", "wrong")

	if !open.authorized(anonymous) {
		t.Error("hub without credentials should accept anonymous clients")
	}
	if locked.authorized(anonymous) {
		t.Error("hub with credentials accepted anonymous client")
	}
	if !locked.authorized(good) {
		t.Error("hub rejected valid credentials")
	}
	if locked.authorized(bad) {
		t.Error("hub accepted wrong password")
	}
}

func TestHubDeliversCleanEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(&HubConfig{BroadcastClean: true}, zap.NewNop())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.PublishClean(CleanEvent{Source: "watcher", Changed: true, Cleaned: "こんにちは"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type EventType  `json:"type"`
		Data CleanEvent `json:"data"`
	}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if event.Type != EventTypeClean {
		t.Errorf("event type = %s, want %s", event.Type, EventTypeClean)
	}
	if event.Data.Cleaned != "こんにちは" || !event.Data.Changed {
		t.Errorf("unexpected event data: %+v", event.Data)
	}

	stats := hub.GetStats()
	if stats.TotalConnections != 1 {
		t.Errorf("TotalConnections = %d, want 1", stats.TotalConnections)
	}
}

func TestLateClientGetsLastLine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(&HubConfig{BroadcastClean: true}, zap.NewNop())
	go hub.Run(ctx)

	hub.PublishClean(CleanEvent{Source: "api", Changed: true, Cleaned: "台詞"})
	hub.PublishClean(CleanEvent{Source: "api", Changed: false})

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetStats().TotalBroadcasts < 2 {
		if time.Now().After(deadline) {
			t.Fatal("events were never broadcast")
		}
		time.Sleep(10 * time.Millisecond)
	}

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type EventType  `json:"type"`
		Data CleanEvent `json:"data"`
	}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if event.Type != EventTypeClean || event.Data.Cleaned != "台詞" {
		t.Errorf("replayed event = %+v, want last changed line", event)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.1:5555", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "10.0.0.1:5555", "5.6.7.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
