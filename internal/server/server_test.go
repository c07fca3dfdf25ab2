package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/config"
	"github.com/raaihank/vn-text-trim/internal/logger"
	"github.com/raaihank/vn-text-trim/internal/rules"
	"github.com/raaihank/vn-text-trim/internal/textassist"
	"github.com/raaihank/vn-text-trim/internal/websocket"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*Server, *cleaner.Holder) {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.TextRepetitions = true
	cfg.Replace = []config.ReplaceConfig{
		{Pattern: `[\s\x{3000}]+`, Replacement: ""},
	}
	if mutate != nil {
		mutate(cfg)
	}

	rs, err := rules.Compile(cfg.RulesConfig)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	c, err := cleaner.New(rs)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	holder := cleaner.NewHolder(c)

	s, err := New(cfg, "test", holder, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("server New failed: %v", err)
	}
	return s, holder
}

func do(s *Server, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeClean(t *testing.T, rec *httptest.ResponseRecorder) CleanResponse {
	t.Helper()
	var resp CleanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(s, http.MethodGet, "/health", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestInfo(t *testing.T) {
	s, holder := newTestServer(t, nil)
	rec := do(s, http.MethodGet, "/info", "", nil)

	var info InfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if info.Mode != string(rules.ModeRepetition) {
		t.Errorf("Mode = %q, want %q", info.Mode, rules.ModeRepetition)
	}
	if info.RuleCount != 1 {
		t.Errorf("RuleCount = %d, want 1", info.RuleCount)
	}
	if info.Fingerprint != holder.RuleSet().Fingerprint() {
		t.Errorf("Fingerprint = %q", info.Fingerprint)
	}
	if !info.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
	if info.TextAssistVersion != textassist.PluginVersion {
		t.Errorf("TextAssistVersion = %#x, want %#x", info.TextAssistVersion, textassist.PluginVersion)
	}
}

func TestClean(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantChanged bool
		wantText    string
	}{
		{"json changed", "application/json", `{"text":"こんにちは　こんにちは　世界"}`, http.StatusOK, true, "こんにちは世界"},
		{"json unchanged", "application/json; charset=utf-8", `{"text":"甘いものは別腹"}`, http.StatusOK, false, "甘いものは別腹"},
		{"plain text", "text/plain", "a b c", http.StatusOK, true, "abc"},
		{"no content type", "", "abcabcdef", http.StatusOK, true, "abcdef"},
		{"bad json", "application/json", `{"text":`, http.StatusBadRequest, false, ""},
		{"unsupported type", "application/xml", "<text/>", http.StatusUnsupportedMediaType, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/api/v1/clean", tt.contentType, []byte(tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			resp := decodeClean(t, rec)
			if resp.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", resp.Changed, tt.wantChanged)
			}
			if resp.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", resp.Text, tt.wantText)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}

	t.Run("invalid UTF-8 in JSON", func(t *testing.T) {
		body := append([]byte(`{"text":"`), 0xff, 0xfe)
		body = append(body, `"}`...)
		rec := do(s, http.MethodPost, "/api/v1/clean", "application/json", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("invalid UTF-8 in plain text", func(t *testing.T) {
		rec := do(s, http.MethodPost, "/api/v1/clean", "text/plain", []byte{0xff, 0xfe})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{http.MethodGet, "/api/v1/clean", http.MethodPost},
		{http.MethodPut, "/api/v1/clean", http.MethodPost},
		{http.MethodGet, "/api/v1/textassist", http.MethodPost},
		{http.MethodPut, "/api/v1/textassist", http.MethodPost},
		{http.MethodGet, "/api/v1/cache", http.MethodDelete},
		{http.MethodPut, "/api/v1/cache", http.MethodDelete},
		{http.MethodPost, "/health", http.MethodGet},
		{http.MethodPost, "/info", http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(s, tt.method, tt.path, "text/plain", []byte("x"))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want 405", rec.Code)
			}
			if got := rec.Header().Get("Allow"); got != tt.allow {
				t.Errorf("Allow = %q, want %q", got, tt.allow)
			}
		})
	}
}

func TestCleanBodyLimit(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.MaxBodyBytes = 16
	})

	rec := do(s, http.MethodPost, "/api/v1/clean", "text/plain", []byte(strings.Repeat("a", 64)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestCleanCache(t *testing.T) {
	s, holder := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		do(s, http.MethodPost, "/api/v1/clean", "text/plain", []byte("a b"))
	}

	stats := s.memo.stats(context.Background())
	if stats.Misses != 1 || stats.Hits != 2 {
		t.Errorf("cache stats = %+v, want 1 miss and 2 hits", stats)
	}

	// A new rule set must not be served results of the old one
	rs, err := rules.Compile(config.RulesConfig{})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := cleaner.New(rs)
	holder.Swap(c)

	resp := decodeClean(t, do(s, http.MethodPost, "/api/v1/clean", "text/plain", []byte("a b")))
	if resp.Changed {
		t.Errorf("stale result served after reload: %+v", resp)
	}
}

func TestClearCache(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(s, http.MethodPost, "/api/v1/clean", "text/plain", []byte("a b"))
	if s.memo.stats(context.Background()).Entries != 1 {
		t.Fatal("expected one cached entry")
	}

	rec := do(s, http.MethodDelete, "/api/v1/cache", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if entries := s.memo.stats(context.Background()).Entries; entries != 0 {
		t.Errorf("entries after clear = %d, want 0", entries)
	}
}

func TestCacheDisabled(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Cache.Size = 0
	})

	resp := decodeClean(t, do(s, http.MethodPost, "/api/v1/clean", "text/plain", []byte("a b")))
	if !resp.Changed || resp.Text != "ab" {
		t.Errorf("unexpected response %+v", resp)
	}
	if s.memo.stats(context.Background()).Enabled {
		t.Error("cache should be disabled")
	}
}

func TestTextAssist(t *testing.T) {
	s, _ := newTestServer(t, nil)

	t.Run("changed", func(t *testing.T) {
		wide, _ := textassist.Encode("あ い")
		rec := do(s, http.MethodPost, "/api/v1/textassist", "application/octet-stream", wide)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		text, err := textassist.Decode(rec.Body.Bytes())
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if text != "あい" {
			t.Errorf("text = %q, want %q", text, "あい")
		}
	})

	t.Run("unchanged", func(t *testing.T) {
		wide, _ := textassist.Encode("あい")
		rec := do(s, http.MethodPost, "/api/v1/textassist", "application/octet-stream", wide)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("odd length", func(t *testing.T) {
		rec := do(s, http.MethodPost, "/api/v1/textassist", "application/octet-stream", []byte{0x41})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unpaired surrogate", func(t *testing.T) {
		rec := do(s, http.MethodPost, "/api/v1/textassist", "application/octet-stream", []byte{0x00, 0xDC, 0x00, 0x00})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestOverlayRoutes(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if code := do(s, http.MethodGet, "/", "", nil).Code; code != http.StatusNotFound {
		t.Errorf("overlay served without WebSocket events: status %d", code)
	}

	cfg := config.GetDefaults()
	rs, _ := rules.Compile(cfg.RulesConfig)
	c, _ := cleaner.New(rs)
	hub := websocket.NewHub(&websocket.HubConfig{BroadcastClean: true}, zap.NewNop())

	withHub, err := New(cfg, "test", c, hub, logger.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rec := do(withHub, http.MethodGet, "/overlay", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, Burst: 2}
	})

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(s, http.MethodPost, "/api/v1/clean", "text/plain", []byte("x")).Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests rejected: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", codes[2])
	}

	// Health checks are not limited
	if code := do(s, http.MethodGet, "/health", "", nil).Code; code != http.StatusOK {
		t.Errorf("health status = %d, want 200", code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")

	if limiter.size() != 2 {
		t.Fatalf("size = %d, want 2", limiter.size())
	}

	limiter.CleanupOldBuckets(0)
	if limiter.size() != 0 {
		t.Errorf("size after cleanup = %d, want 0", limiter.size())
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:80", "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
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
