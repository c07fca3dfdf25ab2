package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/cache"
	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/config"
	"github.com/raaihank/vn-text-trim/internal/logger"
	"github.com/raaihank/vn-text-trim/internal/web"
	"github.com/raaihank/vn-text-trim/internal/websocket"
)

const statusInterval = 30 * time.Second

// Server exposes the engine over HTTP
type Server struct {
	config    *config.Config
	version   string
	logger    *logger.Logger
	engine    cleaner.Engine
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiter   *RateLimiter
	memo      *resultCache
	startedAt time.Time

	totalCleaned atomic.Int64
	totalChanged atomic.Int64

	stopStatus context.CancelFunc
}

// New creates a server around engine. hub may be nil when WebSocket events
// are disabled.
func New(cfg *config.Config, version string, engine cleaner.Engine, hub *websocket.Hub, log *logger.Logger) (*Server, error) {
	var shared *cache.ResultCache
	if cfg.Cache.RedisURL != "" {
		var err error
		shared, err = cache.NewResultCache(cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared result cache: %w", err)
		}
	}

	serverLog := log.WithComponent("server")
	memo, err := newResultCache(cfg.Cache.Size, shared, serverLog.Logger)
	if err != nil {
		if shared != nil {
			shared.Close()
		}
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	s := &Server{
		config:    cfg,
		version:   version,
		logger:    serverLog,
		engine:    engine,
		router:    mux.NewRouter(),
		wsHub:     hub,
		limiter:   NewRateLimiter(cfg.Server.RateLimit),
		memo:      memo,
		startedAt: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", allow(http.MethodGet, s.handleHealth))
	s.router.HandleFunc("/info", allow(http.MethodGet, s.handleInfo))

	if s.wsHub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, allow(http.MethodGet, s.wsHub.HandleWebSocket))
		s.router.HandleFunc("/", allow(http.MethodGet, web.ServeOverlay))
		s.router.HandleFunc("/overlay", allow(http.MethodGet, web.ServeOverlay))
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/clean", allow(http.MethodPost, s.handleClean))
	api.HandleFunc("/textassist", allow(http.MethodPost, s.handleTextAssist))
	api.HandleFunc("/cache", allow(http.MethodDelete, s.handleClearCache))
}

// allow answers 405 for any method but method. Each path is registered once,
// so a mismatch is never shadowed by a later route.
func allow(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handler(w, r)
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting vn-text-trim server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("websocket", s.wsHub != nil),
		zap.Int("cache_size", s.config.Cache.Size),
		zap.Bool("shared_cache", s.config.Cache.RedisURL != ""),
		zap.Bool("rate_limit", s.config.Server.RateLimit.Enabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopStatus = cancel
	go s.limiter.StartCleanupRoutine(ctx)
	if s.wsHub != nil {
		go s.runStatusLoop(ctx)
	}

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping vn-text-trim server")
	if s.stopStatus != nil {
		s.stopStatus()
	}
	err := s.server.Shutdown(ctx)
	if closeErr := s.memo.close(); err == nil {
		err = closeErr
	}
	return err
}

// ReportStatus publishes a system status event, e.g. after a rule reload
func (s *Server) ReportStatus(status, message string) {
	if s.wsHub == nil {
		return
	}
	event := s.status(status)
	event.Message = message
	s.wsHub.PublishStatus(event)
}

func (s *Server) runStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReportStatus("running", "")
		}
	}
}

func (s *Server) status(status string) websocket.SystemStatusEvent {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rs := s.engine.RuleSet()
	return websocket.SystemStatusEvent{
		Status:       status,
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		Mode:         string(rs.Mode),
		RuleCount:    len(rs.Substitutions),
		Fingerprint:  rs.Fingerprint(),
		TotalCleaned: s.totalCleaned.Load(),
		TotalChanged: s.totalChanged.Load(),
		MemoryUsage:  fmt.Sprintf("%.1f MiB", float64(mem.Alloc)/(1<<20)),
	}
}
