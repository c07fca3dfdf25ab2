package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/vn-text-trim/internal/config"
)

const limiterIdleTimeout = time.Hour

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	config  config.RateLimitConfig
	clients map[string]*clientLimiter
	mu      sync.Mutex
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.get(clientIP).Allow()
}

func (r *RateLimiter) get(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[clientIP]
	if !ok {
		perSecond := rate.Limit(float64(r.config.RequestsPerMin) / 60.0)
		burst := r.config.Burst
		if burst <= 0 {
			burst = 1
		}
		client = &clientLimiter{limiter: rate.NewLimiter(perSecond, burst)}
		r.clients[clientIP] = client
	}
	client.lastSeen = time.Now()
	return client.limiter
}

// CleanupOldBuckets forgets clients idle for longer than maxIdle
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, client := range r.clients {
		if client.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
}

// StartCleanupRoutine periodically drops idle clients until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CleanupOldBuckets(limiterIdleTimeout)
		}
	}
}

func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
