package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/belgiumluv/docker-cont/pkg/logger"
)

const defaultMaxClients = 10000

// RateLimitConfig defines per-client token bucket limits
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RequestsPerSec  float64       `yaml:"requests_per_sec"`
	BurstSize       int           `yaml:"burst_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxClients      int           `yaml:"max_clients"`
}

// ClientLimiter holds the rate limiter for one client address
type ClientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits requests per client address
type RateLimitMiddleware struct {
	config       RateLimitConfig
	clients      map[string]*ClientLimiter
	mutex        sync.Mutex
	logger       *logger.Logger
	cleanupTimer *time.Timer
	stopped      bool
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(config RateLimitConfig, log *logger.Logger) *RateLimitMiddleware {
	if log == nil {
		log = logger.NewNop()
	}
	if config.MaxClients <= 0 {
		config.MaxClients = defaultMaxClients
	}

	rlm := &RateLimitMiddleware{
		config:  config,
		clients: make(map[string]*ClientLimiter),
		logger:  log.MiddlewareLogger("rate_limit"),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		rlm.startCleanup()
	}
	return rlm
}

// RateLimit returns the rate limiting middleware
func (rlm *RateLimitMiddleware) RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rlm.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := clientAddr(r)
			limiter := rlm.getLimiter(clientIP)
			limit := strconv.FormatFloat(rlm.config.RequestsPerSec, 'f', -1, 64)

			if !limiter.Allow() {
				rlm.logger.WithFields(map[string]interface{}{
					"client_ip": clientIP,
					"path":      r.URL.Path,
				}).Warn("Request rate limited")

				w.Header().Set("X-RateLimit-Limit", limit)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

// getLimiter gets or creates the limiter for a client
func (rlm *RateLimitMiddleware) getLimiter(clientIP string) *rate.Limiter {
	rlm.mutex.Lock()
	defer rlm.mutex.Unlock()

	client, exists := rlm.clients[clientIP]
	if !exists {
		if len(rlm.clients) >= rlm.config.MaxClients {
			rlm.removeOldestClient()
		}
		client = &ClientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rlm.config.RequestsPerSec), rlm.config.BurstSize),
		}
		rlm.clients[clientIP] = client
	}
	client.lastSeen = time.Now()

	return client.limiter
}

// clientAddr returns the peer address without its port. Forwarded headers
// are not consulted.
func clientAddr(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (rlm *RateLimitMiddleware) removeOldestClient() {
	var oldestKey string
	var oldestTime time.Time

	for key, client := range rlm.clients {
		if oldestKey == "" || client.lastSeen.Before(oldestTime) {
			oldestKey = key
			oldestTime = client.lastSeen
		}
	}
	if oldestKey != "" {
		delete(rlm.clients, oldestKey)
	}
}

func (rlm *RateLimitMiddleware) startCleanup() {
	rlm.mutex.Lock()
	defer rlm.mutex.Unlock()

	rlm.cleanupTimer = time.AfterFunc(rlm.config.CleanupInterval, func() {
		rlm.cleanup()

		rlm.mutex.Lock()
		defer rlm.mutex.Unlock()
		if !rlm.stopped {
			rlm.cleanupTimer.Reset(rlm.config.CleanupInterval)
		}
	})
}

// cleanup drops clients idle for longer than the cleanup interval
func (rlm *RateLimitMiddleware) cleanup() {
	rlm.mutex.Lock()
	defer rlm.mutex.Unlock()

	now := time.Now()
	for key, client := range rlm.clients {
		if now.Sub(client.lastSeen) > rlm.config.CleanupInterval {
			delete(rlm.clients, key)
		}
	}

	rlm.logger.WithField("active_clients", len(rlm.clients)).Debug("Cleaned up expired rate limit clients")
}

// ActiveClients returns the number of tracked clients
func (rlm *RateLimitMiddleware) ActiveClients() int {
	rlm.mutex.Lock()
	defer rlm.mutex.Unlock()
	return len(rlm.clients)
}

// Stop stops the cleanup timer
func (rlm *RateLimitMiddleware) Stop() {
	rlm.mutex.Lock()
	defer rlm.mutex.Unlock()

	rlm.stopped = true
	if rlm.cleanupTimer != nil {
		rlm.cleanupTimer.Stop()
	}
}
