package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/specmatch/specmatch/internal/config"
)

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	cfg      config.RateLimit
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newClientLimiter(cfg config.RateLimit) *clientLimiter {
	return &clientLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// allow checks whether a request from the given client IP may proceed
func (cl *clientLimiter) allow(clientIP string) bool {
	if !cl.cfg.Enabled {
		return true
	}

	cl.mu.Lock()
	limiter, ok := cl.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(cl.cfg.RequestsPerMin)/60.0), cl.cfg.Burst)
		cl.limiters[clientIP] = limiter
	}
	cl.mu.Unlock()

	return limiter.Allow()
}

// loggingMiddleware logs every API request with its duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.Debug("API request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("client_ip", clientIP(r)),
			zap.Duration("duration", time.Since(start)))
	})
}

// rateLimitMiddleware rejects requests above the per-client budget
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			s.logger.Warn("Rate limit exceeded", zap.String("client_ip", ip))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address without the port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
