package rpc

import (
	"bytes"
	"crypto/subtle"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"storepay/observability"
)

// RateLimiter applies a per-client token bucket. Clients are identified by
// forwarded IP headers when present, otherwise by the remote address.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		visitors: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		limiter := r.obtainLimiter(clientID(req))
		if !limiter.Allow() {
			observability.HTTP().RecordThrottle(req.URL.Path)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	limiter, ok := r.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.visitors[id] = limiter
		go r.expire(id)
	}
	return limiter
}

func (r *RateLimiter) expire(id string) {
	timer := time.NewTimer(5 * time.Minute)
	defer timer.Stop()
	<-timer.C
	r.mu.Lock()
	delete(r.visitors, id)
	r.mu.Unlock()
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := forwarded
		if comma := strings.IndexByte(forwarded, ','); comma > 0 {
			first = forwarded[:comma]
		}
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireOperator guards mutating and admin routes with a static bearer
// token. Comparison is constant-time.
func requireOperator(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if token == "" {
				writeError(w, http.StatusServiceUnavailable, "operator token not configured")
				return
			}
			presented := strings.TrimSpace(strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer "))
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid operator token")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// observeRequests records per-route metrics for every handled request.
func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		observability.HTTP().Observe(req.URL.Path, req.Method, ww.Status(), time.Since(start))
	})
}

// auditMutations appends every state-changing request to the audit store.
// Request bodies are captured before the handler consumes them; failures to
// record are logged but never block the request.
func auditMutations(store AuditStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodGet || req.Method == http.MethodHead {
				next.ServeHTTP(w, req)
				return
			}
			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(io.LimitReader(req.Body, 1<<20))
				req.Body = io.NopCloser(bytes.NewReader(body))
			}
			ww := chimw.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			entry := AuditEntry{
				Method:         req.Method,
				Path:           req.URL.Path,
				RequestBody:    body,
				ResponseStatus: ww.Status(),
				OccurredAt:     time.Now().UTC(),
			}
			if err := store.Insert(req.Context(), entry); err != nil && logger != nil {
				logger.Error("audit insert failed", "error", err, "path", req.URL.Path)
			}
		})
	}
}
