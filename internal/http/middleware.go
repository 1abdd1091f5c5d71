package http

import (
	"bytes"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/example/room-timetable/internal/logging"
)

// RequestLogger attaches a request scoped logger to the context and logs
// completion with status and duration.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.InfoContext(ctx, "request completed",
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

// RequirePrincipal rejects requests without gateway identity headers and
// stores the principal in the request context.
func RequirePrincipal(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFromHeaders(r)
			if !ok {
				responder.writeError(w, r, http.StatusUnauthorized, codeUnauthenticated, errMissingPrincipal)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// IPRateLimiter stores a token bucket per client address.
type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.RWMutex
	r   rate.Limit
	b   int
}

// NewIPRateLimiter creates a limiter allowing r requests per second with
// bursts of b for each client address.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
}

// GetLimiter returns the limiter for an address, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.ips[ip]
	i.mu.RUnlock()
	if exists {
		return limiter
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if limiter, exists = i.ips[ip]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(i.r, i.b)
	i.ips[ip] = limiter
	return limiter
}

// Middleware answers 429 once a client exhausts its bucket.
func (i *IPRateLimiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !i.GetLimiter(clientIP(r)).Allow() {
				responder.writeError(w, r, http.StatusTooManyRequests, codeRateLimited, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cacheKey scopes entries to the caller so identity-guarded routes are
// never served to another principal.
func cacheKey(r *http.Request) string {
	return r.Header.Get(HeaderUserID) + "|" + r.Header.Get(HeaderUserRole) + "|" + r.URL.RequestURI()
}

// ResponseCache keeps successful GET responses for a short time. Any
// successful write flushes it, so readers see their own changes.
type ResponseCache struct {
	store *cache.Cache
}

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

// NewResponseCache creates a cache whose entries live for ttl.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: cache.New(ttl, 2*ttl)}
}

// Flush drops every cached response.
func (c *ResponseCache) Flush() {
	c.store.Flush()
}

// Middleware serves GET requests from the cache and flushes it after
// successful writes.
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if status := ww.Status(); status >= 200 && status < 300 {
				c.store.Flush()
			}
			return
		}

		key := cacheKey(r)
		if entry, found := c.store.Get(key); found {
			cached := entry.(cachedResponse)
			if cached.contentType != "" {
				w.Header().Set("Content-Type", cached.contentType)
			}
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(cached.status)
			_, _ = w.Write(cached.body)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		body := &bytes.Buffer{}
		ww.Tee(body)
		w.Header().Set("X-Cache", "MISS")
		next.ServeHTTP(ww, r)

		if status := ww.Status(); status >= 200 && status < 300 {
			c.store.SetDefault(key, cachedResponse{
				status:      status,
				contentType: ww.Header().Get("Content-Type"),
				body:        body.Bytes(),
			})
		}
	})
}
