package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"hrmaccess/internal/platform/requestctx"
	"hrmaccess/internal/transport/http/api"
)

// RateCounter counts hits for a key inside a fixed window. It returns the
// count including this hit and the time left until the window resets.
type RateCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error)
}

type memoryWindow struct {
	count int
	reset time.Time
}

// MemoryRateCounter keeps windows in process memory. Expired windows are
// swept at most once per window length.
type MemoryRateCounter struct {
	mu        sync.Mutex
	now       func() time.Time
	windows   map[string]*memoryWindow
	nextSweep time.Time
}

func NewMemoryRateCounter() *MemoryRateCounter {
	return &MemoryRateCounter{now: time.Now, windows: map[string]*memoryWindow{}}
}

func (c *MemoryRateCounter) Hit(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.Before(c.nextSweep) {
		c.sweep(now)
		c.nextSweep = now.Add(window)
	}
	win, ok := c.windows[key]
	if !ok || !now.Before(win.reset) {
		win = &memoryWindow{reset: now.Add(window)}
		c.windows[key] = win
	}
	win.count++
	return win.count, win.reset.Sub(now), nil
}

func (c *MemoryRateCounter) sweep(now time.Time) {
	for key, win := range c.windows {
		if !now.Before(win.reset) {
			delete(c.windows, key)
		}
	}
}

// RedisRateCounter shares windows between instances through INCR/PEXPIRE.
type RedisRateCounter struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisRateCounter(rdb redis.Cmdable) *RedisRateCounter {
	return &RedisRateCounter{rdb: rdb, prefix: "hrm:ratelimit:"}
}

func (c *RedisRateCounter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	redisKey := c.prefix + key
	count, err := c.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := c.rdb.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, err
		}
		return 1, window, nil
	}
	ttl, err := c.rdb.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// A key without expiry would never reset.
		if err := c.rdb.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return int(count), ttl, nil
}

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

type rateLimiter struct {
	name    string
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	counter RateCounter
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

// WithCounter replaces the in-memory counter, typically with a
// RedisRateCounter so every instance enforces the same budget.
func WithCounter(counter RateCounter) RateLimitOption {
	return func(rl *rateLimiter) {
		if counter != nil {
			rl.counter = counter
		}
	}
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter("global", limit, window, actorOrIPKey, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit adds tighter budgets for login attempts and
// for writes that change roles or commit reassignments.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	authLimit := max(baseLimit/4, 1)
	mutationLimit := max(baseLimit/2, 1)
	authByIP := newRateLimiter("auth-ip", authLimit, window, clientIPKey, opts...)
	authByEmail := newRateLimiter("auth-email", authLimit, window, AuthEmailOrIPKey("email"), opts...)
	roleWrites := newRateLimiter("role-writes", mutationLimit, window, actorOrIPKey, opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sensitiveRateScope(r) {
			case sensitiveScopeAuth:
				if !authByIP.enforce(w, r) || !authByEmail.enforce(w, r) {
					return
				}
			case sensitiveScopeActor:
				if !roleWrites.enforce(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func AuthEmailOrIPKey(field string) RateLimitKeyFunc {
	field = strings.TrimSpace(field)
	if field == "" {
		field = "email"
	}
	return func(r *http.Request) string {
		email := extractJSONField(r, field)
		if email == "" {
			return clientIPKey(r)
		}
		return "email:" + strings.ToLower(email)
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.TenantID + ":" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func newRateLimiter(name string, limit int, window time.Duration, keyFn RateLimitKeyFunc, opts ...RateLimitOption) *rateLimiter {
	rl := &rateLimiter{name: name, limit: limit, window: window, keyFn: keyFn}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.keyFn == nil {
		rl.keyFn = actorOrIPKey
	}
	if rl.counter == nil {
		rl.counter = NewMemoryRateCounter()
	}
	return rl
}

// enforce writes the rate headers and, when over budget, the 429 response.
// A failing counter lets the request through.
func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 {
		return true
	}
	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}

	count, resetIn, err := rl.counter.Hit(r.Context(), rl.name+":"+key, rl.window)
	if err != nil {
		slog.Warn("rate limit counter unavailable", append(requestctx.LogAttrs(r.Context()), "limiter", rl.name, "err", err)...)
		return true
	}
	resetSec := ceilSeconds(resetIn)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.limit-count, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))

	if count <= rl.limit {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", append(requestctx.LogAttrs(r.Context()),
		"limiter", rl.name,
		"key", key,
		"path", r.URL.Path,
		"method", r.Method,
		"limit", rl.limit,
	)...)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// extractJSONField peeks at a JSON body field and restores the body.
func extractJSONField(r *http.Request, field string) string {
	if r == nil || r.Body == nil {
		return ""
	}
	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if len(raw) == 0 {
		return ""
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	value, _ := payload[field].(string)
	return strings.TrimSpace(value)
}

type sensitiveScope string

const (
	sensitiveScopeNone  sensitiveScope = ""
	sensitiveScopeAuth  sensitiveScope = "auth"
	sensitiveScopeActor sensitiveScope = "actor"
)

func sensitiveRateScope(r *http.Request) sensitiveScope {
	if r == nil {
		return sensitiveScopeNone
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return sensitiveScopeNone
	}

	path := strings.TrimPrefix(strings.TrimSpace(r.URL.Path), "/api/v1")
	switch {
	case path == "/auth/login":
		return sensitiveScopeAuth
	case path == "/access/console/commit", strings.HasPrefix(path, "/roles/"):
		return sensitiveScopeActor
	case strings.HasPrefix(path, "/employees/") && strings.HasSuffix(path, "/role"):
		return sensitiveScopeActor
	}
	return sensitiveScopeNone
}
