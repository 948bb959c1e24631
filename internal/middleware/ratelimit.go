// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/whisperme/whisper-api/internal/config"
	"github.com/whisperme/whisper-api/internal/core"
)

const (
	actionCallInitiate = "call_initiate"
	localEntryTTL      = 10 * time.Minute
)

// Policy is one named limit and the key it buckets requests by.
type Policy struct {
	Name  string
	Limit redis_rate.Limit
	Key   func(*http.Request) string
}

// GlobalPolicy throttles all API traffic per client address.
func GlobalPolicy(cfg config.RateLimitConfig) Policy {
	return Policy{
		Name: "global",
		Limit: redis_rate.Limit{
			Rate:   cfg.Requests,
			Burst:  cfg.Burst,
			Period: cfg.Window,
		},
		Key: KeyByIP,
	}
}

// CallInitiatePolicy throttles call requests per caller. Each request holds
// coins and notifies a whisper, so it gets a much tighter bucket than reads.
func CallInitiatePolicy(cfg config.RateLimitConfig) Policy {
	return Policy{
		Name:  actionCallInitiate,
		Limit: PerMinute(cfg.CallInitiateRequests, cfg.CallInitiateBurst),
		Key:   KeyByUserAction(actionCallInitiate),
	}
}

// Limiter enforces policies through Redis. While Redis is unreachable each
// instance falls back to its own token buckets, so limits loosen by the
// instance count but never disappear.
type Limiter struct {
	redis  *redis_rate.Limiter
	local  *localBuckets
	logger *slog.Logger
}

func NewLimiter(rdb *redis.Client, logger *slog.Logger) *Limiter {
	return &Limiter{
		redis:  redis_rate.NewLimiter(rdb),
		local:  &localBuckets{entries: make(map[string]*bucket)},
		logger: logger.With("component", "ratelimit"),
	}
}

func (l *Limiter) Middleware(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := p.Key(r)

			res, err := l.redis.Allow(r.Context(), key, p.Limit)
			if err != nil {
				l.logger.Debug("redis limiter unavailable, using local bucket",
					"policy", p.Name,
					"error", err,
				)
				res = l.local.allow(key, p.Limit, time.Now())
			}

			writeLimitHeaders(w, res, p.Limit)

			if res.Allowed == 0 {
				retryAfter := int(res.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				core.JSONError(w, core.NewAppError(
					nil,
					fmt.Sprintf("too many requests, retry after %d seconds", retryAfter),
					http.StatusTooManyRequests,
					"RATE_LIMITED",
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the address the request came from, trusting the last hop a
// reverse proxy appended.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		return strings.TrimSpace(hops[len(hops)-1])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func KeyByIP(r *http.Request) string {
	return "ratelimit:ip:" + ClientIP(r)
}

func KeyByUser(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "ratelimit:user:" + userID
	}
	return KeyByIP(r)
}

func KeyByUserAction(action string) func(*http.Request) string {
	return func(r *http.Request) string {
		return KeyByUser(r) + ":action:" + action
	}
}

func writeLimitHeaders(
	w http.ResponseWriter,
	res *redis_rate.Result,
	limit redis_rate.Limit,
) {
	h := w.Header()
	h.Set("RateLimit-Policy",
		fmt.Sprintf("%d;w=%d", limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit",
		fmt.Sprintf("%d;t=%d", res.Remaining, int(res.ResetAfter.Seconds())))
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localBuckets holds one token bucket per key. Idle buckets are pruned on
// access rather than by a background goroutine.
type localBuckets struct {
	mu         sync.Mutex
	entries    map[string]*bucket
	lastPruned time.Time
}

func (b *localBuckets) allow(
	key string,
	limit redis_rate.Limit,
	now time.Time,
) *redis_rate.Result {
	perSecond := float64(limit.Rate) / limit.Period.Seconds()
	interval := time.Duration(float64(time.Second) / perSecond)

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastPruned) > localEntryTTL {
		for k, e := range b.entries {
			if now.Sub(e.lastSeen) > localEntryTTL {
				delete(b.entries, k)
			}
		}
		b.lastPruned = now
	}

	e, ok := b.entries[key]
	if !ok {
		e = &bucket{limiter: rate.NewLimiter(rate.Limit(perSecond), limit.Burst)}
		b.entries[key] = e
	}
	e.lastSeen = now

	res := &redis_rate.Result{
		Limit:      limit,
		RetryAfter: -1,
		ResetAfter: interval,
	}
	if e.limiter.AllowN(now, 1) {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	res.Remaining = max(int(e.limiter.TokensAt(now)), 0)

	return res
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: time.Minute,
	}
}
