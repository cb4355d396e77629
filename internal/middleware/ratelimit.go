package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	rateLimitPrefix = "rl:v1:"
	visitorIdleTTL  = 10 * time.Minute
)

// RateLimiter caps requests per minute per caller, or per client IP for
// anonymous routes. Counters live in Redis so every instance shares them;
// without Redis, or while Redis is failing, an in-process token bucket is
// used instead.
type RateLimiter struct {
	cache     *redis.Client
	perMinute int
	now       func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter allowing perMinute requests per key. A
// non-positive limit disables limiting.
func NewRateLimiter(cache *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{
		cache:     cache,
		perMinute: perMinute,
		now:       time.Now,
		visitors:  make(map[string]*visitor),
	}
}

// Middleware limits the routes it is attached to under scope.
func (r *RateLimiter) Middleware(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if r.perMinute <= 0 {
			return c.Next()
		}
		id := c.IP()
		if caller, err := Caller(c); err == nil {
			id = strings.ToLower(caller.Hex())
		}
		if !r.allow(c, scope+":"+id) {
			return fiber.NewError(http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}
		return c.Next()
	}
}

func (r *RateLimiter) allow(c *fiber.Ctx, key string) bool {
	if r.cache != nil {
		window := r.now().Unix() / 60
		redisKey := rateLimitPrefix + key + ":" + strconv.FormatInt(window, 10)
		cnt, err := r.cache.Incr(c.UserContext(), redisKey).Result()
		if err == nil {
			if cnt == 1 {
				r.cache.Expire(c.UserContext(), redisKey, time.Minute)
			}
			return cnt <= int64(r.perMinute)
		}
	}
	return r.local(key).Allow()
}

func (r *RateLimiter) local(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(r.visitors, k)
		}
	}
	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(r.perMinute)/60.0), r.perMinute)}
		r.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}
