package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// clientBucket pairs a per-identity limiter with its last use, so idle
// entries can be swept off the map.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	clientIdleEvict = time.Hour
	sweepEvery      = 5 * time.Minute
)

// RateLimit shapes inbound traffic to what the scrape backend can absorb.
// Two token buckets apply:
//
//   - a shared bucket across all clients, sized against the browser pool:
//     admitting work faster than scrapes complete only converts fast 429s
//     into slow admission timeouts downstream;
//   - a per-identity bucket (API-key fingerprint, else client IP) so one
//     integration cannot drain the shared budget for everyone else.
//
// Scrapes hold a browser for seconds, so both limits are phrased per
// minute. Rejections carry a Retry-After hint taken from the exhausted
// bucket's own reservation math. Idle identity buckets are swept on the
// request path; no background goroutine.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	shared := rate.NewLimiter(perMinute(cfg.SharedPerMinute), cfg.SharedBurst)

	var mu sync.Mutex
	clients := make(map[string]*clientBucket)
	nextSweep := time.Now().Add(sweepEvery)

	bucketFor := func(identity string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.After(nextSweep) {
			for id, b := range clients {
				if now.Sub(b.lastSeen) > clientIdleEvict {
					delete(clients, id)
				}
			}
			nextSweep = now.Add(sweepEvery)
		}

		b, ok := clients[identity]
		if !ok {
			b = &clientBucket{
				limiter: rate.NewLimiter(perMinute(cfg.ClientPerMinute), cfg.ClientBurst),
			}
			clients[identity] = b
		}
		b.lastSeen = now
		return b.limiter
	}

	return func(c *gin.Context) {
		if retryAfter, ok := take(bucketFor(identity(c))); !ok {
			reject(c, "client rate limit exceeded", retryAfter)
			return
		}
		if retryAfter, ok := take(shared); !ok {
			reject(c, "service is at its scrape admission limit", retryAfter)
			return
		}
		c.Next()
	}
}

// take attempts to draw one token now. On failure it returns the
// limiter's own estimate of when the next token frees up.
func take(l *rate.Limiter) (time.Duration, bool) {
	r := l.Reserve()
	if !r.OK() {
		return time.Minute, false
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return delay, false
	}
	return 0, true
}

func reject(c *gin.Context, msg string, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeRateLimited,
			Message: msg,
		},
	})
}

// identity buckets authenticated callers by their key fingerprint and
// anonymous ones by IP.
func identity(c *gin.Context) string {
	if v, ok := c.Get(identityKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "ip:" + c.ClientIP()
}

func perMinute(n float64) rate.Limit {
	return rate.Limit(n / 60)
}
