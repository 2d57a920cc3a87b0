package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const throttleMessage = "Too many attempts. Please wait a minute and try again."

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle holds a token bucket per client IP for one group of endpoints.
type Throttle struct {
	mutex    sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewThrottle allows requestsPerMinute requests per client, bursting up to the same amount.
func NewThrottle(requestsPerMinute int) *Throttle {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	return &Throttle{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
		now:      time.Now,
	}
}

// Allow consumes one token for client.
func (throttle *Throttle) Allow(client string) bool {
	throttle.mutex.Lock()
	defer throttle.mutex.Unlock()
	now := throttle.now()
	entry, exists := throttle.limiters[client]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(throttle.limit, throttle.burst)}
		throttle.limiters[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Prune forgets clients not seen since cutoff and reports how many were removed.
func (throttle *Throttle) Prune(cutoff time.Time) int {
	throttle.mutex.Lock()
	defer throttle.mutex.Unlock()
	removed := 0
	for client, entry := range throttle.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(throttle.limiters, client)
			removed++
		}
	}
	return removed
}

// Middleware rejects requests over the limit with 429.
func (throttle *Throttle) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		if throttle.Allow(context.ClientIP()) {
			context.Next()
			return
		}
		context.Header("Retry-After", "60")
		context.String(http.StatusTooManyRequests, throttleMessage)
		context.Abort()
	}
}
