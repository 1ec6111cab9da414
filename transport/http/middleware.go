package http

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/evmauth/service"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the id assigned to each request
const RequestIDHeader = "X-Request-ID"

// RequestID creates middleware that tags every request with an id, keeping
// one supplied by the client
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// ClientLimiter keeps one token bucket per client
type ClientLimiter struct {
	perMinute int
	every     rate.Limit

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// NewClientLimiter allows perMinute requests per client, with bursts of the
// same size
func NewClientLimiter(perMinute int) *ClientLimiter {
	return &ClientLimiter{
		perMinute: perMinute,
		every:     rate.Every(time.Minute / time.Duration(perMinute)),
		clients:   make(map[string]*rate.Limiter),
	}
}

// Allow consumes one request for client. When it is refused, retryAfter is the
// wait until the next request would be allowed
func (l *ClientLimiter) Allow(client string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	lim, found := l.clients[client]
	if !found {
		lim = rate.NewLimiter(l.every, l.perMinute)
		l.clients[client] = lim
	}
	l.mu.Unlock()

	r := lim.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

// RateLimit creates middleware that refuses callers exceeding perMinute
// requests. A non-positive limit disables it
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewClientLimiter(perMinute)
	limit := fmt.Sprintf("%d requests per minute", perMinute)

	return func(c *gin.Context) {
		ok, wait := limiter.Allow(c.ClientIP())
		if ok {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(wait.Seconds()))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, service.RateLimited(retryAfter, limit).Result())
	}
}
