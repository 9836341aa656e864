// Package ratelimit guards the invite-issuance endpoint and new WebSocket
// connections against abuse from a single IP, using an in-memory store
// (the server is single-instance; there is no cross-process limiter state
// to share).
package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/opensyncparty/watchparty/internal/logging"
	"github.com/opensyncparty/watchparty/internal/metrics"

	"go.uber.org/zap"
)

// RateLimiter enforces per-IP limits on invite issuance and WebSocket
// connection attempts.
type RateLimiter struct {
	invite *limiter.Limiter
	wsConn *limiter.Limiter
}

// New builds a RateLimiter backed by in-memory stores, one per limiter so
// the two per-IP counts are kept apart.
//
// inviteRate and wsConnectRate use the ulule/limiter formatted-rate syntax,
// e.g. "10-M" for 10 per minute.
func New(inviteRate, wsConnectRate string) (*RateLimiter, error) {
	ir, err := limiter.NewRateFromFormatted(inviteRate)
	if err != nil {
		return nil, err
	}
	wr, err := limiter.NewRateFromFormatted(wsConnectRate)
	if err != nil {
		return nil, err
	}

	return &RateLimiter{
		invite: limiter.New(memory.NewStore(), ir),
		wsConn: limiter.New(memory.NewStore(), wr),
	}, nil
}

// InviteMiddleware rate-limits POST /invite by source IP.
func (rl *RateLimiter) InviteMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rl.enforce(c, rl.invite, "invite")
	}
}

// AllowWebSocketConnect reports whether a new WebSocket connection from this
// IP is within the per-IP connection rate. Called before the upgrade so a
// rejected attempt never touches the registry.
func (rl *RateLimiter) AllowWebSocketConnect(c *gin.Context) bool {
	ctx := c.Request.Context()
	result, err := rl.wsConn.Get(ctx, c.ClientIP())
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		return true
	}
	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		return false
	}
	return true
}

func (rl *RateLimiter) enforce(c *gin.Context, l *limiter.Limiter, endpoint string) {
	ctx := c.Request.Context()
	result, err := l.Get(ctx, c.ClientIP())
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		c.Next()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues(endpoint, "ip").Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many requests",
			"retry_after": result.Reset,
		})
		return
	}

	c.Next()
}
