// Package httpapi assembles the session server's HTTP surface: health,
// metrics, invite issuance, and the /ws upgrade route, grounded on the
// teacher's gin router wiring (cmd/sessionserver's predecessor).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensyncparty/watchparty/internal/authtoken"
	"github.com/opensyncparty/watchparty/internal/health"
	"github.com/opensyncparty/watchparty/internal/middleware"
	"github.com/opensyncparty/watchparty/internal/ratelimit"
	"github.com/opensyncparty/watchparty/internal/registry"
	"github.com/opensyncparty/watchparty/internal/session"
)

// Deps collects everything the router needs to wire its routes.
type Deps struct {
	Registry       *registry.Registry
	Auth           *authtoken.Verifier
	Dispatcher     *session.Dispatcher
	RateLimiter    *ratelimit.RateLimiter
	AllowedOrigins []string
}

// New assembles the gin engine described in spec.md §6: GET /health,
// POST /invite, GET /metrics, and the GET /ws upgrade route.
func New(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = deps.AllowedOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	healthHandler := health.NewHandler(deps.Registry)
	router.GET("/health", healthHandler.Status)
	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	inviteHandler := newInviteHandler(deps.Registry, deps.Auth)
	router.POST("/invite", deps.RateLimiter.InviteMiddleware(), inviteHandler)

	router.GET("/ws", func(c *gin.Context) {
		if !deps.RateLimiter.AllowWebSocketConnect(c) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		deps.Dispatcher.ServeWS(c)
	})

	return router
}

type inviteRequest struct {
	Room      string `json:"room"`
	ExpiresIn int    `json:"expires_in"`
}

type inviteResponse struct {
	InviteToken string `json:"invite_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// newInviteHandler implements POST /invite (spec.md §6): bearer auth,
// role check, 404 if the room is missing, 400 if no secret is configured.
func newInviteHandler(reg *registry.Registry, auth *authtoken.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.AuthEnabled() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invite_disabled"})
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "auth_required"})
			return
		}
		claims, err := auth.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": authtoken.Code(err)})
			return
		}
		if !authtoken.RequireRoles(claims, auth.InviteRoles()) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var req inviteRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Room == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
			return
		}
		if _, ok := reg.GetRoom(req.Room); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_missing"})
			return
		}

		var ttl time.Duration
		if req.ExpiresIn > 0 {
			ttl = time.Duration(req.ExpiresIn) * time.Second
		}
		inviteToken, expiresAt, err := auth.IssueInvite(req.Room, ttl)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invite_disabled"})
			return
		}

		c.JSON(http.StatusOK, inviteResponse{
			InviteToken: inviteToken,
			ExpiresAt:   expiresAt.UnixMilli(),
		})
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
