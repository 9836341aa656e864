// Package health implements the session server's liveness and status
// endpoints.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RoomCounter reports the number of active rooms held by the registry.
// Kept as a narrow interface so the handler doesn't depend on the concrete
// registry type.
type RoomCounter interface {
	RoomCount() int
}

// Handler serves the HTTP health surface.
type Handler struct {
	rooms RoomCounter
}

// NewHandler builds a health handler backed by the given room counter.
// A nil counter is treated as zero rooms, useful for liveness-only wiring
// in tests.
func NewHandler(rooms RoomCounter) *Handler {
	return &Handler{rooms: rooms}
}

// StatusResponse is the body returned by GET /health.
type StatusResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// Status handles GET /health.
func (h *Handler) Status(c *gin.Context) {
	count := 0
	if h.rooms != nil {
		count = h.rooms.RoomCount()
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok", Rooms: count})
}

// livenessResponse is the body returned by the GET /healthz alias.
type livenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Liveness handles GET /healthz, a bare process-alive probe for container
// orchestration that never touches the registry.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, livenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
