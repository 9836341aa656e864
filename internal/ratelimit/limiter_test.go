package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidRate(t *testing.T) {
	_, err := New("not-a-rate", "5-M")
	assert.Error(t, err)

	_, err = New("5-M", "not-a-rate")
	assert.Error(t, err)
}

func TestInviteMiddleware_AllowsThenBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl, err := New("2-M", "5-M")
	require.NoError(t, err)

	r := gin.New()
	r.Use(rl.InviteMiddleware())
	r.POST("/invite", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/invite", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "2", resp.Header().Get("X-RateLimit-Limit"))
	}

	req := httptest.NewRequest("POST", "/invite", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestAllowWebSocketConnect(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl, err := New("5-M", "2-M")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if rl.AllowWebSocketConnect(c) {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusTooManyRequests)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/ws", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	req := httptest.NewRequest("GET", "/ws", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}
