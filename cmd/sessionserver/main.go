// Command sessionserver runs the watch-party session server: the room
// registry and broadcaster (spec.md §4.2) behind the dispatcher and HTTP
// surface described in §4.3 and §6. Wiring follows the teacher's
// cmd/sessionserver predecessor (godotenv, gin, graceful shutdown).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/opensyncparty/watchparty/internal/authtoken"
	"github.com/opensyncparty/watchparty/internal/config"
	"github.com/opensyncparty/watchparty/internal/httpapi"
	"github.com/opensyncparty/watchparty/internal/logging"
	"github.com/opensyncparty/watchparty/internal/ratelimit"
	"github.com/opensyncparty/watchparty/internal/registry"
	"github.com/opensyncparty/watchparty/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "sessionserver: no .env file found, relying on environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessionserver: invalid configuration:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		fmt.Fprintln(os.Stderr, "sessionserver: failed to initialize logging:", err)
		os.Exit(1)
	}
	ctx := context.Background()

	reg := registry.New()
	auth := authtoken.New(cfg.JWTSecret, cfg.JWTAudience, cfg.JWTIssuer, time.Duration(cfg.InviteTTLSecs)*time.Second, cfg.HostRoles, cfg.InviteRoles)
	dispatcher := session.NewDispatcher(reg, auth, cfg.AllowedOrigins)

	rl, err := ratelimit.New("20-M", "60-M")
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	router := httpapi.New(httpapi.Deps{
		Registry:       reg,
		Auth:           auth,
		Dispatcher:     dispatcher,
		RateLimiter:    rl,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "session server starting", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down session server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "forced shutdown", zap.Error(err))
	}
	logging.Info(ctx, "session server exited")
}
