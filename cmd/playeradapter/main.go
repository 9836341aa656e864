// Command playeradapter bridges a local mpv instance to a watch-party
// session channel, per spec.md §4.4 and §6. There is no CLI framework
// anywhere in the example corpus this module draws on, so flag parsing
// stays on the standard library (documented in DESIGN.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensyncparty/watchparty/internal/adapter"
	"github.com/opensyncparty/watchparty/internal/logging"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfg adapter.Config
	flag.StringVar(&cfg.WSURL, "ws", "ws://localhost:8999/ws", "session channel WebSocket URL")
	flag.StringVar(&cfg.Room, "room", "", "room id (required)")
	flag.StringVar(&cfg.Name, "name", "MPV", "display name")
	flag.StringVar(&cfg.ClientID, "client-id", "", "client id override (default mpv-<unix-ts>)")
	flag.StringVar(&cfg.MPVSocket, "mpv-socket", "/tmp/mpv-socket", "mpv JSON IPC socket path")
	flag.BoolVar(&cfg.Host, "host", false, "create the room and act as host")
	flag.StringVar(&cfg.MediaURL, "media-url", "", "media URL (host only)")
	flag.StringVar(&cfg.AuthToken, "auth-token", "", "JWT auth token")
	flag.StringVar(&cfg.InviteToken, "invite-token", "", "invite token (join only)")
	flag.Parse()

	if cfg.Room == "" {
		fmt.Fprintln(os.Stderr, "playeradapter: --room is required")
		return 1
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("mpv-%d", time.Now().Unix())
	}

	if err := logging.Initialize(os.Getenv("GO_ENV") != "production"); err != nil {
		fmt.Fprintln(os.Stderr, "playeradapter: failed to initialize logging:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := adapter.New(cfg)
	if err := client.Connect(ctx); err != nil {
		logging.Error(ctx, "failed to connect", zap.Error(err))
		return 1
	}
	defer client.Close()

	var opErr error
	if cfg.Host {
		opErr = client.CreateRoom()
	} else {
		opErr = client.JoinRoom()
	}
	if opErr != nil {
		logging.Error(ctx, "failed to start session", zap.Error(opErr))
		return 1
	}

	runErr := client.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		logging.Error(ctx, "adapter loop exited", zap.Error(runErr))
		return 1
	}
	return 0
}
