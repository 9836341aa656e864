package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opensyncparty/watchparty/internal/logging"
	"go.uber.org/zap"
)

const (
	suppressWindow  = 400 * time.Millisecond
	seekThresholdS  = 1.0
	pingInterval    = 3 * time.Second
	pauseObserverID = 1
	timePosObserver = 2
)

// Config holds the adapter CLI's flags (spec.md §6, Adapter CLI).
type Config struct {
	WSURL       string
	Room        string
	Name        string
	ClientID    string
	MPVSocket   string
	Host        bool
	MediaURL    string
	AuthToken   string
	InviteToken string
}

// wsSender abstracts the session-channel connection so tests can drive
// Client without a real WebSocket handshake. Satisfied by *websocket.Conn
// in production.
type wsSender interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Client bridges one mpv IPC socket and one session channel. Per spec.md
// §5, the three loops (session-channel receive, player-IPC receive, ping
// timer) were cooperative tasks in the reference implementation; Go
// goroutines run them concurrently instead, so suppressUntilMs and
// lastTimePos — shared across loops — use atomics rather than the
// reference's unsynchronized scalars (spec.md §9 anticipates exactly this
// port).
type Client struct {
	cfg Config
	ws  wsSender
	mpv *MPVConn

	suppressUntilMs atomic.Int64
	lastTimePos     atomic.Pointer[float64]
}

// New builds a Client from cfg. Call Connect before Run.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

func (c *Client) shouldSend() bool {
	return nowMS() > c.suppressUntilMs.Load()
}

func (c *Client) suppress() {
	c.suppressUntilMs.Store(nowMS() + suppressWindow.Milliseconds())
}

func (c *Client) recallLastTimePos() (float64, bool) {
	p := c.lastTimePos.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (c *Client) rememberTimePos(pos float64) {
	c.lastTimePos.Store(&pos)
}

// Connect dials mpv's IPC socket, subscribes to pause/time-pos, then dials
// the session channel.
func (c *Client) Connect(ctx context.Context) error {
	mpv, err := DialMPV(c.cfg.MPVSocket)
	if err != nil {
		return err
	}
	c.mpv = mpv

	if err := c.mpv.ObserveProperty(pauseObserverID, "pause"); err != nil {
		return fmt.Errorf("observe pause: %w", err)
	}
	if err := c.mpv.ObserveProperty(timePosObserver, "time-pos"); err != nil {
		return fmt.Errorf("observe time-pos: %w", err)
	}

	dialer := websocket.DefaultDialer
	ws, _, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial session channel: %w", err)
	}
	c.ws = ws
	return nil
}

func (c *Client) sendWS(msgType string, payload map[string]any) error {
	msg := map[string]any{
		"type":    msgType,
		"room":    c.cfg.Room,
		"client":  c.cfg.ClientID,
		"payload": payload,
		"ts":      nowMS(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// CreateRoom sends create_room, used when the adapter runs as host.
func (c *Client) CreateRoom() error {
	startPos, _ := c.recallLastTimePos()
	return c.sendWS("create_room", map[string]any{
		"media_url":    c.cfg.MediaURL,
		"start_pos":    startPos,
		"name":         c.cfg.Name,
		"auth_token":   c.cfg.AuthToken,
		"options":      map[string]any{"free_play": false},
	})
}

// JoinRoom sends join_room, used when the adapter runs as an observer.
func (c *Client) JoinRoom() error {
	return c.sendWS("join_room", map[string]any{
		"name":          c.cfg.Name,
		"auth_token":    c.cfg.AuthToken,
		"invite_token":  c.cfg.InviteToken,
	})
}

// applyPlayerEvent pushes an inbound player_event's action/position to mpv,
// engaging the suppression window first so the resulting property-change
// isn't echoed back (spec.md §4.4).
func (c *Client) applyPlayerEvent(ctx context.Context, payload map[string]any) error {
	action, _ := payload["action"].(string)
	position, hasPosition := payload["position"].(float64)
	c.suppress()

	if hasPosition {
		if err := c.mpv.SetProperty("time-pos", position); err != nil {
			return err
		}
	}
	switch action {
	case "play":
		return c.mpv.SetProperty("pause", false)
	case "pause":
		return c.mpv.SetProperty("pause", true)
	}
	return nil
}

// handleWSMessage dispatches one inbound session-channel frame, per
// spec.md §4.4's inbound-application rules.
func (c *Client) handleWSMessage(ctx context.Context, raw []byte) error {
	var msg struct {
		Type    string         `json:"type"`
		Room    string         `json:"room"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	if msg.Room != "" && msg.Room != c.cfg.Room {
		return nil
	}

	switch msg.Type {
	case "pong":
		if clientTs, ok := msg.Payload["client_ts"].(float64); ok {
			rtt := nowMS() - int64(clientTs)
			logging.Info(ctx, "pong received", zap.Int64("rtt_ms", rtt))
		}
	case "room_state":
		state, _ := msg.Payload["state"].(map[string]any)
		return c.applyRoomState(state)
	case "player_event":
		return c.applyPlayerEvent(ctx, msg.Payload)
	case "state_update":
		if position, ok := msg.Payload["position"].(float64); ok {
			c.suppress()
			return c.mpv.SetProperty("time-pos", position)
		}
	}
	return nil
}

func (c *Client) applyRoomState(state map[string]any) error {
	if state == nil {
		return nil
	}
	if position, ok := state["position"].(float64); ok {
		c.suppress()
		if err := c.mpv.SetProperty("time-pos", position); err != nil {
			return err
		}
	}
	switch state["play_state"] {
	case "playing":
		c.suppress()
		return c.mpv.SetProperty("pause", false)
	case "paused":
		c.suppress()
		return c.mpv.SetProperty("pause", true)
	}
	return nil
}

// wsLoop reads session-channel frames until the connection closes.
func (c *Client) wsLoop(ctx context.Context, done chan<- error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		if err := c.handleWSMessage(ctx, data); err != nil {
			logging.Warn(ctx, "failed to apply inbound message", zap.Error(err))
		}
	}
}

// pingLoop emits ping every 3 seconds until ctx is cancelled.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.sendWS("ping", map[string]any{"client_ts": nowMS()})
		}
	}
}

// mpvLoop reads mpv IPC events and, when running as host and outside the
// suppression window, emits the outbound player_event rules from
// spec.md §4.4.
func (c *Client) mpvLoop(ctx context.Context, done chan<- error) {
	for {
		ev, err := c.mpv.Recv()
		if err != nil {
			done <- err
			return
		}

		switch ev.Event {
		case "property-change":
			if err := c.onPropertyChange(ev); err != nil {
				logging.Warn(ctx, "failed to emit player_event", zap.Error(err))
			}
		case "seek":
			if c.cfg.Host && c.shouldSend() {
				if pos, ok := c.recallLastTimePos(); ok {
					_ = c.sendWS("player_event", map[string]any{"action": "seek", "position": pos})
				}
			}
		}
	}
}

func (c *Client) onPropertyChange(ev Event) error {
	switch ev.Name {
	case "pause":
		if !c.cfg.Host || !c.shouldSend() {
			return nil
		}
		paused, _ := ev.Data.(bool)
		action := "play"
		if paused {
			action = "pause"
		}
		position, _ := c.recallLastTimePos()
		return c.sendWS("player_event", map[string]any{"action": action, "position": position})

	case "time-pos":
		if ev.Data == nil {
			return nil
		}
		data, ok := ev.Data.(float64)
		if !ok {
			return nil
		}
		if c.cfg.Host && c.shouldSend() {
			if last, had := c.recallLastTimePos(); had && math.Abs(data-last) > seekThresholdS {
				if err := c.sendWS("player_event", map[string]any{"action": "seek", "position": data}); err != nil {
					return err
				}
			}
		}
		c.rememberTimePos(data)
	}
	return nil
}

// Run starts the ping loop and blocks until either the session channel or
// the mpv IPC connection closes, returning whichever error ended it first,
// or until ctx is cancelled, returning ctx's error.
func (c *Client) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 2)
	go c.wsLoop(runCtx, done)
	go c.mpvLoop(runCtx, done)
	go c.pingLoop(runCtx)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down both connections.
func (c *Client) Close() {
	if c.ws != nil {
		c.ws.Close()
	}
	if c.mpv != nil {
		c.mpv.Close()
	}
}
