// Package session implements the dispatcher and connection lifecycle
// described in spec.md §4.3: a per-connection receive loop that
// JSON-decodes inbound frames and routes them by type, grounded on
// _examples/original_source/session-server/app.py's handle_message, with
// the teacher's Client/readPump/writePump/ServeWs shape
// (internal/v1/session/{client,hub}.go) carrying the connection.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensyncparty/watchparty/internal/authtoken"
	"github.com/opensyncparty/watchparty/internal/logging"
	"github.com/opensyncparty/watchparty/internal/metrics"
	"github.com/opensyncparty/watchparty/internal/registry"

	"go.uber.org/zap"
)

// Dispatcher wires the room registry and auth verifier to a connection's
// message stream.
type Dispatcher struct {
	reg            *registry.Registry
	auth           *authtoken.Verifier
	allowedOrigins []string
}

// NewDispatcher builds a Dispatcher over reg and auth, checking WebSocket
// upgrade origins against allowedOrigins.
func NewDispatcher(reg *registry.Registry, auth *authtoken.Verifier, allowedOrigins []string) *Dispatcher {
	return &Dispatcher{reg: reg, auth: auth, allowedOrigins: allowedOrigins}
}

// Dispatch decodes one inbound frame and routes it by type. Malformed JSON
// yields bad_json; unrecognized types yield unknown_type, matching app.py's
// handle_message fallthrough.
func (d *Dispatcher) Dispatch(c *Client, raw []byte) {
	start := time.Now()
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.sendError(c, "", "", "bad_json", "invalid JSON")
		return
	}

	switch env.Type {
	case "create_room":
		d.handleCreateRoom(c, env)
	case "join_room":
		d.handleJoinRoom(c, env)
	case "player_event":
		d.handlePlayerEvent(c, env, raw)
	case "state_update":
		d.handleStateUpdate(c, env, raw)
	case "force_resync":
		d.handleForceResync(c, env, raw)
	case "create_invite":
		d.handleCreateInvite(c, env)
	case "ping":
		d.handlePing(c, env)
	default:
		d.sendError(c, env.Room, env.Client, "unknown_type", "unknown message type: "+env.Type)
	}
	metrics.DispatchDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
	metrics.MessagesTotal.WithLabelValues(env.Type, "dispatched").Inc()
}

func (d *Dispatcher) sendError(c *Client, room, client, code, message string) {
	frame := makeMessage("error", room, client, map[string]string{"code": code, "message": message})
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.Send(data)
}

func (d *Dispatcher) sendTo(c *Client, msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.Send(data)
}

// authRequest carries the bearer presented alongside a request payload.
type authRequest struct {
	AuthToken   string `json:"auth_token"`
	InviteToken string `json:"invite_token"`
}

func (d *Dispatcher) verifyPrincipal(tokenString string) (*authtoken.CustomClaims, error) {
	return d.auth.Verify(tokenString)
}

func (d *Dispatcher) handleCreateRoom(c *Client, env inboundEnvelope) {
	if env.Room == "" || env.Client == "" {
		d.sendError(c, env.Room, env.Client, "bad_request", "room and client are required")
		return
	}

	var payload struct {
		authRequest
		MediaURL  string         `json:"media_url"`
		Options   map[string]any `json:"options"`
		StartPos  float64        `json:"start_pos"`
		Name      string         `json:"name"`
	}
	_ = json.Unmarshal(env.Payload, &payload)

	if code, msg, ok := d.checkHostAuth(payload.AuthToken); !ok {
		d.sendError(c, env.Room, env.Client, code, msg)
		return
	}

	room, err := d.reg.CreateRoom(env.Room, env.Client, payload.Name, payload.MediaURL, payload.Options, payload.StartPos, c)
	if err != nil {
		d.sendError(c, env.Room, env.Client, "room_exists", "room already exists")
		return
	}
	c.bind(env.Room, env.Client)

	d.sendTo(c, makeMessage("room_state", env.Room, env.Client, roomStatePayload(room)))
	d.broadcastTyped(room, "participants_update", env.Room, env.Client, participantsPayload(room), "")
}

// checkHostAuth implements spec.md §4.1's host-creation policy: a
// principal presenting auth_token must verify and, if host_roles is
// configured, must hold one of those roles. When no secret is configured,
// auth is a no-op. When a secret IS configured and no token is presented,
// the request is rejected as auth_required — our resolution of the spec's
// silence on that case.
func (d *Dispatcher) checkHostAuth(tokenString string) (code, message string, ok bool) {
	if !d.auth.AuthEnabled() {
		return "", "", true
	}
	if tokenString == "" {
		return "auth_required", "auth_token is required", false
	}
	claims, err := d.verifyPrincipal(tokenString)
	if err != nil {
		return authtoken.Code(err), "auth_failed", false
	}
	if !authtoken.RequireRoles(claims, d.auth.HostRoles()) {
		return "forbidden", "principal lacks a required host role", false
	}
	return "", "", true
}

func (d *Dispatcher) handleJoinRoom(c *Client, env inboundEnvelope) {
	if env.Room == "" || env.Client == "" {
		d.sendError(c, env.Room, env.Client, "bad_request", "room and client are required")
		return
	}

	var payload struct {
		authRequest
		Name string `json:"name"`
	}
	_ = json.Unmarshal(env.Payload, &payload)

	if code, msg, ok := d.checkJoinAuth(payload.AuthToken, payload.InviteToken, env.Room); !ok {
		d.sendError(c, env.Room, env.Client, code, msg)
		return
	}

	room, err := d.reg.JoinRoom(env.Room, env.Client, payload.Name, c)
	if err != nil {
		d.sendError(c, env.Room, env.Client, "room_missing", "room not found")
		return
	}
	c.bind(env.Room, env.Client)

	d.sendTo(c, makeMessage("room_state", env.Room, env.Client, roomStatePayload(room)))
	d.broadcastTyped(room, "client_joined", env.Room, env.Client, map[string]any{"name": payload.Name}, env.Client)
	d.broadcastTyped(room, "participants_update", env.Room, env.Client, participantsPayload(room), "")
}

// checkJoinAuth implements spec.md §4.1's join policy: accept a valid
// auth_token or a valid invite_token scoped to the room. If both are
// absent and a secret is configured, auth_required.
func (d *Dispatcher) checkJoinAuth(authTok, inviteTok, room string) (code, message string, ok bool) {
	if !d.auth.AuthEnabled() {
		return "", "", true
	}
	var authErr error
	if authTok != "" {
		if _, authErr = d.verifyPrincipal(authTok); authErr == nil {
			return "", "", true
		}
	}
	if inviteTok != "" {
		if _, err := d.auth.VerifyInvite(inviteTok, room); err != nil {
			return authtoken.Code(err), "invite token rejected", false
		}
		return "", "", true
	}
	if authErr != nil {
		return authtoken.Code(authErr), "auth_failed", false
	}
	return "auth_required", "auth_token or invite_token is required", false
}

func (d *Dispatcher) handlePlayerEvent(c *Client, env inboundEnvelope, raw []byte) {
	if env.Room == "" || env.Client == "" {
		d.sendError(c, env.Room, env.Client, "bad_request", "room and client are required")
		return
	}
	room, ok := d.reg.GetRoom(env.Room)
	if !ok {
		d.sendError(c, env.Room, env.Client, "room_missing", "room not found")
		return
	}
	if !room.IsHost(env.Client) && !room.FreePlayEnabled() {
		d.sendError(c, env.Room, env.Client, "not_host", "only host can send player events")
		return
	}

	var payload struct {
		Action   string   `json:"action"`
		Position *float64 `json:"position"`
	}
	_ = json.Unmarshal(env.Payload, &payload)
	room.ApplyPlayback(payload.Action, payload.Position)

	d.relay(room, raw)
}

func (d *Dispatcher) handleStateUpdate(c *Client, env inboundEnvelope, raw []byte) {
	if env.Room == "" || env.Client == "" {
		d.sendError(c, env.Room, env.Client, "bad_request", "room and client are required")
		return
	}
	room, ok := d.reg.GetRoom(env.Room)
	if !ok {
		d.sendError(c, env.Room, env.Client, "room_missing", "room not found")
		return
	}

	if room.IsHost(env.Client) {
		var payload struct {
			Position  *float64 `json:"position"`
			PlayState string   `json:"play_state"`
		}
		_ = json.Unmarshal(env.Payload, &payload)
		room.ApplyPlayback(playActionFor(payload.PlayState), payload.Position)
	}

	d.relay(room, raw)
}

func playActionFor(playState string) string {
	switch strings.ToLower(playState) {
	case "playing":
		return "play"
	case "paused":
		return "pause"
	default:
		return ""
	}
}

func (d *Dispatcher) handleForceResync(c *Client, env inboundEnvelope, raw []byte) {
	if env.Room == "" || env.Client == "" {
		d.sendError(c, env.Room, env.Client, "bad_request", "room and client are required")
		return
	}
	room, ok := d.reg.GetRoom(env.Room)
	if !ok {
		d.sendError(c, env.Room, env.Client, "room_missing", "room not found")
		return
	}
	if !room.IsHost(env.Client) {
		d.sendError(c, env.Room, env.Client, "not_host", "only host can resync")
		return
	}
	d.relay(room, raw)
}

func (d *Dispatcher) handleCreateInvite(c *Client, env inboundEnvelope) {
	if env.Room == "" || env.Client == "" {
		d.sendError(c, env.Room, env.Client, "bad_request", "room and client are required")
		return
	}
	room, ok := d.reg.GetRoom(env.Room)
	if !ok {
		d.sendError(c, env.Room, env.Client, "room_missing", "room not found")
		return
	}
	if !room.IsHost(env.Client) {
		d.sendError(c, env.Room, env.Client, "not_host", "only host can create invites")
		return
	}
	if !d.auth.AuthEnabled() {
		d.sendError(c, env.Room, env.Client, "invite_disabled", "invites require a configured secret")
		return
	}

	var payload struct {
		authRequest
		TTLSeconds int `json:"ttl_seconds"`
	}
	_ = json.Unmarshal(env.Payload, &payload)

	if payload.AuthToken == "" {
		d.sendError(c, env.Room, env.Client, "auth_required", "auth_token is required")
		return
	}
	claims, err := d.verifyPrincipal(payload.AuthToken)
	if err != nil {
		d.sendError(c, env.Room, env.Client, authtoken.Code(err), "auth_failed")
		return
	}
	if !authtoken.RequireRoles(claims, d.auth.InviteRoles()) {
		d.sendError(c, env.Room, env.Client, "forbidden", "principal lacks a required invite role")
		return
	}

	var ttl time.Duration
	if payload.TTLSeconds > 0 {
		ttl = time.Duration(payload.TTLSeconds) * time.Second
	}
	token, expiresAt, err := d.auth.IssueInvite(env.Room, ttl)
	if err != nil {
		d.sendError(c, env.Room, env.Client, "invite_disabled", "invite issuance failed")
		return
	}

	d.sendTo(c, makeMessage("invite_created", env.Room, env.Client, map[string]any{
		"token":      token,
		"expires_at": expiresAt.UnixMilli(),
	}))
}

func (d *Dispatcher) handlePing(c *Client, env inboundEnvelope) {
	var payload struct {
		ClientTs json.RawMessage `json:"client_ts"`
	}
	_ = json.Unmarshal(env.Payload, &payload)
	d.sendTo(c, makeMessage("pong", env.Room, env.Client, map[string]any{"client_ts": payload.ClientTs}))
}

// relay rebroadcasts an inbound frame unchanged except for a freshly
// stamped server_ts, per spec.md §4.3.
func (d *Dispatcher) relay(room *registry.Room, raw []byte) {
	stamped, err := stampServerTS(raw)
	if err != nil {
		return
	}
	d.reg.BroadcastBytes(room, stamped, "")
}

func (d *Dispatcher) broadcastTyped(room *registry.Room, msgType, roomID, clientID string, payload any, exclude string) {
	msg := makeMessage(msgType, roomID, clientID, payload)
	if err := d.reg.Broadcast(room, msg, exclude); err != nil {
		logging.Error(context.Background(), "broadcast marshal failed", zap.String("type", msgType), zap.Error(err))
	}
}

// HandleDisconnect removes c's participant from its room, if any, and
// emits host_change/client_left plus participants_update, per spec.md
// §4.3.
func (d *Dispatcher) HandleDisconnect(c *Client) {
	result, ok := d.reg.Disconnect(c)
	if !ok {
		return
	}
	roomID, clientID := c.identity()
	logging.Info(context.Background(), "client disconnected",
		zap.String("room", roomID), zap.String("client", clientID))

	room, stillExists := d.reg.GetRoom(result.RoomID)
	if !stillExists {
		return
	}

	if result.WasHost && result.NewHostID != "" {
		d.broadcastTyped(room, "host_change", result.RoomID, result.NewHostID, map[string]any{"host_id": result.NewHostID}, "")
		d.broadcastTyped(room, "participants_update", result.RoomID, result.NewHostID, participantsPayload(room), "")
		metrics.HostFailovers.Inc()
		return
	}

	d.broadcastTyped(room, "client_left", result.RoomID, result.ClientID, map[string]any{}, "")
	d.broadcastTyped(room, "participants_update", result.RoomID, result.ClientID, participantsPayload(room), "")
}
