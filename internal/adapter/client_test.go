package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeMPV wires an MPVConn to one end of a net.Pipe so tests can feed it
// inbound JSON lines without a real mpv socket. The caller owns the server
// end and must close it.
func pipeMPV(t *testing.T) (*MPVConn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	return &MPVConn{conn: client, reader: bufio.NewReader(client)}, server
}

// fakeWS captures frames written via WriteMessage for assertions.
type fakeWS struct {
	sent [][]byte
}

func (f *fakeWS) WriteMessage(_ int, data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}
func (f *fakeWS) ReadMessage() (int, []byte, error) { select {} }
func (f *fakeWS) Close() error                      { return nil }

func (f *fakeWS) lastFrame(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, f.sent, "expected at least one outbound frame")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(f.sent[len(f.sent)-1], &decoded))
	return decoded
}

func TestSuppression_BlocksWithinWindowAllowsAfter(t *testing.T) {
	c := New(Config{Host: true, Room: "r"})
	assert.True(t, c.shouldSend(), "no suppression engaged yet")

	c.suppress()
	assert.False(t, c.shouldSend(), "suppression window should block sends immediately after engaging")

	time.Sleep(suppressWindow + 50*time.Millisecond)
	assert.True(t, c.shouldSend(), "suppression window should have elapsed")
}

func TestOnPropertyChange_TimePosBelowThresholdDoesNotEmit(t *testing.T) {
	c := New(Config{Host: true, Room: "r"})
	ws := &fakeWS{}
	c.ws = ws
	c.rememberTimePos(10.0)

	require.NoError(t, c.onPropertyChange(Event{Event: "property-change", Name: "time-pos", Data: 10.5}))

	assert.Empty(t, ws.sent, "a sub-threshold time-pos change must not emit a player_event")
	pos, ok := c.recallLastTimePos()
	require.True(t, ok)
	assert.Equal(t, 10.5, pos)
}

func TestOnPropertyChange_TimePosAboveThresholdEmitsSeek(t *testing.T) {
	c := New(Config{Host: true, Room: "r"})
	ws := &fakeWS{}
	c.ws = ws
	c.rememberTimePos(10.0)

	require.NoError(t, c.onPropertyChange(Event{Event: "property-change", Name: "time-pos", Data: 12.0}))

	frame := ws.lastFrame(t)
	assert.Equal(t, "player_event", frame["type"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, "seek", payload["action"])
	assert.Equal(t, float64(12), payload["position"])
}

func TestOnPropertyChange_NonHostNeverEmits(t *testing.T) {
	c := New(Config{Host: false, Room: "r"})
	c.rememberTimePos(10.0)
	// No ws wired: a non-host reaching sendWS would panic on the nil field.
	require.NoError(t, c.onPropertyChange(Event{Event: "property-change", Name: "time-pos", Data: 50.0}))
}

func TestOnPropertyChange_SuppressedHostDoesNotEmit(t *testing.T) {
	c := New(Config{Host: true, Room: "r"})
	ws := &fakeWS{}
	c.ws = ws
	c.rememberTimePos(10.0)
	c.suppress()

	require.NoError(t, c.onPropertyChange(Event{Event: "property-change", Name: "time-pos", Data: 20.0}))

	assert.Empty(t, ws.sent, "a property change observed during the suppression window must not be re-emitted")
}

func TestOnPropertyChange_PauseTogglesAction(t *testing.T) {
	c := New(Config{Host: true, Room: "r"})
	ws := &fakeWS{}
	c.ws = ws
	c.rememberTimePos(3.0)

	require.NoError(t, c.onPropertyChange(Event{Event: "property-change", Name: "pause", Data: true}))
	frame := ws.lastFrame(t)
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, "pause", payload["action"])
}

func TestApplyRoomState_EngagesSuppressionOnPosition(t *testing.T) {
	mpv, server := pipeMPV(t)
	defer server.Close()
	go drain(server)
	c := New(Config{Host: true, Room: "r"})
	c.mpv = mpv

	require.NoError(t, c.applyRoomState(map[string]any{"position": 5.0, "play_state": "playing"}))
	assert.False(t, c.shouldSend())
}

func drain(conn net.Conn) {
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func TestHandleWSMessage_IgnoresOtherRooms(t *testing.T) {
	c := New(Config{Host: true, Room: "r"})
	ws := &fakeWS{}
	c.ws = ws

	raw := []byte(`{"type":"player_event","room":"other","payload":{"action":"pause"}}`)
	require.NoError(t, c.handleWSMessage(context.Background(), raw))
	assert.Empty(t, ws.sent)
}
