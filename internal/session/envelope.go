package session

import (
	"encoding/json"
	"time"
)

// inboundEnvelope is the generic shape of every frame received on the
// session channel, per spec.md §4.3. Payload is kept raw so each handler
// can decode its own expected shape.
type inboundEnvelope struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Client  string          `json:"client"`
	Payload json.RawMessage `json:"payload"`
	Ts      int64           `json:"ts"`
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

// makeMessage builds a server-originated envelope: ts and server_ts are
// both stamped to the current time, matching app.py's make_message.
func makeMessage(msgType, room, client string, payload any) map[string]any {
	now := nowMS()
	return map[string]any{
		"type":      msgType,
		"room":      room,
		"client":    client,
		"payload":   payload,
		"ts":        now,
		"server_ts": now,
	}
}

// stampServerTS copies an inbound frame and overwrites its server_ts field
// with the current time, leaving every other field — including payload
// shapes the server doesn't otherwise model — untouched. Grounded on
// app.py's stamp_server_ts, which rebuilds a shallow dict copy rather than
// re-deriving a new envelope.
func stampServerTS(raw []byte) ([]byte, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	generic["server_ts"] = nowMS()
	return json.Marshal(generic)
}
