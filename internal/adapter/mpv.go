// Package adapter implements the player-adapter half of spec.md §4.4: a
// bridge between a local mpv JSON IPC socket and a session channel,
// grounded on _examples/original_source/clients/mpv/opensyncparty.py.
package adapter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
)

// MPVConn is a newline-delimited JSON connection to mpv's JSON IPC socket
// (spec.md §6, Player IPC). Each outbound command carries a monotonically
// increasing request_id.
type MPVConn struct {
	conn      net.Conn
	reader    *bufio.Reader
	requestID int64
}

// DialMPV connects to the UNIX-domain socket at path.
func DialMPV(path string) (*MPVConn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial mpv socket %s: %w", path, err)
	}
	return &MPVConn{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying socket.
func (m *MPVConn) Close() error {
	return m.conn.Close()
}

// Send writes one newline-terminated JSON command, returning the
// request_id assigned to it.
func (m *MPVConn) Send(command []any) (int64, error) {
	id := atomic.AddInt64(&m.requestID, 1)
	frame := map[string]any{"command": command, "request_id": id}
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	_, err = m.conn.Write(data)
	return id, err
}

// ObserveProperty subscribes to property with observer id propID.
func (m *MPVConn) ObserveProperty(propID int, name string) error {
	_, err := m.Send([]any{"observe_property", propID, name})
	return err
}

// SetProperty issues an mpv set_property command.
func (m *MPVConn) SetProperty(name string, value any) error {
	_, err := m.Send([]any{"set_property", name, value})
	return err
}

// Event is one decoded inbound line from mpv: a property-change
// notification or a bare seek event.
type Event struct {
	Event string `json:"event"`
	Name  string `json:"name"`
	Data  any    `json:"data"`
}

// Recv blocks for the next newline-delimited JSON event.
func (m *MPVConn) Recv() (Event, error) {
	line, err := m.reader.ReadString('\n')
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
