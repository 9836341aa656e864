// Package registry implements the process-wide room registry and
// broadcaster described in spec.md §4.2: a room_id → Room map plus a
// channel → participant index used for disconnect cleanup, with
// registry-then-room mutex ordering enforced by never holding both locks
// at once. Grounded on the teacher's Hub (internal/v1/session/hub.go),
// generalized from a video-conference room factory to a flatter
// single-host watch-party room.
package registry

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/opensyncparty/watchparty/internal/metrics"
)

// Sentinel errors surfaced to the dispatcher, which maps them onto the
// error-frame codes in spec.md §4.3.
var (
	ErrRoomExists  = errors.New("room already exists")
	ErrRoomMissing = errors.New("room not found")
)

type channelEntry struct {
	roomID   string
	clientID string
}

// Registry owns every active Room and the channel→participant index used
// to clean up on disconnect.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	channels map[Channel]channelEntry
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		channels: make(map[Channel]channelEntry),
	}
}

// RoomCount reports the number of active rooms, for GET /health.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// CreateRoom creates and registers a new room with creator as its sole
// participant and host. Returns ErrRoomExists if roomID is already taken.
func (reg *Registry) CreateRoom(roomID, creatorID, creatorName, mediaURL string, options map[string]any, startPos float64, ch Channel) (*Room, error) {
	room := NewRoom(roomID, mediaURL, options, startPos)
	room.SetHostID(creatorID)

	reg.mu.Lock()
	if _, exists := reg.rooms[roomID]; exists {
		reg.mu.Unlock()
		return nil, ErrRoomExists
	}
	reg.rooms[roomID] = room
	reg.channels[ch] = channelEntry{roomID: roomID, clientID: creatorID}
	reg.mu.Unlock()

	room.AddParticipant(&Participant{ClientID: creatorID, Name: creatorName, Channel: ch})
	metrics.ActiveRooms.Inc()
	metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(room.ParticipantCount()))
	return room, nil
}

// GetRoom returns the room for roomID, if it exists.
func (reg *Registry) GetRoom(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[roomID]
	return room, ok
}

// JoinRoom adds clientID to an existing room as a participant. Returns
// ErrRoomMissing if roomID isn't registered.
func (reg *Registry) JoinRoom(roomID, clientID, name string, ch Channel) (*Room, error) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return nil, ErrRoomMissing
	}
	reg.channels[ch] = channelEntry{roomID: roomID, clientID: clientID}
	reg.mu.Unlock()

	room.AddParticipant(&Participant{ClientID: clientID, Name: name, Channel: ch})
	metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(room.ParticipantCount()))
	return room, nil
}

// DisconnectResult describes the outcome of removing a channel from its
// room, for the dispatcher to turn into host_change/client_left/
// participants_update frames.
type DisconnectResult struct {
	RoomID      string
	ClientID    string
	WasHost     bool
	NewHostID   string
	RoomEmptied bool
}

// Disconnect removes ch's participant from its room (if any), deleting the
// room when it becomes empty. ok is false if ch was never registered.
func (reg *Registry) Disconnect(ch Channel) (result DisconnectResult, ok bool) {
	reg.mu.Lock()
	entry, found := reg.channels[ch]
	if !found {
		reg.mu.Unlock()
		return DisconnectResult{}, false
	}
	delete(reg.channels, ch)
	room := reg.rooms[entry.roomID]
	reg.mu.Unlock()

	if room == nil {
		return DisconnectResult{}, false
	}

	wasHost, newHostID, empty := room.RemoveParticipant(entry.clientID)
	metrics.RoomParticipants.WithLabelValues(entry.roomID).Set(float64(room.ParticipantCount()))

	if empty {
		reg.mu.Lock()
		delete(reg.rooms, entry.roomID)
		reg.mu.Unlock()
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(entry.roomID)
	}

	return DisconnectResult{
		RoomID:      entry.roomID,
		ClientID:    entry.clientID,
		WasHost:     wasHost,
		NewHostID:   newHostID,
		RoomEmptied: empty,
	}, true
}

// Broadcast serializes msg once and delivers it to every participant in
// room except excludeClientID. Channels whose send fails are collected
// during the pass and evicted afterward, without holding the room lock
// during delivery (spec.md §5: copy the target list under the room lock,
// release, then send). Eviction here never triggers host failover — only
// a later clean Disconnect does.
func (reg *Registry) Broadcast(room *Room, msg any, excludeClientID string) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	reg.BroadcastBytes(room, data, excludeClientID)
	return nil
}

// BroadcastBytes is Broadcast for callers that already hold a serialized
// frame — used to relay an inbound envelope with its server_ts field
// overwritten, without re-deriving the envelope from scratch.
func (reg *Registry) BroadcastBytes(room *Room, data []byte, excludeClientID string) {
	targets := room.Snapshot()
	var failed []string
	for _, p := range targets {
		if p.ClientID == excludeClientID {
			continue
		}
		if !p.Channel.Send(data) {
			failed = append(failed, p.ClientID)
		}
	}

	if len(failed) > 0 {
		room.evict(failed)
		metrics.BroadcastEvictions.WithLabelValues(room.ID).Add(float64(len(failed)))
		metrics.RoomParticipants.WithLabelValues(room.ID).Set(float64(room.ParticipantCount()))
	}
}
