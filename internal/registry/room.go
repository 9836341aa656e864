package registry

import "sync"

// Room holds the shared playback state and membership of one watch party.
// All mutation goes through Room's own mutex; callers must never hold the
// Registry's lock while acquiring a Room's lock (registry-then-room
// ordering, never reversed — spec.md §5). Grounded on the teacher's
// Hub/Room split (internal/v1/session/{hub,room}.go), generalized from a
// WebRTC room's hosts/participants/waiting maps down to this domain's
// single host + participant set.
type Room struct {
	ID       string
	MediaURL string
	Options  map[string]any

	mu      sync.RWMutex
	hostID  string
	state   PlaybackState
	clients *OrderedClients
}

// NewRoom constructs an empty, paused Room at startPos. It has no
// participants and no host; CreateRoom sets both.
func NewRoom(id, mediaURL string, options map[string]any, startPos float64) *Room {
	if options == nil {
		options = map[string]any{}
	}
	return &Room{
		ID:       id,
		MediaURL: mediaURL,
		Options:  options,
		state:    PlaybackState{Position: startPos, PlayState: "paused"},
		clients:  newOrderedClients(),
	}
}

// AddParticipant inserts a participant at the back of join order. The
// first participant added to a freshly created Room is expected to also be
// passed as hostID by the caller (CreateRoom sets HostID directly).
func (r *Room) AddParticipant(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients.Add(p)
}

// RemoveParticipant removes a participant from the room, reporting whether
// it was the host and who the new host is (empty string if the room is
// now empty). Host promotion picks the first remaining participant in join
// order, per spec.md §4.2. A host already evicted by a failed broadcast
// still holds the host seat, so its removal here runs the promotion.
func (r *Room) RemoveParticipant(clientID string) (wasHost bool, newHostID string, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients.Remove(clientID)

	wasHost = r.hostID == clientID
	if !wasHost {
		return false, "", r.clients.Len() == 0
	}

	if first, ok := r.clients.First(); ok {
		r.hostID = first.ClientID
		return true, first.ClientID, false
	}
	return true, "", true
}

// HostID returns the current host's client ID.
func (r *Room) HostID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID
}

// SetHostID assigns the room's initial host. Used once, by CreateRoom.
func (r *Room) SetHostID(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostID = clientID
}

// IsHost reports whether clientID currently holds the host seat.
func (r *Room) IsHost(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID == clientID
}

// FreePlayEnabled reports whether options.free_play is truthy, permitting
// non-host participants to drive playback.
func (r *Room) FreePlayEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fp, _ := r.Options["free_play"].(bool)
	return fp
}

// ApplyPlayback mutates playback state. action is "play", "pause", or ""
// (no play_state change, e.g. a bare state_update position carry or
// force_resync); position is applied when non-nil. Grounded on spec.md
// §4.2's state-mutation rules and app.py's handle_player_event /
// handle_state_update.
func (r *Room) ApplyPlayback(action string, position *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch action {
	case "play":
		r.state.PlayState = "playing"
	case "pause":
		r.state.PlayState = "paused"
	}
	if position != nil {
		r.state.Position = *position
	}
}

// State returns a copy of the room's current playback state.
func (r *Room) State() PlaybackState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Snapshot returns the room's participants in join order. Safe to call
// without any external locking.
func (r *Room) Snapshot() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients.Snapshot()
}

// ParticipantCount reports the number of connected participants.
func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients.Len()
}

// evict removes participants (after a failed broadcast send) without
// triggering host-failover logic, per spec.md §4.2: eviction is only
// observed later, when the channel would otherwise disconnect cleanly.
func (r *Room) evict(clientIDs []string) {
	if len(clientIDs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range clientIDs {
		r.clients.Remove(id)
	}
}
