package registry

import "container/list"

// Channel abstracts delivery to a single connected participant. Send
// reports whether the frame was accepted; a false return evicts the
// participant from whichever room it belongs to on the next broadcast.
// Implemented by *session.Client in production and by fakes in tests.
type Channel interface {
	Send(data []byte) bool
}

// Participant is one connected member of a Room.
type Participant struct {
	ClientID string
	Name     string
	Channel  Channel
}

// PlaybackState is the room's shared player state.
type PlaybackState struct {
	Position  float64 `json:"position"`
	PlayState string  `json:"play_state"`
}

// OrderedClients is an insertion-ordered participant set: iteration order
// reflects join order, required so host failover promotes the first
// remaining participant. Grounded on the teacher's container/list-based
// draw-order queues (internal/v1/session/room.go), generalized here to
// carry a single authoritative ordering instead of several UI-specific
// ones.
type OrderedClients struct {
	order *list.List
	index map[string]*list.Element
}

func newOrderedClients() *OrderedClients {
	return &OrderedClients{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Add appends a participant to the back of the join order. A participant
// already present is left untouched.
func (o *OrderedClients) Add(p *Participant) {
	if _, exists := o.index[p.ClientID]; exists {
		return
	}
	elem := o.order.PushBack(p)
	o.index[p.ClientID] = elem
}

// Remove deletes a participant from the order, reporting whether it was
// present.
func (o *OrderedClients) Remove(clientID string) bool {
	elem, ok := o.index[clientID]
	if !ok {
		return false
	}
	o.order.Remove(elem)
	delete(o.index, clientID)
	return true
}

// Get returns the participant for clientID, if present.
func (o *OrderedClients) Get(clientID string) (*Participant, bool) {
	elem, ok := o.index[clientID]
	if !ok {
		return nil, false
	}
	return elem.Value.(*Participant), true
}

// First returns the participant at the front of join order.
func (o *OrderedClients) First() (*Participant, bool) {
	front := o.order.Front()
	if front == nil {
		return nil, false
	}
	return front.Value.(*Participant), true
}

// Len reports the number of participants currently tracked.
func (o *OrderedClients) Len() int {
	return o.order.Len()
}

// Snapshot returns the participants in join order. Safe to range over
// without holding the owning Room's lock.
func (o *OrderedClients) Snapshot() []*Participant {
	out := make([]*Participant, 0, o.order.Len())
	for e := o.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Participant))
	}
	return out
}
