package session

import "github.com/opensyncparty/watchparty/internal/registry"

type participantView struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	IsHost   bool   `json:"is_host"`
}

func participantViews(room *registry.Room) []participantView {
	snapshot := room.Snapshot()
	views := make([]participantView, 0, len(snapshot))
	hostID := room.HostID()
	for _, p := range snapshot {
		views = append(views, participantView{
			ClientID: p.ClientID,
			Name:     p.Name,
			IsHost:   p.ClientID == hostID,
		})
	}
	return views
}

// roomStatePayload mirrors app.py's room_state_payload: the full room
// snapshot sent to a creator/joiner on entry.
func roomStatePayload(room *registry.Room) map[string]any {
	return map[string]any{
		"room":              room.ID,
		"host_id":           room.HostID(),
		"media_url":         room.MediaURL,
		"options":           room.Options,
		"state":             room.State(),
		"participants":      participantViews(room),
		"participant_count": room.ParticipantCount(),
	}
}

// participantsPayload mirrors app.py's participants_payload, the lighter
// roster broadcast on join/leave/failover.
func participantsPayload(room *registry.Room) map[string]any {
	return map[string]any{
		"participants":      participantViews(room),
		"participant_count": room.ParticipantCount(),
	}
}
