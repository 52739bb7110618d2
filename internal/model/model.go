package model

import "time"

type Role = string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Participant is client-local identity within one room. It is never
// persisted beyond the room document's host/guest fields.
type Participant struct {
	ID       string
	RoomCode string
	Role     Role
}

// ParticipantFor resolves id into its membership within the room.
func (r *Room) ParticipantFor(id string) (Participant, bool) {
	if id == "" {
		return Participant{}, false
	}
	switch id {
	case r.HostID:
		return Participant{ID: id, RoomCode: r.Code, Role: RoleHost}, true
	case r.GuestID:
		return Participant{ID: id, RoomCode: r.Code, Role: RoleGuest}, true
	}
	return Participant{}, false
}

// RoomEvent is one full-state delivery from a room subscription.
// Every event replaces the previous snapshot entirely; it is never a diff.
type RoomEvent struct {
	Room    *Room
	Deleted bool
	Version uint64
}

// MatchRecord is the archived summary of a finished match.
type MatchRecord struct {
	Code       string
	HostID     string
	GuestID    string
	ImageCount int
	CreatedAt  time.Time
	EndedAt    time.Time
}
