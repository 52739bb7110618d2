package model

import (
	"strings"
	"time"
)

type RoomStatus = string

const (
	StatusWaiting RoomStatus = "waiting"
	StatusPlaying RoomStatus = "playing"
	StatusEnded   RoomStatus = "ended"
)

const (
	CodeLength   = 4
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NormalizeCode maps user-supplied room codes onto their canonical form.
// Codes are case-insensitive on input and stored uppercase.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LastImage is the most recent handoff published in a room.
type LastImage struct {
	SenderID string    `json:"sender"`
	ImageRef string    `json:"image"`
	SentAt   time.Time `json:"sent_at"`
}

// Room is the shared document representing one match between two
// participants. The store is the single source of truth for it; clients
// only ever hold snapshots delivered by a subscription.
type Room struct {
	Code          string     `json:"code"`
	HostID        string     `json:"host"`
	GuestID       string     `json:"guest,omitempty"`
	Status        RoomStatus `json:"status"`
	CurrentTurnID string     `json:"current_turn,omitempty"`
	LastImage     *LastImage `json:"last_image,omitempty"`
	ImageCount    int        `json:"image_count"`
	CreatedAt     time.Time  `json:"created_at"`

	// Version is bumped by the store on every commit. Subscribers use it
	// to drop duplicate or out-of-order deliveries.
	Version uint64 `json:"version"`
}

func (r *Room) HasGuest() bool {
	return r.GuestID != ""
}

func (r *Room) IsMember(id string) bool {
	return id != "" && (id == r.HostID || id == r.GuestID)
}

// Other returns the participant opposite to id, or "" when id is not a
// member of the room.
func (r *Room) Other(id string) string {
	switch id {
	case r.HostID:
		return r.GuestID
	case r.GuestID:
		return r.HostID
	}
	return ""
}

// CanSend reports whether id holds the right to publish the next image.
func (r *Room) CanSend(id string) bool {
	return r.Status == StatusPlaying && r.CurrentTurnID == id
}

// Clone returns an independent copy of the room document.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	clone := *r
	if r.LastImage != nil {
		img := *r.LastImage
		clone.LastImage = &img
	}
	return &clone
}
