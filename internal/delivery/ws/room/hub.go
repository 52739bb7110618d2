package ws_room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/picswap/core/internal/model"
	usecase_session "github.com/picswap/core/internal/usecase/session"
)

const (
	EventRoomState  = "ROOM_STATE"
	EventRoomClosed = "ROOM_CLOSED"
)

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub fans room snapshots out to the websocket clients watching each
// room. It holds exactly one store subscription per active room,
// refcounted by connected clients.
type Hub struct {
	sessions *usecase_session.Usecase
	logger   *slog.Logger

	mu    sync.Mutex
	rooms map[string]*roomFeed
}

type roomFeed struct {
	clients map[*Client]bool
	sub     usecase_session.Subscription
}

func NewHub(sessions *usecase_session.Usecase) *Hub {
	return &Hub{
		sessions: sessions,
		logger:   slog.Default(),
		rooms:    make(map[string]*roomFeed),
	}
}

func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, ok := h.rooms[client.roomCode]
	if !ok {
		sub, err := h.sessions.Subscribe(context.Background(), client.roomCode)
		if err != nil {
			return err
		}
		feed = &roomFeed{
			clients: make(map[*Client]bool),
			sub:     sub,
		}
		h.rooms[client.roomCode] = feed
		go h.pump(client.roomCode, sub)
	}
	feed.clients[client] = true

	h.logger.Info("client registered",
		"user_id", client.userID,
		"room", client.roomCode)
	return nil
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, ok := h.rooms[client.roomCode]
	if !ok {
		return
	}
	if _, ok := feed.clients[client]; !ok {
		return
	}

	delete(feed.clients, client)
	close(client.send)

	if len(feed.clients) == 0 {
		feed.sub.Unsubscribe()
		delete(h.rooms, client.roomCode)
	}

	h.logger.Info("client unregistered",
		"user_id", client.userID,
		"room", client.roomCode)
}

// pump forwards the subscription feed into the room's clients. Every
// delivery is a full-state replace on the client side, never a patch.
func (h *Hub) pump(roomCode string, sub usecase_session.Subscription) {
	for ev := range sub.Events() {
		if ev.Deleted {
			h.broadcastToRoom(roomCode, Event{
				Type: EventRoomClosed,
				Payload: map[string]interface{}{
					"room_code": roomCode,
				},
			})
			continue
		}
		h.broadcastToRoom(roomCode, Event{
			Type:    EventRoomState,
			Payload: snapshotOf(ev.Room),
		})
	}
}

type LastImageSnapshot struct {
	SenderID string    `json:"sender_id"`
	ImageRef string    `json:"image_ref"`
	SentAt   time.Time `json:"sent_at"`
}

// RoomSnapshot is the full room state pushed on every commit.
type RoomSnapshot struct {
	Code          string             `json:"code"`
	Status        string             `json:"status"`
	HostID        string             `json:"host_id"`
	GuestID       string             `json:"guest_id,omitempty"`
	CurrentTurnID string             `json:"current_turn_id,omitempty"`
	LastImage     *LastImageSnapshot `json:"last_image,omitempty"`
	ImageCount    int                `json:"image_count"`
}

func snapshotOf(room *model.Room) RoomSnapshot {
	snapshot := RoomSnapshot{
		Code:          room.Code,
		Status:        room.Status,
		HostID:        room.HostID,
		GuestID:       room.GuestID,
		CurrentTurnID: room.CurrentTurnID,
		ImageCount:    room.ImageCount,
	}
	if room.LastImage != nil {
		snapshot.LastImage = &LastImageSnapshot{
			SenderID: room.LastImage.SenderID,
			ImageRef: room.LastImage.ImageRef,
			SentAt:   room.LastImage.SentAt,
		}
	}
	return snapshot
}

func (h *Hub) broadcastToRoom(roomCode string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, ok := h.rooms[roomCode]
	if !ok {
		return
	}
	for client := range feed.clients {
		select {
		case client.send <- event:
		default:
			// Slow consumer: skip, the next snapshot supersedes this one.
		}
	}
}
