package ws_room

import (
	"github.com/gorilla/websocket"
)

type Client struct {
	conn     *websocket.Conn
	send     chan Event
	userID   string
	roomCode string
}

// StartClientReading blocks until the peer goes away; inbound frames are
// ignored since the room feed is one-way.
func (h *Hub) StartClientReading(client *Client) {
	defer func() {
		h.Unregister(client)
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) StartClientWriting(client *Client) {
	defer client.conn.Close()

	for event := range client.send {
		if err := client.conn.WriteJSON(event); err != nil {
			break
		}
	}
}
