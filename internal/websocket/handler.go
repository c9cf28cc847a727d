package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWatcher attaches conn to a session's event feed and blocks until the
// peer disconnects.
func ServeWatcher(hub *Hub, conn *websocket.Conn, sessionID uuid.UUID) {
	client := &Client{Hub: hub, Conn: conn, SessionID: sessionID, Send: make(chan []byte, 256)}
	client.Hub.Register(client)

	go client.writePump()
	client.readPump()
}
