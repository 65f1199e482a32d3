package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/boardstack/boardstack/services"
)

// HandleWebSocket upgrades the connection and attaches it to the hub. A user
// may hold several connections at once (tabs, devices); each gets its own
// client.
func (h *DataHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user not found", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins in development
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := &services.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
	h.hub.Register(client)
	log.Printf("WebSocket client registered: %s", userID)

	go client.WritePump()
	go client.ReadPump()
}
