package handlers

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/noteduco342/OMInbox-backend/internal/handlers/ws"
	"github.com/noteduco342/OMInbox-backend/internal/service"
)

type WebSocketHandler struct {
	inbox *service.InboxService
	hub   *ws.Hub
}

func NewWebSocketHandler(inbox *service.InboxService, hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		inbox: inbox,
		hub:   hub,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return
	}
	wsDebug := os.Getenv("WS_DEBUG") == "true"

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	client := h.hub.Register(userID, c, supportsGzip)
	defer h.hub.Unregister(userID, c)

	timeout := h.hub.PongTimeout()
	c.SetReadDeadline(time.Now().Add(timeout))
	c.SetPongHandler(func(string) error {
		h.hub.Touch(userID)
		return c.SetReadDeadline(time.Now().Add(timeout))
	})

	log.Printf("User %d connected via WebSocket", userID)

	ctx := &ws.MessageContext{
		UserID: userID,
		Client: client,
		Hub:    h.hub,
		Inbox:  h.inbox,
	}

	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			log.Printf("Error reading message from user %d: %v", userID, err)
			break
		}
		c.SetReadDeadline(time.Now().Add(timeout))

		if wsDebug {
			log.Printf("ws_recv user_id=%d frame_type=%d size=%d", userID, messageType, len(messageBytes))
		}

		// Binary frames are gzip compressed
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.DecompressMessage(messageBytes)
			if err != nil {
				log.Printf("Error decompressing message from user %d: %v", userID, err)
				ws.SendError(client, "decompression_failed", "Failed to decompress message", err.Error())
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			log.Printf("Error deserializing message from user %d: %v", userID, err)
			ws.SendError(client, "invalid_message", "Invalid message format", err.Error())
			continue
		}

		if err := msg.Process(ctx); err != nil {
			log.Printf("Error processing message %s from user %d: %v", msg.GetType(), userID, err)
			ws.SendError(client, "processing_failed", "Failed to process message", err.Error())
		}
	}

	log.Printf("User %d disconnected from WebSocket", userID)
}
