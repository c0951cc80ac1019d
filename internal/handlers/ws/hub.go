package ws

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/noteduco342/OMInbox-backend/internal/service"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// ClientConnection wraps a WebSocket connection with metadata
type ClientConnection struct {
	Conn         Conn
	UserID       uint
	LastPong     time.Time
	SupportsGzip bool
	PingTicker   *time.Ticker
	CloseChan    chan struct{}

	// one writer at a time: fan-out, pings and replies share the socket
	writeMu sync.Mutex
}

func (cc *ClientConnection) writeMessage(frameType int, data []byte) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return cc.Conn.WriteMessage(frameType, data)
}

// WriteJSON sends v as a text frame.
func (cc *ClientConnection) WriteJSON(v interface{}) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return cc.Conn.WriteJSON(v)
}

func (cc *ClientConnection) ping(deadline time.Time) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return cc.Conn.WriteControl(websocket.PingMessage, []byte{}, deadline)
}

// OutboundFrame is the envelope for server-pushed events.
type OutboundFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub tracks one live connection per user and pushes inbox events to them.
// Delivery is best effort: offline users are skipped, nothing is queued.
type Hub struct {
	clients      map[uint]*ClientConnection
	clientsMux   sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration
	gzipMinSize  int

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	hub := &Hub{
		clients:      make(map[uint]*ClientConnection),
		pingInterval: 30 * time.Second,
		pongTimeout:  90 * time.Second,
		gzipMinSize:  512,
		done:         make(chan struct{}),
	}

	go hub.connectionHealthChecker()

	return hub
}

// PongTimeout is how long a connection may stay silent before it is dropped.
func (h *Hub) PongTimeout() time.Duration {
	return h.pongTimeout
}

// Register adds a client connection, replacing any previous one for the user.
func (h *Hub) Register(userID uint, conn Conn, supportsGzip bool) *ClientConnection {
	clientConn := &ClientConnection{
		Conn:         conn,
		UserID:       userID,
		LastPong:     time.Now(),
		SupportsGzip: supportsGzip,
		PingTicker:   time.NewTicker(h.pingInterval),
		CloseChan:    make(chan struct{}),
	}

	h.clientsMux.Lock()
	if previous, exists := h.clients[userID]; exists {
		previous.PingTicker.Stop()
		close(previous.CloseChan)
	}
	h.clients[userID] = clientConn
	total := len(h.clients)
	h.clientsMux.Unlock()

	go h.pingRoutine(clientConn)

	log.Printf("User %d connected to hub (total: %d, gzip: %v)", userID, total, supportsGzip)
	return clientConn
}

// Unregister removes the user's connection if it is still conn. A stale
// connection closing after a reconnect leaves the new one in place.
func (h *Hub) Unregister(userID uint, conn Conn) {
	h.clientsMux.Lock()
	client, exists := h.clients[userID]
	if !exists || client.Conn != conn {
		h.clientsMux.Unlock()
		return
	}
	client.PingTicker.Stop()
	close(client.CloseChan)
	delete(h.clients, userID)
	count := len(h.clients)
	h.clientsMux.Unlock()
	log.Printf("User %d disconnected from hub (total: %d)", userID, count)
}

// Touch records a pong from the user's connection.
func (h *Hub) Touch(userID uint) {
	h.clientsMux.Lock()
	if client, exists := h.clients[userID]; exists {
		client.LastPong = time.Now()
	}
	h.clientsMux.Unlock()
}

// IsOnline checks if a user is connected
func (h *Hub) IsOnline(userID uint) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}

// SendToUser delivers one frame. Offline users are not an error.
func (h *Hub) SendToUser(userID uint, data interface{}) error {
	h.clientsMux.RLock()
	clientConn, exists := h.clients[userID]
	h.clientsMux.RUnlock()
	if !exists {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal frame for user %d: %w", userID, err)
	}

	// Compress if supported and beneficial
	finalData := jsonData
	frameType := websocket.TextMessage
	if clientConn.SupportsGzip && len(jsonData) > h.gzipMinSize {
		if compressed, err := compressData(jsonData); err == nil && len(compressed) < len(jsonData) {
			finalData = compressed
			frameType = websocket.BinaryMessage
		}
	}

	if err := clientConn.writeMessage(frameType, finalData); err != nil {
		h.Unregister(userID, clientConn.Conn)
		return fmt.Errorf("send to user %d: %w", userID, err)
	}
	return nil
}

// NotifyUsers pushes an inbox event to every connected recipient.
func (h *Hub) NotifyUsers(userIDs []uint, event service.ThreadEvent) error {
	frame := OutboundFrame{Type: string(event.Type), Payload: event}
	var errs []error
	for _, userID := range userIDs {
		if err := h.SendToUser(userID, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops background workers. Connections are closed by their handlers.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// pingRoutine sends periodic ping messages to keep connection alive
func (h *Hub) pingRoutine(client *ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Ping routine recovered from panic for user %d: %v", client.UserID, r)
		}
	}()

	for {
		select {
		case <-h.done:
			return
		case <-client.CloseChan:
			return
		case <-client.PingTicker.C:
			if err := client.ping(time.Now().Add(10 * time.Second)); err != nil {
				log.Printf("Ping failed for user %d: %v", client.UserID, err)
				h.Unregister(client.UserID, client.Conn)
				return
			}
		}
	}
}

// connectionHealthChecker removes connections that stopped answering pings
func (h *Hub) connectionHealthChecker() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.removeStale(time.Now())
		}
	}
}

func (h *Hub) removeStale(now time.Time) {
	h.clientsMux.RLock()
	dead := make([]*ClientConnection, 0)
	for _, client := range h.clients {
		if now.Sub(client.LastPong) > h.pongTimeout {
			dead = append(dead, client)
		}
	}
	h.clientsMux.RUnlock()

	for _, client := range dead {
		log.Printf("Removing dead connection for user %d (no pong received)", client.UserID)
		h.Unregister(client.UserID, client.Conn)
	}
}

func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)

	if _, err := gzipWriter.Write(data); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressMessage inflates a gzip binary frame sent by the client.
func DecompressMessage(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

var _ service.Notifier = (*Hub)(nil)
