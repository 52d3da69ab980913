package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/curator/go/internal/ranking"
	"github.com/rs/zerolog/log"
)

// ActionSink receives user-initiated events from connected clients. The
// ranking engine implements this.
type ActionSink interface {
	Start(ctx context.Context, conversation string) error
	HandleAction(ctx context.Context, conversation string, tag string) error
}

var _ ranking.Gateway = (*ConnectionManager)(nil)

// ConnectionManager manages the websocket connections for ranking sessions.
// It is the concrete messaging gateway: the engine renders panels through it
// and receives action tags back from it.
type ConnectionManager struct {
	// Connection pools organized by conversation
	conversationConnections map[string]map[*Connection]bool
	mu                      sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Engine-side consumer of client actions
	actions ActionSink

	// Event broadcasting
	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID           string
	Conversation string
	Conn         *websocket.Conn
	Send         chan []byte
	Manager      *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to broadcast to a conversation's
// connections.
type BroadcastMessage struct {
	Conversation string
	Data         []byte
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, actions ActionSink) *ConnectionManager {
	return &ConnectionManager{
		conversationConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		actions:     actions,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// panelFrame is the wire form of a rendered panel. Each frame carries a new
// message id and replaces whatever message the client currently shows for
// the conversation, so at most one panel is ever live.
type panelFrame struct {
	Type      string                `json:"type"`
	MessageID string                `json:"message_id"`
	Text      string                `json:"text"`
	Actions   []ranking.PanelAction `json:"actions"`
}

// Render pushes a panel to every connection of a conversation and returns
// the new message handle. Implements the engine's Gateway interface.
func (cm *ConnectionManager) Render(ctx context.Context, conversation string, panel ranking.Panel) (string, error) {
	messageID := uuid.New().String()
	frame := panelFrame{
		Type:      string(EventTypePanel),
		MessageID: messageID,
		Text:      panel.Text,
		Actions:   panel.Actions,
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("failed to marshal panel frame: %w", err)
	}

	select {
	case cm.broadcastCh <- BroadcastMessage{Conversation: conversation, Data: data}:
	default:
		return "", fmt.Errorf("broadcast channel full")
	}

	return messageID, nil
}

// BroadcastEvent sends a session event to all connections for a conversation.
func (cm *ConnectionManager) BroadcastEvent(conversation string, event *SessionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	select {
	case cm.broadcastCh <- BroadcastMessage{Conversation: conversation, Data: data}:
	default:
		log.Warn().Str("conversation", conversation).Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, conversation string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		Conversation: conversation,
		Conn:         conn,
		Send:         make(chan []byte, 256),
		Manager:      cm,
		ConnectedAt:  time.Now(),
		LastPing:     time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("conversation", conversation).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.conversationConnections[conn.Conversation] == nil {
		cm.conversationConnections[conn.Conversation] = make(map[*Connection]bool)
	}
	cm.conversationConnections[conn.Conversation][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("conversation", conn.Conversation).
		Int("total_connections", len(cm.conversationConnections[conn.Conversation])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.conversationConnections[conn.Conversation]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			// Clean up empty conversation pools
			if len(connections) == 0 {
				delete(cm.conversationConnections, conn.Conversation)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("conversation", conn.Conversation).
				Msg("connection unregistered")
		}
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.conversationConnections[message.Conversation]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot so the lock is not held during sends
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- message.Data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("conversation", message.Conversation).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	conversationCounts := make(map[string]int)

	for conversation, connections := range cm.conversationConnections {
		count := len(connections)
		totalConnections += count
		conversationCounts[conversation] = count
	}

	return map[string]interface{}{
		"total_connections":        totalConnections,
		"active_conversations":     len(cm.conversationConnections),
		"conversation_connections": conversationCounts,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// clientMessage is the wire form of a user-initiated event.
type clientMessage struct {
	Type string `json:"type"` // "start" | "action"
	Tag  string `json:"tag,omitempty"`
}

// handleClientMessage routes a client frame into the engine.
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Msg("dropping malformed client message")
		return
	}

	ctx := context.Background()
	switch msg.Type {
	case "start":
		if err := c.Manager.actions.Start(ctx, c.Conversation); err != nil {
			log.Error().
				Err(err).
				Str("conversation", c.Conversation).
				Msg("failed to start session")
		}
	case "action":
		if err := c.Manager.actions.HandleAction(ctx, c.Conversation, msg.Tag); err != nil {
			log.Error().
				Err(err).
				Str("conversation", c.Conversation).
				Str("tag", msg.Tag).
				Msg("failed to handle action")
		}
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("unknown client message type")
	}
}
