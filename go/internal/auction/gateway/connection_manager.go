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
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections and their auction rooms
type ConnectionManager struct {
	// Every live connection, and the subset that joined each auction room
	connections map[*Connection]struct{}
	rooms       map[uuid.UUID]map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Auction rooms this connection joined, guarded by Manager.mu
	rooms map[uuid.UUID]struct{}

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
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a frame queued for delivery.
// All sends to every connection; otherwise only the auction room receives it.
type BroadcastMessage struct {
	AuctionID uuid.UUID
	All       bool
	Frame     Frame
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
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		rooms:       make(map[uuid.UUID]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes queued broadcasts until ctx is done
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

// UpgradeConnection upgrades an HTTP connection to WebSocket.
// A non-nil auctionID joins that room straight away.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, auctionID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		rooms:       make(map[uuid.UUID]struct{}),
		ConnectedAt: now,
		LastPing:    now,
	}

	cm.registerConnection(connection)
	if auctionID != uuid.Nil {
		cm.Join(connection, auctionID)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("auction_id", auctionID.String()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection drops a connection from the registry and every room.
// Safe to call more than once; Send is closed exactly once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.connections[conn]; !ok {
		return
	}
	delete(cm.connections, conn)
	for auctionID := range conn.rooms {
		cm.leaveLocked(conn, auctionID)
	}
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Msg("connection unregistered")
}

// Join subscribes a connection to an auction room
func (cm *ConnectionManager) Join(conn *Connection, auctionID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.connections[conn]; !ok {
		return
	}
	room := cm.rooms[auctionID]
	if room == nil {
		room = make(map[*Connection]struct{})
		cm.rooms[auctionID] = room
	}
	room[conn] = struct{}{}
	conn.rooms[auctionID] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("auction_id", auctionID.String()).
		Int("room_size", len(room)).
		Msg("joined auction room")
}

// Leave unsubscribes a connection from an auction room
func (cm *ConnectionManager) Leave(conn *Connection, auctionID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.leaveLocked(conn, auctionID)
}

func (cm *ConnectionManager) leaveLocked(conn *Connection, auctionID uuid.UUID) {
	delete(conn.rooms, auctionID)
	room, ok := cm.rooms[auctionID]
	if !ok {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(cm.rooms, auctionID)
	}
}

// BroadcastToAuction queues a frame for the auction's room
func (cm *ConnectionManager) BroadcastToAuction(auctionID uuid.UUID, frame Frame) {
	cm.enqueue(BroadcastMessage{AuctionID: auctionID, Frame: frame})
}

// BroadcastAll queues a frame for every connection
func (cm *ConnectionManager) BroadcastAll(frame Frame) {
	cm.enqueue(BroadcastMessage{All: true, Frame: frame})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("auction_id", message.AuctionID.String()).
			Str("frame", string(message.Frame.FrameType())).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast delivers one message. Sends happen under the read lock so
// that a concurrent unregister cannot close Send mid-delivery.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	targets := cm.connections
	if !message.All {
		targets = cm.rooms[message.AuctionID]
	}
	for conn := range targets {
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("frame", string(message.Frame.FrameType())).
		Str("auction_id", message.AuctionID.String()).
		Bool("global", message.All).
		Int("connections", delivered).
		Msg("frame broadcasted")
}

// ConnectionStats summarizes the registry
type ConnectionStats struct {
	TotalConnections int            `json:"totalConnections"`
	ActiveRooms      int            `json:"activeRooms"`
	RoomConnections  map[string]int `json:"roomConnections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int, len(cm.rooms))
	for auctionID, room := range cm.rooms {
		counts[auctionID.String()] = len(room)
	}
	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.rooms),
		RoomConnections:  counts,
	}
}

// RoomSize returns how many connections joined the auction room
func (cm *ConnectionManager) RoomSize(auctionID uuid.UUID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.rooms[auctionID])
}

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
		}
	}
}

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

// handleClientMessage applies join/leave requests; anything else is ignored
func (c *Connection) handleClientMessage(message []byte) {
	action, auctionID, err := ParseClientMessage(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("ignoring client message")
		return
	}

	switch action {
	case ActionJoin:
		c.Manager.Join(c, auctionID)
	case ActionLeave:
		c.Manager.Leave(c, auctionID)
	}
}
