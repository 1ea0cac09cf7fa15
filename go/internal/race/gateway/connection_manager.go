package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager tracks observer websockets per race and fans messages out
// to them.
type ConnectionManager struct {
	// Connection pools organized by race ID
	raceConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan *Message
}

// Connection represents a WebSocket connection to an observer
type Connection struct {
	ID      string
	Viewer  string
	RaceID  uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	// highest race version delivered; older and duplicate events are skipped
	lastVersion atomic.Int64
}

// advance records version as delivered and reports whether it is newer than
// anything the connection has already been sent.
func (c *Connection) advance(version int64) bool {
	for {
		cur := c.lastVersion.Load()
		if version <= cur {
			return false
		}
		if c.lastVersion.CompareAndSwap(cur, version) {
			return true
		}
	}
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
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		raceConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *Message, 1000),
	}
}

// Start processes broadcasts until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades the request and registers the observer. Events at
// or below seenVersion are not delivered to it. The connection's pumps are
// started by the caller via Serve.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, viewer string, raceID uuid.UUID, seenVersion int64) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Viewer:      viewer,
		RaceID:      raceID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	connection.lastVersion.Store(seenVersion)
	cm.registerConnection(connection)

	log.Info().
		Str("connection_id", connection.ID).
		Str("viewer", viewer).
		Str("race_id", raceID.String()).
		Msg("WebSocket connection established")

	return connection, nil
}

// Serve starts the read and write pumps of a registered connection.
func (c *Connection) Serve() {
	go c.writePump()
	go c.readPump()
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.raceConnections[conn.RaceID] == nil {
		cm.raceConnections[conn.RaceID] = make(map[*Connection]bool)
	}
	cm.raceConnections[conn.RaceID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("race_id", conn.RaceID.String()).
		Int("total_connections", len(cm.raceConnections[conn.RaceID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and closes its send channel. It
// is safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.raceConnections[conn.RaceID]
	if !exists || !connections[conn] {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.raceConnections, conn.RaceID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("race_id", conn.RaceID.String()).
		Msg("connection unregistered")
}

// Broadcast queues a message for every observer of its race.
func (cm *ConnectionManager) Broadcast(message *Message) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().Str("race_id", message.RaceID).Msg("broadcast channel full, dropping message")
	}
}

// SendTo queues a message for a single connection.
func (cm *ConnectionManager) SendTo(conn *Connection, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.raceConnections[conn.RaceID][conn] {
		return fmt.Errorf("connection %s is closed", conn.ID)
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", conn.ID)
	}
}

func (cm *ConnectionManager) handleBroadcast(message *Message) {
	raceID, err := uuid.Parse(message.RaceID)
	if err != nil {
		log.Error().Err(err).Msg("broadcast without a valid race id")
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}

	// Sends never block, so they happen under the read lock and can't race
	// with unregisterConnection closing a channel.
	var slow []*Connection
	skipped := 0
	cm.mu.RLock()
	connections := cm.raceConnections[raceID]
	for conn := range connections {
		if message.Type == MessageEvent && !conn.advance(message.Version) {
			skipped++
			continue
		}
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(connections) - len(slow) - skipped
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("race_id", message.RaceID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("type", string(message.Type)).
		Str("race_id", message.RaceID).
		Int64("version", message.Version).
		Int("connections", delivered).
		Msg("message broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.raceConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// ConnectionStats summarizes active connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRaces      int            `json:"active_races"`
	RaceConnections  map[string]int `json:"race_connections"`
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRaces:     len(cm.raceConnections),
		RaceConnections: make(map[string]int, len(cm.raceConnections)),
	}
	for raceID, connections := range cm.raceConnections {
		stats.TotalConnections += len(connections)
		stats.RaceConnections[raceID.String()] = len(connections)
	}
	return stats
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
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are processed.
// Observers have nothing to say; anything they send is ignored.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
