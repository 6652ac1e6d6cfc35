package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardroom/holdem/internal/betting"
	"github.com/cardroom/holdem/internal/coordinator"
	"github.com/cardroom/holdem/internal/table"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Connection wraps one websocket client. It owns the read and write
// pumps and bridges the socket to a coordinator session: inbound
// messages become submissions, snapshots flow back out through the
// buffered send channel, which is what makes PushSnapshot safe to
// call under the coordinator's lock.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.RWMutex
	tableName string
	coord     *coordinator.Coordinator
	sessionID coordinator.SessionID
}

// NewConnection wraps an accepted websocket.
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: server,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection and detaches its coordinator session.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if coord, id := c.session(); coord != nil {
			coord.Disconnect(id)
		}
		err = c.conn.Close()
	})
	return err
}

// Done resolves when the connection has shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// PushSnapshot implements coordinator.Sink.
func (c *Connection) PushSnapshot(snap coordinator.Snapshot) {
	c.mu.RLock()
	tableName := c.tableName
	c.mu.RUnlock()

	msg, err := NewMessage(MessageTypeSnapshot, SnapshotData{Table: tableName, Snapshot: snap})
	if err != nil {
		c.logger.Error("failed to encode snapshot", "error", err)
		return
	}
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		// A session that cannot drain its snapshots is dropped
		// rather than allowed to stall the table.
		c.logger.Warn("send buffer full, closing connection")
		go func() { _ = c.Close() }()
	}
}

func (c *Connection) session() (*coordinator.Coordinator, coordinator.SessionID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coord, c.sessionID
}

func (c *Connection) setSession(tableName string, coord *coordinator.Coordinator, id coordinator.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableName = tableName
	c.coord = coord
	c.sessionID = id
}

// readPump handles incoming messages from the client.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage routes one inbound message.
func (c *Connection) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeJoin:
		var data JoinData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse join data")
			return
		}
		c.handleJoin(data)

	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse action data")
			return
		}
		c.handleAction(data)

	case MessageTypeTables:
		c.sendMessage(MessageTypeTableList, TableListData{Tables: c.server.TableNames()})

	default:
		c.sendError("unknown_type", "unknown message type")
	}
}

func (c *Connection) handleJoin(data JoinData) {
	if coord, _ := c.session(); coord != nil {
		c.sendError("already_joined", "session is already seated")
		return
	}
	coord, ok := c.server.Table(data.Table)
	if !ok {
		c.sendError("unknown_table", "no such table")
		return
	}
	// The initial snapshot is pushed from inside Connect; record the
	// table name first so it is labeled correctly.
	c.setSession(data.Table, nil, "")
	id, err := coord.Connect(data.Name, c)
	if err != nil {
		c.sendError("join_failed", err.Error())
		return
	}
	c.setSession(data.Table, coord, id)
	seat, _ := coord.SeatOf(id)
	c.sendMessage(MessageTypeJoined, JoinedData{Table: data.Table, Seat: seat})
	c.logger.Info("player joined", "table", data.Table, "name", data.Name, "seat", seat)
}

func (c *Connection) handleAction(data ActionData) {
	coord, id := c.session()
	if coord == nil {
		c.sendError("not_joined", "join a table first")
		return
	}
	kind, err := coordinator.ParseKind(data.Action)
	if err != nil {
		c.sendError("invalid_action", err.Error())
		return
	}
	if err := coord.Submit(id, coordinator.Action{Kind: kind, Amount: data.Amount}); err != nil {
		c.sendError(actionErrorCode(err), err.Error())
	}
}

// actionErrorCode maps engine errors onto wire codes. Only the
// submitting session ever sees these.
func actionErrorCode(err error) string {
	switch {
	case errors.Is(err, betting.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, coordinator.ErrStaleAction):
		return "stale"
	case errors.Is(err, betting.ErrIllegalAction):
		return "illegal_action"
	case errors.Is(err, table.ErrNoActiveRound):
		return "no_active_round"
	default:
		return "action_failed"
	}
}

func (c *Connection) sendMessage(t MessageType, data interface{}) {
	msg, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("failed to encode message", "type", t, "error", err)
		return
	}
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
	}
}

func (c *Connection) sendError(code, message string) {
	c.sendMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
