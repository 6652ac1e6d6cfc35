package server

import (
	"encoding/json"
	"time"

	"github.com/cardroom/holdem/internal/coordinator"
)

// MessageType identifies a websocket message.
type MessageType string

const (
	// Client to server
	MessageTypeJoin   MessageType = "join"
	MessageTypeAction MessageType = "action"
	MessageTypeTables MessageType = "list_tables"

	// Server to client
	MessageTypeJoined    MessageType = "joined"
	MessageTypeSnapshot  MessageType = "snapshot"
	MessageTypeTableList MessageType = "table_list"
	MessageTypeError     MessageType = "error"
)

// Message is the websocket envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload in an envelope.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// JoinData asks to be seated at a table.
type JoinData struct {
	Table string `json:"table"`
	Name  string `json:"name"`
}

// ActionData submits a player action. Amount is the total street
// commitment for bet and raise.
type ActionData struct {
	Action string `json:"action"`
	Amount int    `json:"amount,omitempty"`
}

// JoinedData confirms a seat assignment.
type JoinedData struct {
	Table string `json:"table"`
	Seat  int    `json:"seat"`
}

// SnapshotData carries a filtered state snapshot.
type SnapshotData struct {
	Table    string               `json:"table"`
	Snapshot coordinator.Snapshot `json:"snapshot"`
}

// TableListData lists the tables on this server.
type TableListData struct {
	Tables []string `json:"tables"`
}

// ErrorData reports a failure of the session's own request.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
