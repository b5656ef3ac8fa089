package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tags the server-to-client messages.
type MessageType string

const (
	MessageInitialData MessageType = "initial_data"
	MessageDataUpdate  MessageType = "data_update"
	MessageError       MessageType = "error"
	MessagePing        MessageType = "ping"
	MessagePong        MessageType = "pong"
)

const (
	pingText = "health_check"
	pongText = "pong"
)

// Message is the JSON envelope written to websocket sessions. Absent data,
// message and error fields serialize as null.
type Message struct {
	Type      MessageType `json:"type"`
	Data      []Record    `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Message   *string     `json:"message"`
	Error     *string     `json:"error"`
}

// InitialDataMessage carries the current snapshot to a session that just joined.
func InitialDataMessage(s Snapshot) Message {
	return Message{Type: MessageInitialData, Data: s.Records(), Timestamp: s.CapturedAt()}
}

// DataUpdateMessage carries a snapshot that differs from the previous one.
func DataUpdateMessage(s Snapshot) Message {
	return Message{Type: MessageDataUpdate, Data: s.Records(), Timestamp: s.CapturedAt()}
}

func ErrorMessage(text string, at time.Time) Message {
	return Message{Type: MessageError, Timestamp: at, Error: &text}
}

func PingMessage(at time.Time) Message {
	text := pingText
	return Message{Type: MessagePing, Timestamp: at, Message: &text}
}

func PongMessage(at time.Time) Message {
	text := pongText
	return Message{Type: MessagePong, Timestamp: at, Message: &text}
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}
