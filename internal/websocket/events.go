// internal/websocket/events.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a frame on the admin event stream.
type EventType string

const (
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"
	EventTypeSubscribe    EventType = "subscribe"
	EventTypeUnsubscribe  EventType = "unsubscribe"

	// server -> client
	EventTypeSyncOutcome       EventType = "sync:outcome"
	EventTypePropagation       EventType = "propagation:outcome"
	EventTypeCustomerMerged    EventType = "customer:merged"
	EventTypeMigrationGroup    EventType = "migration:group"
	EventTypeMigrationFinished EventType = "migration:finished"
	EventTypeSystemAlert       EventType = "system:alert"
)

// ChannelType groups events a client can subscribe to.
type ChannelType string

const (
	ChannelSync      ChannelType = "sync"
	ChannelMerge     ChannelType = "merge"
	ChannelMigration ChannelType = "migration"
	ChannelSystem    ChannelType = "system"
)

var knownChannels = map[ChannelType]bool{
	ChannelSync:      true,
	ChannelMerge:     true,
	ChannelMigration: true,
	ChannelSystem:    true,
}

// Message is the frame written to and read from clients.
type Message struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewMessage(eventType EventType, data interface{}) *Message {
	return &Message{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		ID:        ulid.Make().String(),
	}
}

func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// decodeData re-decodes a generic Data payload into target.
func decodeData(data interface{}, target interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
