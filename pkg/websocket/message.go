package websocket

import (
	"encoding/json"
	"time"
)

// MessageType tags the envelope carried over a subscription socket.
type MessageType string

const (
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeAck         MessageType = "ack"
	MessageTypeError       MessageType = "error"
	MessageTypeAdd         MessageType = "add"    // new/updated entity matched the filter
	MessageTypeRemove      MessageType = "remove" // a matching entity was deleted
)

// Message is the envelope pushed over a subscription websocket: an Add
// carries the full entity, a Remove carries only its key (spec.md §6
// "a receiver of Add(entity) | Remove(key) messages").
type Message struct {
	Type           MessageType `json:"type"`
	SubscriptionID string      `json:"subscription_id,omitempty"`
	Key            uint64      `json:"key,omitempty"`
	Entity         interface{} `json:"entity,omitempty"`
	Error          string      `json:"error,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

func NewAddMessage(subID string, key uint64, entity interface{}) *Message {
	return &Message{Type: MessageTypeAdd, SubscriptionID: subID, Key: key, Entity: entity, Timestamp: time.Now().UTC()}
}

func NewRemoveMessage(subID string, key uint64) *Message {
	return &Message{Type: MessageTypeRemove, SubscriptionID: subID, Key: key, Timestamp: time.Now().UTC()}
}

func NewErrorMessage(subID, message string) *Message {
	return &Message{Type: MessageTypeError, SubscriptionID: subID, Error: message, Timestamp: time.Now().UTC()}
}

func NewAckMessage(subID string) *Message {
	return &Message{Type: MessageTypeAck, SubscriptionID: subID, Timestamp: time.Now().UTC()}
}

// ToJSON converts the message to JSON bytes.
func (m *Message) ToJSON() ([]byte, error) { return json.Marshal(m) }

// FromJSON parses a client-sent control frame (subscribe/unsubscribe/ping).
func FromJSON(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SubscribeRequest is the client->server payload that starts a live
// subscription (spec.md §6 subscribe_to_events/subscribe_to_spans).
type SubscribeRequest struct {
	Kind   string `json:"kind"` // "events" | "spans"
	Filter string `json:"filter"`
}
