// Package events contains the message contracts exchanged between the
// video-generation backend and the status synchronization client, over both
// the duplex channel and the polling fallback.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType defines the type of a channel message
type MessageType string

const (
	// Server to client
	MessageTypeUpdate MessageType = "update"
	MessageTypeError  MessageType = "error"
	MessageTypePong   MessageType = "pong"

	// Client to server
	MessageTypePing        MessageType = "ping"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
)

// Envelope is the transport-agnostic shape of every inbound message.
// The duplex path decodes it straight off the socket; the polling path
// synthesizes it from a response body.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

var (
	// ErrUnknownMessageType is returned for envelopes with an unsupported type
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrMissingTopic is returned for update envelopes without a topic
	ErrMissingTopic = errors.New("update message has no topic")
)

// ParseEnvelope decodes and validates a raw inbound frame
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks the envelope against the inbound contract
func (e Envelope) Validate() error {
	switch e.Type {
	case MessageTypeUpdate:
		if e.Topic == "" {
			return ErrMissingTopic
		}
	case MessageTypeError, MessageTypePong:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, e.Type)
	}
	return nil
}

// Decode unmarshals the envelope payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return errors.New("envelope has no data")
	}
	return json.Unmarshal(e.Data, v)
}

// NewUpdate builds an update envelope for topic with the given JSON payload
func NewUpdate(topic string, data json.RawMessage, at time.Time) Envelope {
	return Envelope{
		Type:      MessageTypeUpdate,
		Topic:     topic,
		Data:      data,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

// SubscribeMessage asks the server to start streaming a topic.
// Params are flattened next to type and topic on the wire.
type SubscribeMessage struct {
	Topic  string
	Params map[string]interface{}
}

// MarshalJSON implements json.Marshaler
func (m SubscribeMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Params)+2)
	for k, v := range m.Params {
		out[k] = v
	}
	out["type"] = MessageTypeSubscribe
	out["topic"] = m.Topic
	return json.Marshal(out)
}

// UnsubscribeMessage asks the server to stop streaming a topic
type UnsubscribeMessage struct {
	Type  MessageType `json:"type"`
	Topic string      `json:"topic"`
}

// NewUnsubscribe builds an unsubscribe control message
func NewUnsubscribe(topic string) UnsubscribeMessage {
	return UnsubscribeMessage{Type: MessageTypeUnsubscribe, Topic: topic}
}

// HeartbeatMessage is the client ping and the server pong
type HeartbeatMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// NewPing builds a heartbeat ping stamped with at
func NewPing(at time.Time) HeartbeatMessage {
	return HeartbeatMessage{
		Type:      MessageTypePing,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}
