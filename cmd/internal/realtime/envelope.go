// Package realtime pushes conversation events to connected websocket clients.
//
// Every frame is a JSON Envelope. The server sends "subscribed" once the
// connection is attached to its conversation channel, then "message.new" and
// "vote.update" as they happen. Clients may send "ping" and get "pong" back;
// anything else is answered with an "error" envelope.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"duet/cmd/identity"
	"duet/cmd/internal/chat"
)

// Version is embedded into every envelope.
const Version = "v1"

// Envelope types.
const (
	TypeSubscribed = "subscribed"
	TypeMessageNew = chat.EventMessageNew
	TypeVoteUpdate = chat.EventVoteUpdate
	TypeError      = "error"
	TypePing       = "ping"
	TypePong       = "pong"
)

// Envelope is the wire wrapper for every frame.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribedPayload confirms which channel a connection listens on.
type SubscribedPayload struct {
	Username string `json:"username"`
	Peer     string `json:"peer"`
}

// ErrorPayload describes a rejected client frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate checks the fields a client frame must carry.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	return nil
}

// NewEnvelope builds a server envelope. payload is marshalled unless it is
// already a json.RawMessage.
func NewEnvelope(typ, channel string, payload any, ts time.Time) (Envelope, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return Envelope{}, fmt.Errorf("realtime: marshal %s payload: %w", typ, err)
		}
		raw = b
	}
	id, err := identity.NewULID(ts)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, Channel: channel, TS: ts, Payload: raw}, nil
}
