package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownEvent = errors.New("unknown event type")
	ErrBadEnvelope  = errors.New("malformed envelope")
)

// Envelope is the unit of wire transfer. Payload stays raw until the
// receiver decodes it against the event taxonomy; Timestamp is epoch
// milliseconds set by the sender.
type Envelope struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// New builds an envelope for the given event, marshalling the payload and
// stamping the current time.
func New(t EventType, payload any) (Envelope, error) {
	if !Known(t) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, t)
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		raw = b
	}
	return Envelope{Type: t, Payload: raw, Timestamp: time.Now().UnixMilli()}, nil
}

// MustNew is New for payloads the caller controls; it panics on marshal
// failure, which only happens for unmarshallable Go values.
func MustNew(t EventType, payload any) Envelope {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Encode serializes the envelope to its wire frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire frame into an envelope and validates the event type.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if !Known(env.Type) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return env, nil
}
