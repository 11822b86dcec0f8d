package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/qg-furioso/realtime/pkg/protocol"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	sent := protocol.Envelope{
		Type:      protocol.EventPing,
		Payload:   json.RawMessage(`{}`),
		Timestamp: time.Now().UnixMilli(),
	}
	frame, err := sent.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Type != protocol.EventPing {
		t.Errorf("Expected type %q, got %q", protocol.EventPing, got.Type)
	}
	if string(got.Payload) != `{}` {
		t.Errorf("Payload changed in transit: %s", got.Payload)
	}
	if got.Timestamp != sent.Timestamp {
		t.Errorf("Timestamp changed in transit: %d != %d", got.Timestamp, sent.Timestamp)
	}
}

func TestNewStampsAndValidates(t *testing.T) {
	before := time.Now().UnixMilli()
	env, err := protocol.New(protocol.EventRewardEarned, protocol.RewardEarnedPayload{Amount: 50})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if env.Timestamp < before {
		t.Errorf("Timestamp not stamped at emission time")
	}

	if _, err := protocol.New(protocol.EventType("coffeeBrewed"), nil); !errors.Is(err, protocol.ErrUnknownEvent) {
		t.Errorf("Expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeRejectsMalformedAndUnknown(t *testing.T) {
	if _, err := protocol.Decode([]byte("not json")); !errors.Is(err, protocol.ErrBadEnvelope) {
		t.Errorf("Expected ErrBadEnvelope for garbage input, got %v", err)
	}
	if _, err := protocol.Decode([]byte(`{"type":"coffeeBrewed","timestamp":1}`)); !errors.Is(err, protocol.ErrUnknownEvent) {
		t.Errorf("Expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodePayloadTaggedUnion(t *testing.T) {
	env := protocol.MustNew(protocol.EventRewardEarned, protocol.RewardEarnedPayload{Amount: 50, Reason: "survey"})
	decoded, err := protocol.DecodePayload(env)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	p, ok := decoded.(*protocol.RewardEarnedPayload)
	if !ok {
		t.Fatalf("Expected *RewardEarnedPayload, got %T", decoded)
	}
	if p.Amount != 50 || p.Reason != "survey" {
		t.Errorf("Payload fields lost: %+v", p)
	}

	// ping carries no payload contract
	ping := protocol.MustNew(protocol.EventPing, nil)
	if decoded, err := protocol.DecodePayload(ping); err != nil || decoded != nil {
		t.Errorf("Expected nil payload for ping, got %v / %v", decoded, err)
	}

	// shape mismatch surfaces at the boundary
	bad := protocol.Envelope{Type: protocol.EventRewardEarned, Payload: json.RawMessage(`"fifty"`)}
	if _, err := protocol.DecodePayload(bad); err == nil {
		t.Error("Expected decode error for mismatched payload shape")
	}
}

func TestMatchEventsShareOnePayloadShape(t *testing.T) {
	for _, et := range []protocol.EventType{
		protocol.EventMatchCreated,
		protocol.EventMatchUpdated,
		protocol.EventMatchStarted,
		protocol.EventMatchEnded,
	} {
		env := protocol.MustNew(et, protocol.MatchPayload{MatchID: "m1", Opponent: "LOUD"})
		decoded, err := protocol.DecodePayload(env)
		if err != nil {
			t.Fatalf("%s: DecodePayload failed: %v", et, err)
		}
		if _, ok := decoded.(*protocol.MatchPayload); !ok {
			t.Errorf("%s: expected *MatchPayload, got %T", et, decoded)
		}
	}
}
