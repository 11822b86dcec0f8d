package router_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/qg-furioso/realtime/internal/dispatch"
	"github.com/qg-furioso/realtime/internal/identity"
	"github.com/qg-furioso/realtime/internal/metrics"
	"github.com/qg-furioso/realtime/internal/router"
	"github.com/qg-furioso/realtime/pkg/protocol"
	"github.com/qg-furioso/realtime/pkg/state/statemanager"
	"github.com/qg-furioso/realtime/pkg/state/statetest"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type stubVerifier struct{}

func (stubVerifier) Verify(token string) (string, error) {
	if len(token) > 3 && token[:3] == "ok:" {
		return token[3:], nil
	}
	return "", identity.ErrInvalidToken
}

func newTestRouter(t *testing.T) (*router.Router, *statemanager.InMemoryRegistry) {
	t.Helper()
	logger := newTestLogger()
	registry := statemanager.NewInMemoryRegistry(logger)
	m := metrics.NewNop()
	dispatcher := dispatch.NewDispatcher(logger, registry, m)
	binder := identity.NewBinder(logger, registry, dispatcher, stubVerifier{}, m)
	return router.NewRouter(logger, binder, dispatcher, m), registry
}

func decodeAll(t *testing.T, link *statetest.Link) []protocol.Envelope {
	t.Helper()
	frames := link.Frames()
	envs := make([]protocol.Envelope, 0, len(frames))
	for _, f := range frames {
		env, err := protocol.Decode(f)
		if err != nil {
			t.Fatalf("Undecodable envelope on link: %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

func TestMalformedFrameGetsErrorEnvelopeAndSurvives(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	rt.HandleMessage(context.Background(), conn.ID, []byte("not json"))

	if _, found := r.Get(conn.ID); !found {
		t.Fatal("Connection must survive a protocol fault")
	}
	envs := decodeAll(t, link)
	if len(envs) != 1 {
		t.Fatalf("Expected exactly one error envelope, got %d envelopes", len(envs))
	}
	if envs[0].Type != protocol.EventError {
		t.Errorf("Expected error envelope, got %s", envs[0].Type)
	}
}

func TestUnknownEventTypeIsReported(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	rt.HandleMessage(context.Background(), conn.ID, []byte(`{"type":"coffeeBrewed","payload":{},"timestamp":1}`))

	envs := decodeAll(t, link)
	if len(envs) != 1 || envs[0].Type != protocol.EventError {
		t.Fatalf("Expected one error envelope, got %+v", envs)
	}
}

func TestKnownTypeWithBrokenEnvelopeIsReported(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	// the type tag peeks fine, the envelope body does not decode
	rt.HandleMessage(context.Background(), conn.ID, []byte(`{"type":"ping","timestamp":"yesterday"}`))

	if _, found := r.Get(conn.ID); !found {
		t.Fatal("Connection must survive a protocol fault")
	}
	envs := decodeAll(t, link)
	if len(envs) != 1 || envs[0].Type != protocol.EventError {
		t.Fatalf("Expected one error envelope, got %+v", envs)
	}
}

func TestServerOriginatedEventsRejectedFromClients(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	frame, _ := protocol.MustNew(protocol.EventRewardEarned, protocol.RewardEarnedPayload{Amount: 999}).Encode()
	rt.HandleMessage(context.Background(), conn.ID, frame)

	envs := decodeAll(t, link)
	if len(envs) != 1 || envs[0].Type != protocol.EventError {
		t.Fatalf("Expected one error envelope, got %+v", envs)
	}
}

func TestPingGetsPong(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	frame, _ := protocol.MustNew(protocol.EventPing, nil).Encode()
	rt.HandleMessage(context.Background(), conn.ID, frame)

	envs := decodeAll(t, link)
	if len(envs) != 1 || envs[0].Type != protocol.EventPong {
		t.Fatalf("Expected one pong envelope, got %+v", envs)
	}
}

func TestAuthenticateRoutesToBinder(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	frame, _ := protocol.MustNew(protocol.EventAuthenticate, protocol.AuthenticatePayload{Token: "ok:42"}).Encode()
	rt.HandleMessage(context.Background(), conn.ID, frame)

	envs := decodeAll(t, link)
	if len(envs) != 1 || envs[0].Type != protocol.EventAuthSuccess {
		t.Fatalf("Expected authSuccess, got %+v", envs)
	}
	got, _ := r.Get(conn.ID)
	if got.UserID != "42" {
		t.Errorf("Binder did not bind the connection: %+v", got)
	}
}

func TestAuthenticateWithBadPayloadShape(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	rt.HandleMessage(context.Background(), conn.ID, []byte(`{"type":"authenticate","payload":"just-a-string","timestamp":1}`))

	envs := decodeAll(t, link)
	if len(envs) != 1 || envs[0].Type != protocol.EventError {
		t.Fatalf("Expected error envelope for bad payload shape, got %+v", envs)
	}
}

func TestAuthenticateWithoutPayloadFails(t *testing.T) {
	rt, r := newTestRouter(t)
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	rt.HandleMessage(context.Background(), conn.ID, []byte(`{"type":"authenticate","timestamp":1}`))

	envs := decodeAll(t, link)
	if len(envs) != 1 || envs[0].Type != protocol.EventAuthFailure {
		t.Fatalf("Expected authFailure for missing credential, got %+v", envs)
	}
}
