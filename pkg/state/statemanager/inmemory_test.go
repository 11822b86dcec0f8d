package statemanager_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/qg-furioso/realtime/pkg/state"
	"github.com/qg-furioso/realtime/pkg/state/statemanager"
	"github.com/qg-furioso/realtime/pkg/state/statetest"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestRegistry() *statemanager.InMemoryRegistry {
	return statemanager.NewInMemoryRegistry(newTestLogger())
}

func TestRegisterDefaults(t *testing.T) {
	r := newTestRegistry()
	link := statetest.NewLink()

	conn, err := r.Register(link, "127.0.0.1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, found := r.Get(conn.ID)
	if !found {
		t.Fatal("Get failed to find registered connection")
	}
	if got.Authenticated {
		t.Error("New connection must start unauthenticated")
	}
	if !got.Alive {
		t.Error("New connection must start alive")
	}
	if len(got.Subscriptions) != 1 {
		t.Fatalf("Expected exactly one subscription, got %d", len(got.Subscriptions))
	}
	if _, ok := got.Subscriptions[state.ChannelGlobal]; !ok {
		t.Error("New connection must subscribe to the global channel")
	}

	if _, err := r.Register(link, "127.0.0.1"); !errors.Is(err, state.ErrAlreadyRegistered) {
		t.Errorf("Expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")
	r.Bind(conn.ID, "user-1")

	r.Unregister(conn.ID)
	if _, found := r.Get(conn.ID); found {
		t.Fatal("Found connection after unregister")
	}
	if got := r.UserLinks("user-1"); len(got) != 0 {
		t.Errorf("User index entry survived unregister: %d links", len(got))
	}

	// second call must observe the same state, not an error
	r.Unregister(conn.ID)
	if r.Count() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Count())
	}
	r.Unregister(uuid.New()) // unknown id is a no-op too
}

func TestBindAddsUserChannelAndIndex(t *testing.T) {
	r := newTestRegistry()
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	bound, err := r.Bind(conn.ID, "user-42")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if !bound.Authenticated || bound.UserID != "user-42" {
		t.Errorf("Bind did not mark identity: %+v", bound)
	}
	if _, ok := bound.Subscriptions[state.ChannelUser("user-42")]; !ok {
		t.Error("Bind did not add the user channel subscription")
	}
	if links := r.UserLinks("user-42"); len(links) != 1 || links[0].ID() != link.ID() {
		t.Errorf("User index does not hold the bound connection")
	}
}

func TestRebindIsRejected(t *testing.T) {
	r := newTestRegistry()
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	if _, err := r.Bind(conn.ID, "user-1"); err != nil {
		t.Fatalf("First bind failed: %v", err)
	}
	if _, err := r.Bind(conn.ID, "user-2"); !errors.Is(err, state.ErrAlreadyBound) {
		t.Fatalf("Expected ErrAlreadyBound, got %v", err)
	}

	// binding must not have been replaced
	got, _ := r.Get(conn.ID)
	if got.UserID != "user-1" {
		t.Errorf("Rejected rebind still replaced the identity: %s", got.UserID)
	}

	if _, err := r.Bind(uuid.New(), "user-3"); !errors.Is(err, state.ErrConnectionNotFound) {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	r := newTestRegistry()
	tab1, tab2 := statetest.NewLink(), statetest.NewLink()
	c1, _ := r.Register(tab1, "1.1.1.1")
	c2, _ := r.Register(tab2, "1.1.1.1")
	r.Bind(c1.ID, "user-42")
	r.Bind(c2.ID, "user-42")

	if links := r.UserLinks("user-42"); len(links) != 2 {
		t.Fatalf("Expected 2 links for user, got %d", len(links))
	}

	r.Unregister(c1.ID)
	if links := r.UserLinks("user-42"); len(links) != 1 || links[0].ID() != tab2.ID() {
		t.Errorf("User index not trimmed to the surviving connection")
	}

	r.Unregister(c2.ID)
	if links := r.UserLinks("user-42"); links != nil {
		t.Errorf("Expected empty user index entry to be deleted")
	}
}

func TestChannelLinks(t *testing.T) {
	r := newTestRegistry()
	a, b := statetest.NewLink(), statetest.NewLink()
	ca, _ := r.Register(a, "1.1.1.1")
	r.Register(b, "2.2.2.2")

	if err := r.Subscribe(ca.ID, "match:live"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if links := r.ChannelLinks("match:live"); len(links) != 1 || links[0].ID() != a.ID() {
		t.Errorf("Channel resolution wrong: %d links", len(links))
	}
	// everyone is on global
	if links := r.ChannelLinks(state.ChannelGlobal); len(links) != 2 {
		t.Errorf("Expected both connections on global, got %d", len(links))
	}
	if err := r.Subscribe(uuid.New(), "x"); !errors.Is(err, state.ErrConnectionNotFound) {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
}

func TestProbeBookkeeping(t *testing.T) {
	r := newTestRegistry()
	link := statetest.NewLink()
	conn, _ := r.Register(link, "127.0.0.1")

	wasAlive, ok := r.BeginProbe(conn.ID)
	if !ok || !wasAlive {
		t.Fatalf("First probe must find the connection alive: %v/%v", wasAlive, ok)
	}
	// no pong in between: second probe reports the cleared flag
	wasAlive, ok = r.BeginProbe(conn.ID)
	if !ok || wasAlive {
		t.Fatalf("Second probe without pong must report not alive: %v/%v", wasAlive, ok)
	}

	r.MarkAlive(conn.ID)
	wasAlive, _ = r.BeginProbe(conn.ID)
	if !wasAlive {
		t.Error("Pong must restore the liveness flag")
	}

	if _, ok := r.BeginProbe(uuid.New()); ok {
		t.Error("Probe of unknown connection must report not found")
	}
}

func TestSnapshotIterationSurvivesUnregister(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < 10; i++ {
		r.Register(statetest.NewLink(), "127.0.0.1")
	}

	// unregistering mid-iteration must not disturb the snapshot
	links := r.AllLinks()
	if len(links) != 10 {
		t.Fatalf("Expected 10 links, got %d", len(links))
	}
	for _, link := range links {
		r.Unregister(link.ID())
	}
	if r.Count() != 0 {
		t.Errorf("Expected empty registry after sweep, got %d", r.Count())
	}
}
