package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
	"github.com/terpcall/terpcall/internal/history"
	"github.com/terpcall/terpcall/internal/notify"
)

const (
	testClaimWindow = 30 * time.Second
	testGraceWindow = 5 * time.Minute
	testIdleBound   = time.Hour
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

// eventsOfType decodes recorded frames and returns those matching t.
func (c *fakeConn) eventsOfType(tb testing.TB, typ string) []map[string]any {
	tb.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			tb.Fatalf("bad frame %q: %v", f, err)
		}
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type fixture struct {
	clk      *clock.Mock
	registry *Registry
	sessions *SessionManager
	broker   *Broker
	relay    *Relay
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock()
	registry := NewRegistry()
	sessions := NewSessionManager(clk, registry, history.Nop{}, testGraceWindow, testIdleBound)
	broker := NewBroker(clk, registry, sessions, notify.Nop{}, testClaimWindow)
	relay := NewRelay(registry, sessions)
	return &fixture{
		clk:      clk,
		registry: registry,
		sessions: sessions,
		broker:   broker,
		relay:    relay,
		orch: &Orchestrator{
			Registry: registry,
			Broker:   broker,
			Sessions: sessions,
			Relay:    relay,
		},
	}
}

func (f *fixture) addRequester(t *testing.T, connID core.ConnID, pid domain.ParticipantID, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	if err := f.registry.Register(connID, conn, pid, name, domain.RoleRequester); err != nil {
		t.Fatalf("register requester: %v", err)
	}
	return conn
}

func (f *fixture) addResponder(t *testing.T, connID core.ConnID, pid domain.ParticipantID, name string, languages ...string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	if err := f.registry.Register(connID, conn, pid, name, domain.RoleResponder); err != nil {
		t.Fatalf("register responder: %v", err)
	}
	caps := domain.Capabilities{Languages: languages, Availability: domain.Available}
	if err := f.registry.SetCapabilities(connID, caps); err != nil {
		t.Fatalf("set capabilities: %v", err)
	}
	return conn
}
