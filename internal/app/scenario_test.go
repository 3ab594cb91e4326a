package app

import (
	"testing"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
	"github.com/terpcall/terpcall/internal/events"
)

// TestFullMatchDropAndRejoin walks the whole happy path: broadcast to two
// eligible responders, a race won by one of them, a mid-call drop and a
// rejoin inside the grace window.
func TestFullMatchDropAndRejoin(t *testing.T) {
	f := newFixture(t)

	r1 := &fakeConn{}
	if err := f.orch.Join("r1", r1, "req-1", "Rita", domain.RoleRequester, ""); err != nil {
		t.Fatalf("join r1: %v", err)
	}
	i1 := &fakeConn{}
	if err := f.orch.Join("i1", i1, "int-1", "Ines", domain.RoleResponder, ""); err != nil {
		t.Fatalf("join i1: %v", err)
	}
	i2 := &fakeConn{}
	if err := f.orch.Join("i2", i2, "int-2", "Igor", domain.RoleResponder, ""); err != nil {
		t.Fatalf("join i2: %v", err)
	}
	caps := domain.Capabilities{Languages: []string{"es"}, Availability: domain.Available}
	for _, c := range []core.ConnID{"i1", "i2"} {
		if err := f.registry.SetCapabilities(c, caps); err != nil {
			t.Fatalf("caps %s: %v", c, err)
		}
	}

	id, err := f.broker.Submit("r1", "es", domain.UrgencyImmediate, domain.SessionVideo)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	b1 := i1.eventsOfType(t, events.TypeRequestBroadcast)
	b2 := i2.eventsOfType(t, events.TypeRequestBroadcast)
	if len(b1) != 1 || len(b2) != 1 {
		t.Fatalf("both responders should be notified, got %d/%d", len(b1), len(b2))
	}
	if b1[0]["request_id"] != b2[0]["request_id"] || b1[0]["request_id"] != string(id) {
		t.Fatalf("both broadcasts must carry the same request id")
	}

	// I2 claims first.
	sid, err := f.broker.Claim(id, "i2")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	confirmed := i2.eventsOfType(t, events.TypeClaimConfirmed)
	if len(confirmed) != 1 || confirmed[0]["session_id"] != string(sid) {
		t.Fatalf("winner outcome wrong: %v", confirmed)
	}
	if got := i1.eventsOfType(t, events.TypeClaimTaken); len(got) != 1 {
		t.Fatalf("loser should get claim_taken, got %d", len(got))
	}
	succeeded := r1.eventsOfType(t, events.TypeClaimSucceeded)
	if len(succeeded) != 1 || succeeded[0]["session_id"] != string(sid) {
		t.Fatalf("requester outcome wrong: %v", succeeded)
	}

	// Winner drops mid-call.
	f.orch.OnDisconnect("i2")
	states := r1.eventsOfType(t, events.TypeSessionState)
	last := states[len(states)-1]
	if last["state"] != string(domain.SessionAwaitingReconnect) || last["missing_role"] != string(domain.RoleResponder) {
		t.Fatalf("requester should see awaiting_reconnect/responder, got %v", last)
	}

	// And rejoins within the grace window on a fresh connection.
	f.clk.Add(testGraceWindow / 2)
	i2b := &fakeConn{}
	if err := f.orch.Join("i2b", i2b, "int-2", "Igor", domain.RoleResponder, sid); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	for name, conn := range map[string]*fakeConn{"requester": r1, "responder": i2b} {
		states := conn.eventsOfType(t, events.TypeSessionState)
		if len(states) == 0 || states[len(states)-1]["state"] != string(domain.SessionActive) {
			t.Fatalf("%s should see the session back to active", name)
		}
	}
}
