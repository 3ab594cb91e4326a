package app

import (
	"testing"
	"time"

	"github.com/terpcall/terpcall/internal/domain"
	"github.com/terpcall/terpcall/internal/events"
)

// matched builds an active session between r1/req and i1/p1 and returns its id.
func matched(t *testing.T, f *fixture) (domain.SessionID, *fakeConn, *fakeConn) {
	t.Helper()
	rc := f.addRequester(t, "r1", "req", "Rita")
	ic := f.addResponder(t, "i1", "p1", "Ines", "es")
	id := submit(t, f, "r1")
	sid, err := f.broker.Claim(id, "i1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return sid, rc, ic
}

func TestClaimedSessionStartsActive(t *testing.T) {
	f := newFixture(t)
	sid, rc, ic := matched(t, f)

	sess, ok := f.sessions.Snapshot(sid)
	if !ok {
		t.Fatalf("session missing")
	}
	if sess.State != domain.SessionActive {
		t.Fatalf("expected active, got %s", sess.State)
	}
	for name, conn := range map[string]*fakeConn{"requester": rc, "responder": ic} {
		states := conn.eventsOfType(t, events.TypeSessionState)
		if len(states) == 0 || states[len(states)-1]["state"] != string(domain.SessionActive) {
			t.Fatalf("%s should see the session go active, got %v", name, states)
		}
	}
}

func TestSessionSurvivesSingleDisconnect(t *testing.T) {
	f := newFixture(t)
	sid, rc, _ := matched(t, f)

	f.orch.OnDisconnect("i1")

	sess, ok := f.sessions.Snapshot(sid)
	if !ok {
		t.Fatalf("session must not be destroyed by a single disconnect")
	}
	if sess.State != domain.SessionAwaitingReconnect {
		t.Fatalf("expected awaiting_reconnect, got %s", sess.State)
	}
	states := rc.eventsOfType(t, events.TypeSessionState)
	last := states[len(states)-1]
	if last["state"] != string(domain.SessionAwaitingReconnect) {
		t.Fatalf("remaining member should be told the room is preserved, got %v", last)
	}
	if last["missing_role"] != string(domain.RoleResponder) {
		t.Fatalf("notice should name the missing role, got %v", last)
	}
}

func TestRejoinWithinGraceRestoresActive(t *testing.T) {
	f := newFixture(t)
	sid, rc, _ := matched(t, f)
	f.orch.OnDisconnect("i1")

	f.clk.Add(testGraceWindow / 2)

	ic2 := &fakeConn{}
	if err := f.orch.Join("i1b", ic2, "p1", "Ines", domain.RoleResponder, sid); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	sess, _ := f.sessions.Snapshot(sid)
	if sess.State != domain.SessionActive {
		t.Fatalf("expected active after rejoin, got %s", sess.State)
	}
	for name, conn := range map[string]*fakeConn{"requester": rc, "rejoined": ic2} {
		states := conn.eventsOfType(t, events.TypeSessionState)
		if len(states) == 0 || states[len(states)-1]["state"] != string(domain.SessionActive) {
			t.Fatalf("%s should see the restored active state", name)
		}
	}

	// The grace timer must be gone: crossing the window changes nothing.
	f.clk.Add(testGraceWindow)
	if sess, ok := f.sessions.Snapshot(sid); !ok || sess.State != domain.SessionActive {
		t.Fatalf("cancelled grace timer must not fire, got %+v ok=%v", sess, ok)
	}
}

func TestClaimWithVanishedRequesterParksSession(t *testing.T) {
	f := newFixture(t)
	f.addRequester(t, "r1", "req", "Rita")
	ic := f.addResponder(t, "i1", "p1", "Ines", "es")
	id := submit(t, f, "r1")

	// The requester connection vanishes after the request is broadcast but
	// before the claim forms the session; the binding is already gone when
	// the session manager binds the slots.
	f.registry.Unregister("r1")

	sid, err := f.broker.Claim(id, "i1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	sess, ok := f.sessions.Snapshot(sid)
	if !ok {
		t.Fatalf("session missing")
	}
	if sess.State != domain.SessionAwaitingReconnect {
		t.Fatalf("expected awaiting_reconnect, got %s", sess.State)
	}
	states := ic.eventsOfType(t, events.TypeSessionState)
	last := states[len(states)-1]
	if last["missing_role"] != string(domain.RoleRequester) {
		t.Fatalf("responder should be told the requester is missing, got %v", last)
	}

	// Nobody rebinds it; the grace window reclaims the session and frees
	// the responder.
	f.clk.Add(testGraceWindow)
	if _, ok := f.sessions.Snapshot(sid); ok {
		t.Fatalf("abandoned session should be reclaimed by the grace window")
	}
	if got := len(f.registry.FindEligible("es")); got != 1 {
		t.Fatalf("responder should be back in rotation, got %d eligible", got)
	}
}

func TestRejoinBySurvivorKeepsMissingRoleNotice(t *testing.T) {
	f := newFixture(t)
	sid, _, _ := matched(t, f)
	f.orch.OnDisconnect("i1")

	// The remaining requester replaces its own connection while the
	// responder is still missing.
	rc2 := &fakeConn{}
	if err := f.orch.Join("r1b", rc2, "req", "Rita", domain.RoleRequester, sid); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	states := rc2.eventsOfType(t, events.TypeSessionState)
	last := states[len(states)-1]
	if last["state"] != string(domain.SessionAwaitingReconnect) {
		t.Fatalf("room should still be awaiting the responder, got %v", last)
	}
	if last["missing_role"] != string(domain.RoleResponder) {
		t.Fatalf("notice should still name the missing role, got %v", last)
	}
}

func TestGraceWindowExpiryEndsSession(t *testing.T) {
	f := newFixture(t)
	sid, rc, _ := matched(t, f)
	f.orch.OnDisconnect("i1")

	f.clk.Add(testGraceWindow)

	if _, ok := f.sessions.Snapshot(sid); ok {
		t.Fatalf("session should be removed after the grace window")
	}
	states := rc.eventsOfType(t, events.TypeSessionState)
	last := states[len(states)-1]
	if last["state"] != string(domain.SessionEnded) || last["reason"] != string(domain.EndReconnectTimeout) {
		t.Fatalf("expected ended/reconnection_timeout notice, got %v", last)
	}

	// Late rejoin finds nothing.
	err := f.orch.Join("i1b", &fakeConn{}, "p1", "Ines", domain.RoleResponder, sid)
	if err != ErrNotFound {
		t.Fatalf("late rejoin should get ErrNotFound, got %v", err)
	}
}

func TestRejoinByStrangerIsRejected(t *testing.T) {
	f := newFixture(t)
	sid, _, _ := matched(t, f)
	f.orch.OnDisconnect("i1")

	err := f.orch.Join("x1", &fakeConn{}, "intruder", "Mallory", domain.RoleResponder, sid)
	if err != ErrNotAMember {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestExplicitEndTerminatesFromEitherState(t *testing.T) {
	f := newFixture(t)
	sid, rc, ic := matched(t, f)

	if err := f.sessions.End(sid, "bystander"); err != ErrNotAMember {
		t.Fatalf("non-member end should fail, got %v", err)
	}
	if err := f.sessions.End(sid, "i1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, ok := f.sessions.Snapshot(sid); ok {
		t.Fatalf("ended session should leave the table")
	}
	for name, conn := range map[string]*fakeConn{"requester": rc, "responder": ic} {
		states := conn.eventsOfType(t, events.TypeSessionState)
		last := states[len(states)-1]
		if last["state"] != string(domain.SessionEnded) || last["reason"] != string(domain.EndUserInitiated) {
			t.Fatalf("%s should see ended/user_initiated, got %v", name, last)
		}
	}
	if err := f.sessions.End(sid, "i1"); err != ErrNotFound {
		t.Fatalf("double end should get ErrNotFound, got %v", err)
	}
}

func TestBothMembersGoneEndsSession(t *testing.T) {
	f := newFixture(t)
	sid, _, _ := matched(t, f)
	f.orch.OnDisconnect("i1")
	f.orch.OnDisconnect("r1")

	if _, ok := f.sessions.Snapshot(sid); ok {
		t.Fatalf("session with no members left should end")
	}
}

func TestIdleSweepReclaimsStaleSessions(t *testing.T) {
	f := newFixture(t)
	sid, rc, _ := matched(t, f)

	f.clk.Add(testIdleBound + time.Minute)
	f.sessions.SweepIdle()

	if _, ok := f.sessions.Snapshot(sid); ok {
		t.Fatalf("idle session should be reclaimed")
	}
	states := rc.eventsOfType(t, events.TypeSessionState)
	last := states[len(states)-1]
	if last["reason"] != string(domain.EndIdleTimeout) {
		t.Fatalf("sweep must not be silent, got %v", last)
	}
}

func TestSweepSparesRecentlyActiveSessions(t *testing.T) {
	f := newFixture(t)
	sid, _, _ := matched(t, f)

	f.clk.Add(testIdleBound - time.Minute)
	f.sessions.SweepIdle()

	if _, ok := f.sessions.Snapshot(sid); !ok {
		t.Fatalf("recently active session must survive the sweep")
	}
}
