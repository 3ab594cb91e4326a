package app

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
	"github.com/terpcall/terpcall/internal/events"
	"github.com/terpcall/terpcall/internal/history"
)

type slot struct {
	participant domain.ParticipantID
	conn        core.ConnID
	live        bool
}

type sessionEntry struct {
	sess       *domain.Session
	requester  slot
	responder  slot
	persistent bool
	graceTimer *clock.Timer
}

func (e *sessionEntry) slotFor(role domain.Role) *slot {
	if role == domain.RoleRequester {
		return &e.requester
	}
	return &e.responder
}

func (e *sessionEntry) slotOf(id core.ConnID) (*slot, domain.Role) {
	if e.requester.conn == id {
		return &e.requester, domain.RoleRequester
	}
	if e.responder.conn == id {
		return &e.responder, domain.RoleResponder
	}
	return nil, ""
}

// SessionManager owns the active-session table and the lifecycle state
// machine. A session is removed from the table only on termination, never
// because a single member dropped; that is what makes rooms survive flaky
// networks.
type SessionManager struct {
	mu        sync.Mutex
	clk       clock.Clock
	reg       *Registry
	rec       history.Recorder
	grace     time.Duration
	idleBound time.Duration
	sessions  map[domain.SessionID]*sessionEntry
}

func NewSessionManager(clk clock.Clock, reg *Registry, rec history.Recorder, grace, idleBound time.Duration) *SessionManager {
	if rec == nil {
		rec = history.Nop{}
	}
	return &SessionManager{
		clk:       clk,
		reg:       reg,
		rec:       rec,
		grace:     grace,
		idleBound: idleBound,
		sessions:  make(map[domain.SessionID]*sessionEntry),
	}
}

// CreateFromClaim forms a session from an adjudicated claim. Both members
// hold live connections at this point, so the session goes straight from
// forming to active.
func (m *SessionManager) CreateFromClaim(req *domain.CallRequest, requesterConn core.ConnID, responderID domain.ParticipantID, responderConn core.ConnID) *domain.Session {
	now := m.clk.Now()
	sess := &domain.Session{
		ID:           domain.NewSessionID(),
		RequesterID:  req.RequesterID,
		ResponderID:  responderID,
		Language:     req.Language,
		Type:         req.SessionType,
		State:        domain.SessionForming,
		CreatedAt:    now,
		LastActivity: now,
	}
	e := &sessionEntry{
		sess:       sess,
		requester:  slot{participant: req.RequesterID, conn: requesterConn, live: true},
		responder:  slot{participant: responderID, conn: responderConn, live: true},
		persistent: true,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = e
	sess.State = domain.SessionActive
	m.mu.Unlock()

	m.reg.BindSession(requesterConn, sess.ID)
	m.reg.BindSession(responderConn, sess.ID)
	m.broadcastState(e, "")

	m.rec.SessionStarted(history.Record{
		SessionID:   string(sess.ID),
		RequesterID: string(sess.RequesterID),
		ResponderID: string(sess.ResponderID),
		Language:    sess.Language,
		SessionType: string(sess.Type),
		StartedAt:   now,
	})
	log.Info().Str("module", "app.sessions").Str("session", string(sess.ID)).Str("requester", string(sess.RequesterID)).Str("responder", string(sess.ResponderID)).Msg("session created")

	// A member that dropped between adjudication and session formation never
	// produces a disconnect callback carrying this session id; settle it here
	// so the session enters awaiting_reconnect instead of leaking until the
	// idle sweep.
	for _, c := range []core.ConnID{requesterConn, responderConn} {
		if m.reg.Conn(c) == nil {
			m.OnDisconnect(c, sess.ID)
		}
	}
	return sess
}

// Rejoin binds a returning member's new connection to an existing session.
// Looking the session up by id, rather than minting a new one, is what makes
// the room persistent across a drop.
func (m *SessionManager) Rejoin(sid domain.SessionID, pid domain.ParticipantID, role domain.Role, connID core.ConnID) error {
	m.mu.Lock()
	e, ok := m.sessions[sid]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	s := e.slotFor(role)
	if s.participant != pid {
		m.mu.Unlock()
		return ErrNotAMember
	}
	old := s.conn
	s.conn = connID
	s.live = true
	e.sess.LastActivity = m.clk.Now()
	if e.requester.live && e.responder.live {
		if e.graceTimer != nil {
			e.graceTimer.Stop()
			e.graceTimer = nil
		}
		e.sess.State = domain.SessionActive
	}
	var missing domain.Role
	switch {
	case !e.requester.live:
		missing = domain.RoleRequester
	case !e.responder.live:
		missing = domain.RoleResponder
	}
	m.mu.Unlock()

	if old != "" && old != connID {
		m.reg.ClearSession(old)
	}
	m.reg.BindSession(connID, sid)
	m.broadcastState(e, missing)
	log.Info().Str("module", "app.sessions").Str("session", string(sid)).Str("conn", string(connID)).Str("role", string(role)).Msg("member rejoined")
	return nil
}

// OnDisconnect settles a dropped member's slot. Disconnection is a state
// machine input, not an error: the outcome is awaiting_reconnect with a
// grace timer, or termination when nobody is left or the session is no
// longer persistent.
func (m *SessionManager) OnDisconnect(connID core.ConnID, sid domain.SessionID) {
	m.mu.Lock()
	e, ok := m.sessions[sid]
	if !ok {
		m.mu.Unlock()
		return
	}
	s, role := e.slotOf(connID)
	if s == nil {
		m.mu.Unlock()
		return
	}
	s.conn = ""
	s.live = false
	e.sess.LastActivity = m.clk.Now()

	other := e.slotFor(otherRole(role))
	switch {
	case !other.live:
		m.terminateLocked(e, domain.EndDisconnect)
		m.mu.Unlock()
	case !e.persistent:
		m.terminateLocked(e, domain.EndDisconnect)
		m.mu.Unlock()
	default:
		e.sess.State = domain.SessionAwaitingReconnect
		e.graceTimer = m.clk.AfterFunc(m.grace, func() { m.graceExpired(sid) })
		m.mu.Unlock()
		m.broadcastState(e, role)
		log.Info().Str("module", "app.sessions").Str("session", string(sid)).Str("missing_role", string(role)).Msg("member disconnected, room preserved")
	}
}

// End terminates a session on explicit request from either member. Ending
// also clears the persistent flag, so the terminal broadcast carries the
// right reason even if a disconnect races it.
func (m *SessionManager) End(sid domain.SessionID, by core.ConnID) error {
	m.mu.Lock()
	e, ok := m.sessions[sid]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if s, _ := e.slotOf(by); s == nil {
		m.mu.Unlock()
		return ErrNotAMember
	}
	e.persistent = false
	m.terminateLocked(e, domain.EndUserInitiated)
	m.mu.Unlock()
	return nil
}

func (m *SessionManager) graceExpired(sid domain.SessionID) {
	m.mu.Lock()
	e, ok := m.sessions[sid]
	if !ok || e.sess.State != domain.SessionAwaitingReconnect {
		m.mu.Unlock()
		return
	}
	m.terminateLocked(e, domain.EndReconnectTimeout)
	m.mu.Unlock()
}

// SweepIdle reclaims any session idle past the bound, regardless of state.
// It is a leak guard for timers lost along the way, not the primary
// termination path.
func (m *SessionManager) SweepIdle() {
	m.mu.Lock()
	now := m.clk.Now()
	swept := 0
	for _, e := range m.sessions {
		if now.Sub(e.sess.LastActivity) > m.idleBound {
			m.terminateLocked(e, domain.EndIdleTimeout)
			swept++
		}
	}
	m.mu.Unlock()
	if swept > 0 {
		log.Warn().Str("module", "app.sessions").Int("count", swept).Msg("idle sweep reclaimed sessions")
	}
}

// Peer validates relay membership and returns the other member's connection,
// empty when the peer slot is vacant. Also refreshes last activity.
func (m *SessionManager) Peer(sid domain.SessionID, from core.ConnID) (core.ConnID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sid]
	if !ok {
		return "", ErrNotFound
	}
	s, role := e.slotOf(from)
	if s == nil {
		return "", ErrNotAMember
	}
	e.sess.LastActivity = m.clk.Now()
	other := e.slotFor(otherRole(role))
	if !other.live {
		return "", nil
	}
	return other.conn, nil
}

// Snapshot returns a copy of the session entity for read-only inspection.
func (m *SessionManager) Snapshot(sid domain.SessionID) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sid]
	if !ok {
		return domain.Session{}, false
	}
	return *e.sess, true
}

// terminateLocked finalizes the entry under the manager lock. Member
// notification happens inline via non-blocking sends.
func (m *SessionManager) terminateLocked(e *sessionEntry, reason domain.EndReason) {
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}
	e.sess.State = domain.SessionEnded
	e.sess.Reason = reason
	delete(m.sessions, e.sess.ID)

	note := events.SessionState{
		Type:      events.TypeSessionState,
		SessionID: e.sess.ID,
		State:     domain.SessionEnded,
		Reason:    reason,
	}
	for _, s := range []*slot{&e.requester, &e.responder} {
		if s.live {
			events.Send(m.reg.Conn(s.conn), note)
			m.reg.ClearSession(s.conn)
		}
	}
	if e.responder.live {
		m.reg.SetAvailability(e.responder.conn, domain.Available)
	}
	m.rec.SessionEnded(history.Record{
		SessionID: string(e.sess.ID),
		EndedAt:   m.clk.Now(),
		Outcome:   string(reason),
	})
	log.Info().Str("module", "app.sessions").Str("session", string(e.sess.ID)).Str("reason", string(reason)).Msg("session ended")
}

func (m *SessionManager) broadcastState(e *sessionEntry, missing domain.Role) {
	m.mu.Lock()
	note := events.SessionState{
		Type:        events.TypeSessionState,
		SessionID:   e.sess.ID,
		State:       e.sess.State,
		MissingRole: missing,
	}
	conns := make([]core.ConnID, 0, 2)
	for _, s := range []*slot{&e.requester, &e.responder} {
		if s.live {
			conns = append(conns, s.conn)
		}
	}
	m.mu.Unlock()
	for _, c := range conns {
		events.Send(m.reg.Conn(c), note)
	}
}

func otherRole(r domain.Role) domain.Role {
	if r == domain.RoleRequester {
		return domain.RoleResponder
	}
	return domain.RoleRequester
}
