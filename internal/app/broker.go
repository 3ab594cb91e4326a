package app

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
	"github.com/terpcall/terpcall/internal/events"
	"github.com/terpcall/terpcall/internal/notify"
)

type pendingRequest struct {
	req           *domain.CallRequest
	requesterConn core.ConnID
	notified      map[core.ConnID]struct{}
	timer         *clock.Timer
}

// Broker owns the pending-request table. Claim adjudication happens in one
// critical section: the first claim to take the table lock wins and removes
// the request, so every later claim for the same id fails, no matter how
// close together they arrived on the wire.
type Broker struct {
	mu       sync.Mutex
	clk      clock.Clock
	reg      *Registry
	sessions *SessionManager
	notifier notify.Notifier
	window   time.Duration
	pending  map[domain.RequestID]*pendingRequest
	// closed keeps short-lived tombstones so a losing or late claim gets
	// the accurate error (already_taken vs expired) instead of not_found.
	closed map[domain.RequestID]domain.RequestStatus
}

func NewBroker(clk clock.Clock, reg *Registry, sessions *SessionManager, notifier notify.Notifier, window time.Duration) *Broker {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Broker{
		clk:      clk,
		reg:      reg,
		sessions: sessions,
		notifier: notifier,
		window:   window,
		pending:  make(map[domain.RequestID]*pendingRequest),
		closed:   make(map[domain.RequestID]domain.RequestStatus),
	}
}

// Submit fans a new call request out to every eligible responder, or reports
// no_responders immediately without persisting anything.
func (b *Broker) Submit(requesterConn core.ConnID, language string, urgency domain.Urgency, sessionType domain.SessionType) (domain.RequestID, error) {
	binding, ok := b.reg.Get(requesterConn)
	if !ok {
		return "", ErrNotFound
	}
	if binding.Role != domain.RoleRequester {
		return "", ErrInvalidRole
	}

	id := domain.NewRequestID()
	eligible := b.reg.FindEligible(language)
	if len(eligible) == 0 {
		events.Send(binding.Conn, events.RequestClosed{Type: events.TypeRequestNoResponders, RequestID: id})
		go b.notifier.NoResponders(language, string(urgency))
		log.Info().Str("module", "app.broker").Str("request", string(id)).Str("language", language).Msg("no eligible responders")
		return id, nil
	}

	now := b.clk.Now()
	req := &domain.CallRequest{
		ID:            id,
		RequesterID:   binding.Participant,
		RequesterName: binding.Name,
		Language:      language,
		Urgency:       urgency,
		SessionType:   sessionType,
		CreatedAt:     now,
		ExpiresAt:     now.Add(b.window),
		Status:        domain.RequestPending,
	}
	e := &pendingRequest{
		req:           req,
		requesterConn: requesterConn,
		notified:      lo.SliceToMap(eligible, func(c core.ConnID) (core.ConnID, struct{}) { return c, struct{}{} }),
	}

	b.mu.Lock()
	b.pending[id] = e
	e.timer = b.clk.AfterFunc(b.window, func() { b.expire(id) })
	b.mu.Unlock()

	broadcast := events.RequestBroadcast{
		Type:          events.TypeRequestBroadcast,
		RequestID:     id,
		RequesterName: req.RequesterName,
		Language:      language,
		Urgency:       urgency,
		SessionType:   sessionType,
		ExpiresAt:     req.ExpiresAt,
	}
	for _, c := range eligible {
		events.Send(b.reg.Conn(c), broadcast)
	}
	events.Send(binding.Conn, events.RequestSubmitted{
		Type:      events.TypeRequestSubmitted,
		RequestID: id,
		Notified:  len(eligible),
		ExpiresAt: req.ExpiresAt,
	})
	log.Info().Str("module", "app.broker").Str("request", string(id)).Str("language", language).Int("notified", len(eligible)).Msg("request broadcast")
	return id, nil
}

// Claim adjudicates a responder's attempt to take a request. Exactly one
// claim per request ever succeeds; the winner's session is created and every
// other notified responder gets an explicit retraction so its prompt can be
// withdrawn.
func (b *Broker) Claim(id domain.RequestID, responderConn core.ConnID) (domain.SessionID, error) {
	responder, ok := b.reg.Get(responderConn)
	if !ok || responder.Role != domain.RoleResponder {
		return "", ErrInvalidRole
	}

	b.mu.Lock()
	e, ok := b.pending[id]
	if !ok {
		err := b.closedErrLocked(id)
		b.mu.Unlock()
		return "", err
	}
	if _, notified := e.notified[responderConn]; !notified {
		b.mu.Unlock()
		return "", ErrNotFound
	}
	// Reserving inside the critical section is what rules out
	// double-booking: a concurrent claim by the same responder on another
	// request serializes behind this one and finds the reservation taken.
	if err := b.reg.ReserveResponder(responderConn); err != nil {
		b.mu.Unlock()
		return "", err
	}
	delete(b.pending, id)
	e.timer.Stop()
	e.req.Status = domain.RequestClaimed
	b.closeLocked(id, domain.RequestClaimed)
	losers := lo.Without(lo.Keys(e.notified), responderConn)
	b.mu.Unlock()

	sess := b.sessions.CreateFromClaim(e.req, e.requesterConn, responder.Participant, responderConn)

	events.Send(responder.Conn, events.ClaimOutcome{
		Type:            events.TypeClaimConfirmed,
		RequestID:       id,
		SessionID:       sess.ID,
		Counterpart:     e.req.RequesterID,
		CounterpartName: e.req.RequesterName,
	})
	events.Send(b.reg.Conn(e.requesterConn), events.ClaimOutcome{
		Type:            events.TypeClaimSucceeded,
		RequestID:       id,
		SessionID:       sess.ID,
		Counterpart:     responder.Participant,
		CounterpartName: responder.Name,
	})
	taken := events.ClaimOutcome{Type: events.TypeClaimTaken, RequestID: id}
	for _, c := range losers {
		events.Send(b.reg.Conn(c), taken)
	}
	log.Info().Str("module", "app.broker").Str("request", string(id)).Str("session", string(sess.ID)).Str("winner", string(responder.Participant)).Int("losers", len(losers)).Msg("claim adjudicated")
	return sess.ID, nil
}

// Decline removes one responder from the notified set. Emptying the set
// closes the request with an explicit no_responders notice, distinct from a
// silent expiry.
func (b *Broker) Decline(id domain.RequestID, responderConn core.ConnID) error {
	b.mu.Lock()
	e, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return ErrNotFound
	}
	delete(e.notified, responderConn)
	if len(e.notified) > 0 {
		b.mu.Unlock()
		return nil
	}
	delete(b.pending, id)
	e.timer.Stop()
	e.req.Status = domain.RequestNoResponders
	b.closeLocked(id, domain.RequestNoResponders)
	b.mu.Unlock()

	events.Send(b.reg.Conn(e.requesterConn), events.RequestClosed{Type: events.TypeRequestNoResponders, RequestID: id})
	log.Info().Str("module", "app.broker").Str("request", string(id)).Msg("all responders declined")
	return nil
}

// Cancel is a requester-initiated immediate expiry of its own request.
func (b *Broker) Cancel(id domain.RequestID, requesterConn core.ConnID) error {
	b.mu.Lock()
	e, ok := b.pending[id]
	if !ok || e.requesterConn != requesterConn {
		b.mu.Unlock()
		return ErrNotFound
	}
	delete(b.pending, id)
	e.timer.Stop()
	e.req.Status = domain.RequestExpired
	b.closeLocked(id, domain.RequestExpired)
	targets := lo.Keys(e.notified)
	b.mu.Unlock()

	expired := events.RequestClosed{Type: events.TypeRequestExpired, RequestID: id}
	for _, c := range targets {
		events.Send(b.reg.Conn(c), expired)
	}
	events.Send(b.reg.Conn(requesterConn), expired)
	log.Info().Str("module", "app.broker").Str("request", string(id)).Msg("request cancelled")
	return nil
}

// DropConn clears a vanished connection out of the pending table: its own
// requests are closed and it is removed from every notified set.
func (b *Broker) DropConn(connID core.ConnID) {
	type closure struct {
		id            domain.RequestID
		requesterConn core.ConnID
		targets       []core.ConnID
		noResponders  bool
	}
	var closures []closure

	b.mu.Lock()
	for id, e := range b.pending {
		if e.requesterConn == connID {
			delete(b.pending, id)
			e.timer.Stop()
			e.req.Status = domain.RequestExpired
			b.closeLocked(id, domain.RequestExpired)
			closures = append(closures, closure{id: id, targets: lo.Keys(e.notified)})
			continue
		}
		if _, ok := e.notified[connID]; ok {
			delete(e.notified, connID)
			if len(e.notified) == 0 {
				delete(b.pending, id)
				e.timer.Stop()
				e.req.Status = domain.RequestNoResponders
				b.closeLocked(id, domain.RequestNoResponders)
				closures = append(closures, closure{id: id, requesterConn: e.requesterConn, noResponders: true})
			}
		}
	}
	b.mu.Unlock()

	for _, c := range closures {
		if c.noResponders {
			events.Send(b.reg.Conn(c.requesterConn), events.RequestClosed{Type: events.TypeRequestNoResponders, RequestID: c.id})
			continue
		}
		expired := events.RequestClosed{Type: events.TypeRequestExpired, RequestID: c.id}
		for _, t := range c.targets {
			events.Send(b.reg.Conn(t), expired)
		}
	}
}

// expire is the request timer firing. It re-enters the same lock as claims,
// so a claim and an expiry racing on the boundary resolve in whichever order
// the lock grants, deterministically.
func (b *Broker) expire(id domain.RequestID) {
	b.mu.Lock()
	e, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, id)
	e.req.Status = domain.RequestExpired
	b.closeLocked(id, domain.RequestExpired)
	targets := lo.Keys(e.notified)
	b.mu.Unlock()

	expired := events.RequestClosed{Type: events.TypeRequestExpired, RequestID: id}
	events.Send(b.reg.Conn(e.requesterConn), expired)
	for _, c := range targets {
		events.Send(b.reg.Conn(c), expired)
	}
	log.Info().Str("module", "app.broker").Str("request", string(id)).Msg("request expired")
}

func (b *Broker) closeLocked(id domain.RequestID, status domain.RequestStatus) {
	b.closed[id] = status
	b.clk.AfterFunc(2*b.window, func() {
		b.mu.Lock()
		delete(b.closed, id)
		b.mu.Unlock()
	})
}

func (b *Broker) closedErrLocked(id domain.RequestID) error {
	switch b.closed[id] {
	case domain.RequestClaimed:
		return ErrAlreadyTaken
	case domain.RequestExpired:
		return ErrExpired
	default:
		return ErrNotFound
	}
}
