package app

import (
	"github.com/rs/zerolog/log"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
)

// Relay forwards negotiation and chat frames between the two members of a
// session. Payloads are opaque: offers, answers, candidates and chat all go
// through the same verbatim path, never interpreted, never persisted.
type Relay struct {
	reg      *Registry
	sessions *SessionManager
}

func NewRelay(reg *Registry, sessions *SessionManager) *Relay {
	return &Relay{reg: reg, sessions: sessions}
}

// Forward delivers the raw frame to the other member of the session. A
// vacant peer slot drops the frame silently; negotiation re-exchanges state
// on rejoin instead of relying on queued delivery.
func (r *Relay) Forward(sid domain.SessionID, from core.ConnID, raw core.Frame) error {
	peer, err := r.sessions.Peer(sid, from)
	if err != nil {
		return err
	}
	if peer == "" {
		log.Debug().Str("module", "app.relay").Str("session", string(sid)).Msg("peer slot vacant, frame dropped")
		return nil
	}
	conn := r.reg.Conn(peer)
	if conn == nil {
		return nil
	}
	if err := conn.TrySend(raw); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("session", string(sid)).Msg("relay send failed")
	}
	return nil
}
