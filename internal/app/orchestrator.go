package app

import (
	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
)

// Orchestrator is the single entry point the transport adapter talks to. It
// owns the choreography between registry, broker, session manager and relay
// so no handler ever reaches into another component's table.
type Orchestrator struct {
	Registry *Registry
	Broker   *Broker
	Sessions *SessionManager
	Relay    *Relay
}

// Join registers a connection and, when a session id is supplied, re-binds
// it into that session (the reconnect path).
func (o *Orchestrator) Join(connID core.ConnID, conn core.SignalConnection, pid domain.ParticipantID, name string, role domain.Role, rejoin domain.SessionID) error {
	if err := o.Registry.Register(connID, conn, pid, name, role); err != nil {
		return err
	}
	if rejoin == "" {
		return nil
	}
	return o.Sessions.Rejoin(rejoin, pid, role, connID)
}

// OnDisconnect settles everything a vanished connection touched: pending
// requests first, then its session, then the binding itself.
func (o *Orchestrator) OnDisconnect(connID core.ConnID) {
	b, ok := o.Registry.Unregister(connID)
	if !ok {
		return
	}
	o.Broker.DropConn(connID)
	if b.SessionID != "" {
		o.Sessions.OnDisconnect(connID, b.SessionID)
	}
}
