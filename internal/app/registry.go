package app

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
)

// Binding is the registry's view of one live control connection.
type Binding struct {
	Conn         core.SignalConnection
	Participant  domain.ParticipantID
	Name         string
	Role         domain.Role
	SessionID    domain.SessionID
	Capabilities domain.Capabilities

	reserved bool
}

// Registry owns the connection table and the language index used for
// routing. The index is maintained incrementally on every capability
// update, never rebuilt per lookup.
type Registry struct {
	mu         sync.RWMutex
	conns      map[core.ConnID]*Binding
	byLanguage map[string]map[core.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[core.ConnID]*Binding),
		byLanguage: make(map[string]map[core.ConnID]struct{}),
	}
}

func (r *Registry) Register(id core.ConnID, conn core.SignalConnection, pid domain.ParticipantID, name string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return ErrDuplicateRegistration
	}
	r.conns[id] = &Binding{
		Conn:        conn,
		Participant: pid,
		Name:        name,
		Role:        role,
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("participant", string(pid)).Str("role", string(role)).Msg("registered connection")
	return nil
}

// SetCapabilities replaces a responder's advertised capability set.
// Idempotent; the language index is patched with the delta only.
func (r *Registry) SetCapabilities(id core.ConnID, caps domain.Capabilities) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.conns[id]
	if !ok {
		return ErrNotFound
	}
	if b.Role != domain.RoleResponder {
		return ErrInvalidRole
	}
	for _, lang := range b.Capabilities.Languages {
		if set, ok := r.byLanguage[lang]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byLanguage, lang)
			}
		}
	}
	for _, lang := range caps.Languages {
		set, ok := r.byLanguage[lang]
		if !ok {
			set = make(map[core.ConnID]struct{})
			r.byLanguage[lang] = set
		}
		set[id] = struct{}{}
	}
	b.Capabilities = caps
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Strs("languages", caps.Languages).Str("availability", string(caps.Availability)).Msg("updated capabilities")
	return nil
}

// FindEligible returns every registered responder advertising the language
// with availability "available". Order is unspecified.
func (r *Registry) FindEligible(language string) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(lo.Keys(r.byLanguage[language]), func(id core.ConnID, _ int) bool {
		b, ok := r.conns[id]
		return ok && b.Capabilities.Availability == domain.Available
	})
}

// SetAvailability flips only the availability bit, leaving the language
// index untouched. Used by the session manager to return a responder to
// rotation when its session ends.
func (r *Registry) SetAvailability(id core.ConnID, av domain.Availability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.conns[id]; ok && b.Role == domain.RoleResponder {
		b.Capabilities.Availability = av
	}
}

// ReserveResponder atomically takes a responder out of the claim pool,
// failing when it is already reserved or bound to a session. A reservation
// is settled by BindSession; termination restores availability.
func (r *Registry) ReserveResponder(id core.ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.conns[id]
	if !ok || b.Role != domain.RoleResponder {
		return ErrInvalidRole
	}
	if b.reserved || b.SessionID != "" {
		return ErrAlreadyTaken
	}
	b.reserved = true
	b.Capabilities.Availability = domain.Busy
	return nil
}

func (r *Registry) BindSession(id core.ConnID, sid domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.conns[id]; ok {
		b.SessionID = sid
		b.reserved = false
	}
}

func (r *Registry) ClearSession(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.conns[id]; ok {
		b.SessionID = ""
	}
}

// Get returns a snapshot of the binding, safe to read after the lock drops.
func (r *Registry) Get(id core.ConnID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[id]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// Conn returns the transport endpoint for a connection, nil if gone.
func (r *Registry) Conn(id core.ConnID) core.SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.conns[id]; ok {
		return b.Conn
	}
	return nil
}

// Unregister removes the binding and returns the last known snapshot so the
// caller can settle any session the connection was bound to.
func (r *Registry) Unregister(id core.ConnID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.conns[id]
	if !ok {
		return Binding{}, false
	}
	for _, lang := range b.Capabilities.Languages {
		if set, ok := r.byLanguage[lang]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byLanguage, lang)
			}
		}
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return *b, true
}
