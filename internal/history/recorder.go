// Package history reports session outcomes to the billing/history store.
// Reporting is fire-and-forget: a slow or broken store must never block or
// fail a session transition.
package history

import "time"

type Record struct {
	SessionID   string
	RequesterID string
	ResponderID string
	Language    string
	SessionType string
	StartedAt   time.Time
	EndedAt     time.Time
	Outcome     string
}

type Recorder interface {
	SessionStarted(rec Record)
	SessionEnded(rec Record)
	Close()
}

// Nop is the default when no store is configured.
type Nop struct{}

func (Nop) SessionStarted(Record) {}
func (Nop) SessionEnded(Record)   {}
func (Nop) Close()                {}
