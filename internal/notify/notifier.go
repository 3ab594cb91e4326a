// Package notify dispatches best-effort out-of-band alerts, currently only
// "no responders were available for this request".
package notify

type Notifier interface {
	NoResponders(language, urgency string)
}

type Nop struct{}

func (Nop) NoResponders(string, string) {}
