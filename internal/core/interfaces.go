package core

// Frame is a raw wire payload (a marshaled control event).
type Frame []byte

// ConnID identifies one live control connection.
type ConnID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
