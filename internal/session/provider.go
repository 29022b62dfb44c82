package session

import "context"

// EventKind identifies a provider event.
type EventKind string

const (
	EventQR           EventKind = "qr"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventAuthFailure  EventKind = "auth-failure"
)

// Event is emitted by a Provider. Code is the raw pairing payload for
// EventQR; Reason is set for disconnects and auth failures.
type Event struct {
	Kind   EventKind
	Code   string
	Reason string
}

// Chat is one conversation visible to the session.
type Chat struct {
	ID      string
	Name    string
	IsGroup bool
}

// Provider is the messaging client the controller drives.
//
// Initialize starts the client and returns once it is connecting; readiness
// and pairing arrive as events. Destroy releases the client so Initialize can
// be called again.
type Provider interface {
	Initialize(ctx context.Context) error
	Logout(ctx context.Context) error
	Destroy(ctx context.Context) error
	Chats(ctx context.Context) ([]Chat, error)
	SendText(ctx context.Context, id, text string) error
	SetHandler(h func(Event))
}
