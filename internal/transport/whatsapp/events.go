package whatsapp

import (
	"fmt"

	"go.mau.fi/whatsmeow/types/events"

	"remindbot/internal/session"
)

// mapEvent translates whatsmeow events into session events.
func mapEvent(evt any) (session.Event, bool) {
	switch v := evt.(type) {
	case *events.Connected:
		return session.Event{Kind: session.EventReady}, true
	case *events.Disconnected:
		return session.Event{Kind: session.EventDisconnected, Reason: "connection lost"}, true
	case *events.StreamReplaced:
		return session.Event{Kind: session.EventDisconnected, Reason: "session opened elsewhere"}, true
	case *events.LoggedOut:
		return session.Event{Kind: session.EventAuthFailure, Reason: fmt.Sprintf("logged out: %v", v.Reason)}, true
	case *events.ConnectFailure:
		return session.Event{Kind: session.EventAuthFailure, Reason: fmt.Sprintf("connect failure: %v %s", v.Reason, v.Message)}, true
	case *events.TemporaryBan:
		return session.Event{Kind: session.EventAuthFailure, Reason: v.String()}, true
	case *events.ClientOutdated:
		return session.Event{Kind: session.EventAuthFailure, Reason: "client outdated"}, true
	}
	return session.Event{}, false
}

// mapQRItem translates a QR channel item. "success" is skipped: the
// Connected event that follows marks the session ready.
func mapQRItem(event, code string, err error) (session.Event, bool) {
	switch event {
	case "code":
		return session.Event{Kind: session.EventQR, Code: code}, true
	case "success":
		return session.Event{}, false
	case "timeout":
		return session.Event{Kind: session.EventDisconnected, Reason: "pairing timed out"}, true
	case "error":
		reason := "pairing failed"
		if err != nil {
			reason += ": " + err.Error()
		}
		return session.Event{Kind: session.EventAuthFailure, Reason: reason}, true
	default:
		return session.Event{Kind: session.EventAuthFailure, Reason: "pairing failed: " + event}, true
	}
}
