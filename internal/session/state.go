// Package session owns the lifecycle of the messaging session: pairing,
// readiness, disconnects and teardown. Other components only ever see
// Active() and the destination-facing operations.
package session

// State is the session lifecycle state.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateAwaitingPairing State = "awaiting-pairing"
	StateReady           State = "ready"
	StateDisconnected    State = "disconnected"
	StateAuthFailed      State = "auth-failed"
	StateTearingDown     State = "tearing-down"
)

// action drives the state machine. Provider events map onto the first four.
type action int

const (
	actQR action = iota
	actReady
	actDisconnected
	actAuthFailure
	actInitialize
	actTeardown
	actTornDown
)

func (a action) String() string {
	switch a {
	case actQR:
		return "qr"
	case actReady:
		return "ready"
	case actDisconnected:
		return "disconnected"
	case actAuthFailure:
		return "auth-failure"
	case actInitialize:
		return "initialize"
	case actTeardown:
		return "teardown"
	case actTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// transition returns the next state, or ok=false when the action is not
// accepted in the current state. Provider events that arrive while tearing
// down are ignored.
func transition(cur State, a action) (State, bool) {
	switch a {
	case actTeardown:
		return StateTearingDown, true
	case actTornDown:
		if cur != StateTearingDown {
			return cur, false
		}
		return StateUninitialized, true
	}
	if cur == StateTearingDown {
		return cur, false
	}
	switch a {
	case actInitialize:
		if cur == StateReady || cur == StateAwaitingPairing {
			return cur, false
		}
		return StateAwaitingPairing, true
	case actQR:
		if cur == StateReady {
			return cur, false
		}
		return StateAwaitingPairing, true
	case actReady:
		return StateReady, true
	case actDisconnected:
		if cur == StateUninitialized {
			return cur, false
		}
		return StateDisconnected, true
	case actAuthFailure:
		return StateAuthFailed, true
	}
	return cur, false
}
