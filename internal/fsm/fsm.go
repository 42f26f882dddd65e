// Package fsm defines the capture session state table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle                 State = "idle"
	StateConnecting           State = "connecting"
	StateListening            State = "listening"
	StateFinalizing           State = "finalizing"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateClosed               State = "closed"
	StateFailed               State = "failed"
)

const (
	EventStart           Event = "start"
	EventConnected       Event = "connected"
	EventConnectFailed   Event = "connect_failed"
	EventStop            Event = "stop"
	EventDropped         Event = "dropped"
	EventFail            Event = "fail"
	EventRemoteClosed    Event = "remote_closed"
	EventFinalizeTimeout Event = "finalize_timeout"
	EventConfirm         Event = "confirm"
	EventCancel          Event = "cancel"
	EventAbort           Event = "abort"
)

// Terminal reports whether no further transition is possible from state.
func Terminal(state State) bool {
	return state == StateClosed || state == StateFailed
}

// Streaming reports whether audio frames may be sent in state.
func Streaming(state State) bool {
	return state == StateListening
}

// Transition returns the state reached by applying event to current.
// Rejected events leave the state unchanged and return an error.
func Transition(current State, event Event) (State, error) {
	if Terminal(current) {
		return current, invalidTransition(current, event)
	}
	if event == EventAbort {
		switch current {
		case StateIdle, StateConnecting, StateListening, StateFinalizing, StateAwaitingConfirmation:
			return StateClosed, nil
		}
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateConnecting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnecting:
		switch event {
		case EventConnected:
			return StateListening, nil
		case EventConnectFailed:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventStop:
			return StateFinalizing, nil
		case EventDropped, EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinalizing:
		switch event {
		case EventRemoteClosed, EventFinalizeTimeout:
			return StateAwaitingConfirmation, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingConfirmation:
		switch event {
		case EventConfirm, EventCancel:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
