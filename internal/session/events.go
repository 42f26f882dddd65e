package session

import (
	"github.com/rbright/voxtrip/internal/frame"
	"github.com/rbright/voxtrip/internal/stream"
)

// event is every input the controller loop reacts to.
type event interface {
	isEvent()
}

type (
	startEvent     struct{}
	connectedEvent struct {
		conn Conn
	}
	acquiredEvent struct {
		frames <-chan frame.Frame
		err    error
	}
	connectFailedEvent struct {
		err error
	}
	captureFailedEvent struct {
		err error
	}
	frameEvent struct {
		frame frame.Frame
	}
	messageEvent struct {
		msg stream.Message
	}
	malformedEvent struct {
		err error
	}
	remoteClosedEvent struct {
		err error
	}
	stopEvent            struct{}
	finalizeTimeoutEvent struct{}
	confirmEvent         struct{}
	cancelEvent          struct{}
	dismissEvent         struct {
		err error
	}
)

func (startEvent) isEvent()           {}
func (connectedEvent) isEvent()       {}
func (acquiredEvent) isEvent()        {}
func (connectFailedEvent) isEvent()   {}
func (captureFailedEvent) isEvent()   {}
func (frameEvent) isEvent()           {}
func (messageEvent) isEvent()         {}
func (malformedEvent) isEvent()       {}
func (remoteClosedEvent) isEvent()    {}
func (stopEvent) isEvent()            {}
func (finalizeTimeoutEvent) isEvent() {}
func (confirmEvent) isEvent()         {}
func (cancelEvent) isEvent()          {}
func (dismissEvent) isEvent()         {}

// fromStream converts one adapter event into a controller event.
func fromStream(ev stream.Event) event {
	switch e := ev.(type) {
	case stream.MessageEvent:
		return messageEvent{msg: e.Message}
	case stream.MalformedEvent:
		return malformedEvent{err: e.Err}
	case stream.ClosedEvent:
		return remoteClosedEvent{err: e.Err}
	default:
		return nil
	}
}

func eventName(ev event) string {
	switch ev.(type) {
	case startEvent:
		return "start"
	case connectedEvent:
		return "connected"
	case acquiredEvent:
		return "acquired"
	case connectFailedEvent:
		return "connect_failed"
	case captureFailedEvent:
		return "capture_failed"
	case frameEvent:
		return "frame"
	case messageEvent:
		return "message"
	case malformedEvent:
		return "malformed"
	case remoteClosedEvent:
		return "remote_closed"
	case stopEvent:
		return "stop"
	case finalizeTimeoutEvent:
		return "finalize_timeout"
	case confirmEvent:
		return "confirm"
	case cancelEvent:
		return "cancel"
	case dismissEvent:
		return "dismiss"
	default:
		return "unknown"
	}
}
