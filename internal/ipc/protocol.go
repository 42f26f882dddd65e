// Package ipc carries one-line JSON commands between voxtrip invocations and
// the process owning the active session.
package ipc

import "errors"

// Commands understood by the session owner.
const (
	CommandStatus  = "status"
	CommandToggle  = "toggle"
	CommandStop    = "stop"
	CommandConfirm = "confirm"
	CommandCancel  = "cancel"
	CommandDismiss = "dismiss"
)

// Request is one command sent to the session owner.
type Request struct {
	Command string `json:"command"`
}

// Response is the owner's reply. Transcript is the text recognized so far.
type Response struct {
	OK         bool   `json:"ok"`
	State      string `json:"state,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Err returns the owner's rejection as an error, or nil when OK.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return errors.New("session owner rejected command")
	}
	return errors.New(r.Error)
}
