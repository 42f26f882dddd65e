package session

import (
	"context"
	"io"

	"github.com/rbright/voxtrip/internal/frame"
	"github.com/rbright/voxtrip/internal/stream"
)

// Conn is the relay connection surface used by the controller.
type Conn interface {
	SendFrame(frame.Frame) error
	SendEndOfStream() error
	Events() <-chan stream.Event
	Close() error
}

// Dialer opens one relay connection.
type Dialer interface {
	Dial(context.Context) (Conn, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(context.Context) (Conn, error)

func (f DialFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// StreamDialer dials the relay described by cfg.
func StreamDialer(cfg stream.Config) Dialer {
	return DialFunc(func(ctx context.Context) (Conn, error) {
		conn, err := stream.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Resources owns capture and connection teardown for one session.
type Resources interface {
	Acquire(context.Context) (<-chan frame.Frame, error)
	AttachConn(io.Closer) error
	StopCapture() error
	DroppedFrames() int64
	Release() error
}

// Committer dispatches a confirmed transcript.
type Committer interface {
	Commit(context.Context, string) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, string) error

func (f CommitFunc) Commit(ctx context.Context, transcript string) error {
	return f(ctx, transcript)
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowConnecting(context.Context)
	ShowListening(context.Context)
	ShowTranscript(context.Context, string)
	ShowFinalizing(context.Context)
	ShowConfirm(context.Context, string)
	// ShowError surfaces a failure; kind is a Kind name, detail is optional.
	ShowError(ctx context.Context, kind string, detail string)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowConnecting(context.Context)            {}
func (noopIndicator) ShowListening(context.Context)             {}
func (noopIndicator) ShowTranscript(context.Context, string)    {}
func (noopIndicator) ShowFinalizing(context.Context)            {}
func (noopIndicator) ShowConfirm(context.Context, string)       {}
func (noopIndicator) ShowError(context.Context, string, string) {}
func (noopIndicator) CueStop(context.Context)                   {}
func (noopIndicator) CueComplete(context.Context)               {}
func (noopIndicator) CueCancel(context.Context)                 {}
func (noopIndicator) Hide(context.Context)                      {}
