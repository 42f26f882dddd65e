package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/voxtrip/internal/audio"
	"github.com/rbright/voxtrip/internal/stream"
)

var (
	// ErrNoSpeechDetected indicates the session was confirmed with an empty transcript.
	ErrNoSpeechDetected = errors.New("no speech detected")
	// ErrConnectionDropped indicates the relay closed while audio was still streaming.
	ErrConnectionDropped = errors.New("connection dropped while listening")
	// ErrDismissed indicates the user dismissed the session before it completed.
	ErrDismissed = errors.New("session dismissed")
)

// Error kinds used in logs, metrics, and indicator messages.
const (
	KindPermissionDenied  = "permission_denied"
	KindDeviceUnavailable = "device_unavailable"
	KindConnection        = "connection"
	KindDropped           = "dropped"
	KindProtocol          = "protocol"
	KindRemote            = "remote"
	KindNoSpeech          = "no_speech"
	KindDismissed         = "dismissed"
	KindCommit            = "commit"
	KindInternal          = "internal"
)

// Kind maps err onto its failure taxonomy name. It returns "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDismissed), errors.Is(err, context.Canceled):
		return KindDismissed
	case errors.Is(err, audio.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, ErrConnectionDropped):
		return KindDropped
	case errors.Is(err, stream.ErrConnection):
		return KindConnection
	case errors.Is(err, stream.ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrNoSpeechDetected):
		return KindNoSpeech
	case errors.Is(err, errCommit):
		return KindCommit
	default:
		return KindInternal
	}
}

var errCommit = errors.New("commit transcript")

// connectionDropped builds the failure reported when the relay goes away
// mid-stream, carrying the last relay error text when one was received.
func connectionDropped(cause error, remoteErr string) error {
	err := ErrConnectionDropped
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionDropped, cause)
	}
	if remoteErr != "" {
		err = fmt.Errorf("%w (relay error: %s)", err, remoteErr)
	}
	return err
}

// IsNoSpeech reports whether err means nothing was recognized.
func IsNoSpeech(err error) bool {
	return errors.Is(err, ErrNoSpeechDetected)
}
