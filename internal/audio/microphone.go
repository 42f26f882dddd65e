package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Microphone resolves the configured device and opens a capture for each session.
type Microphone struct {
	Input      string
	Fallback   string
	SampleRate int
	Logger     *slog.Logger
}

// Open selects a device and starts capture feeding sink.
func (m Microphone) Open(ctx context.Context, sink Sink) (*Capture, error) {
	selection, err := SelectDevice(ctx, m.Input, m.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && m.Logger != nil {
		m.Logger.Warn(selection.Warning)
	}

	capture, err := StartCapture(ctx, selection.Device, m.SampleRate, sink)
	if err != nil {
		return nil, err
	}
	if m.Logger != nil {
		m.Logger.Info("microphone opened",
			"device", DescribeDevice(selection.Device),
			"sample_rate", capture.SampleRate(),
			"fallback", selection.Fallback,
		)
	}
	return capture, nil
}

// DescribeDevice formats device metadata for logs and diagnostics.
func DescribeDevice(device Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
