// Package audio handles microphone discovery, selection, and float32 capture.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// DefaultSampleRate is the capture rate the relay expects.
	DefaultSampleRate = 16000

	fragmentBytes = 2048 // 512 float32 samples, 32ms @ 16kHz
)

var (
	// ErrPermissionDenied indicates the sound server refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable indicates no usable capture device or sound server.
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, classify(fmt.Errorf("connect pulse server: %w", err))
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, classify(fmt.Errorf("read default source: %w", err))
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, classify(fmt.Errorf("list sources: %w", err))
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	selection, err := selectDeviceFromList(devices, input, fallback)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	return selection, nil
}

// Sink receives one burst of mono float32 samples. The slice is only valid for
// the duration of the call.
type Sink func([]float32)

// Capture streams float32 sample bursts from one selected Pulse source.
type Capture struct {
	device     Device
	sampleRate int

	client *pulse.Client
	stream *pulse.RecordStream
	sink   Sink

	stopCh chan struct{}

	mu      sync.Mutex
	stopped bool

	inflight sync.WaitGroup
	samples  atomic.Int64
}

// StartCapture creates and starts a mono float32 record stream feeding sink.
func StartCapture(ctx context.Context, selected Device, sampleRate int, sink Sink) (*Capture, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if sink == nil {
		sink = func([]float32) {}
	}

	client, err := newClient()
	if err != nil {
		return nil, classify(fmt.Errorf("connect pulse server: %w", err))
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, classify(fmt.Errorf("resolve source %q: %w", selected.ID, err))
	}

	capture := &Capture{
		device:     selected,
		sampleRate: sampleRate,
		client:     client,
		sink:       sink,
		stopCh:     make(chan struct{}),
	}

	stream, err := client.NewRecord(
		pulse.Float32Writer(capture.onSamples),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("voxtrip voice input"),
	)
	if err != nil {
		capture.Close()
		return nil, classify(fmt.Errorf("create pulse record stream: %w", err))
	}

	capture.stream = stream
	stream.Start()
	if err := stream.Error(); err != nil {
		capture.Close()
		return nil, classify(fmt.Errorf("start pulse record stream: %w", err))
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// SampleRate returns the negotiated capture rate in Hz.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// SamplesCaptured reports total samples accepted from Pulse.
func (c *Capture) SamplesCaptured() int64 {
	return c.samples.Load()
}

// Stop halts the stream and waits for in-flight sink calls. It is idempotent.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onSamples receives Pulse bursts and forwards them to the sink.
func (c *Capture) onSamples(buffer []float32) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.samples.Add(int64(len(buffer)))
	c.sink(buffer)
	return len(buffer), nil
}

// newClient connects to the user's Pulse (or PipeWire-pulse) server.
func newClient() (*pulse.Client, error) {
	return pulse.NewClient(
		pulse.ClientApplicationName("voxtrip"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
}

// classify tags a Pulse failure as a permission denial or an unavailable device.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"access denied", "permission denied", "not authorized", "operation not permitted"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
