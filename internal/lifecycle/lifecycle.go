// Package lifecycle owns the hardware and network resources of one session and
// tears them down exactly once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rbright/voxtrip/internal/frame"
)

// ErrReleased indicates an acquire after the manager was released.
var ErrReleased = errors.New("session resources already released")

// Stopper halts an active capture.
type Stopper interface {
	Stop() error
}

// Microphone starts capture delivering float32 bursts to sink.
type Microphone interface {
	Open(ctx context.Context, sink func([]float32)) (Stopper, error)
}

// MicrophoneFunc adapts a function to the Microphone interface.
type MicrophoneFunc func(context.Context, func([]float32)) (Stopper, error)

func (f MicrophoneFunc) Open(ctx context.Context, sink func([]float32)) (Stopper, error) {
	return f(ctx, sink)
}

// Options controls the encoding pipeline created on Acquire.
type Options struct {
	FrameSamples int
	FrameQueue   int
}

// Manager tracks the microphone, encoder pump, and relay connection of one session.
type Manager struct {
	mic  Microphone
	opts Options

	mu       sync.Mutex
	capture  Stopper
	pump     *frame.Pump
	conn     io.Closer
	released bool

	releaseOnce sync.Once
	releaseErr  error
}

// New returns a manager acquiring capture from mic.
func New(mic Microphone, opts Options) *Manager {
	return &Manager{mic: mic, opts: opts}
}

// AttachConn hands the relay connection to the manager for release.
// A connection attached after release is closed immediately.
func (m *Manager) AttachConn(conn io.Closer) error {
	if conn == nil {
		return nil
	}
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return conn.Close()
	}
	m.conn = conn
	m.mu.Unlock()
	return nil
}

// Acquire starts the encoder pump and then the microphone feeding it. On
// failure nothing stays running. The returned channel carries encoded frames
// and closes once capture stops.
func (m *Manager) Acquire(ctx context.Context) (<-chan frame.Frame, error) {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil, ErrReleased
	}
	if m.pump != nil {
		frames := m.pump.Frames()
		m.mu.Unlock()
		return frames, nil
	}
	m.mu.Unlock()

	pump := frame.StartPump(m.opts.FrameSamples, m.opts.FrameQueue)
	capture, err := m.mic.Open(ctx, func(burst []float32) {
		pump.Write(burst)
	})
	if err != nil {
		pump.Stop()
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		stopErr := capture.Stop()
		pump.Stop()
		return nil, errors.Join(ErrReleased, stopErr)
	}
	m.capture = capture
	m.pump = pump
	return pump.Frames(), nil
}

// StopCapture stops the microphone and flushes the pump so every frame
// encoded so far is readable before the frame channel closes. Idempotent.
func (m *Manager) StopCapture() error {
	m.mu.Lock()
	capture := m.capture
	pump := m.pump
	m.capture = nil
	m.mu.Unlock()

	var err error
	if capture != nil {
		if serr := capture.Stop(); serr != nil {
			err = fmt.Errorf("stop capture: %w", serr)
		}
	}
	if pump != nil {
		pump.Stop()
	}
	return err
}

// DroppedFrames reports bursts and frames lost inside the encoder pump.
func (m *Manager) DroppedFrames() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pump == nil {
		return 0
	}
	return m.pump.Dropped()
}

// Release stops capture, discards pending samples, and closes the connection.
// It runs once; later calls return the first result.
func (m *Manager) Release() error {
	m.releaseOnce.Do(func() {
		m.mu.Lock()
		m.released = true
		capture := m.capture
		pump := m.pump
		conn := m.conn
		m.capture = nil
		m.conn = nil
		m.mu.Unlock()

		var errs []error
		if capture != nil {
			if err := capture.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stop capture: %w", err))
			}
		}
		if pump != nil {
			pump.Stop()
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		m.releaseErr = errors.Join(errs...)
	})
	return m.releaseErr
}

// Released reports whether Release has run.
func (m *Manager) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}
