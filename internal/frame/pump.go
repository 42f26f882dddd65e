package frame

import (
	"sync"
	"sync/atomic"
)

const (
	defaultBurstQueue = 32
	defaultFrameQueue = 64
)

// Pump runs one Encoder on its own goroutine so the audio callback never waits
// on encoding, and the frame consumer never waits on the audio callback.
//
// Bursts are copied on Write; frames are handed off by ownership through Frames.
// When either queue is full the newest item is dropped and counted.
type Pump struct {
	enc *Encoder

	bursts chan []float32
	frames chan Frame
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once

	dropped atomic.Int64
	emitted atomic.Int64
}

// StartPump launches an encoder goroutine producing frames of size samples.
// frameQueue bounds how many encoded frames may wait for the consumer.
func StartPump(size int, frameQueue int) *Pump {
	if frameQueue <= 0 {
		frameQueue = defaultFrameQueue
	}
	p := &Pump{
		enc:    NewEncoder(size),
		bursts: make(chan []float32, defaultBurstQueue),
		frames: make(chan Frame, frameQueue),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Size returns the frame size in samples.
func (p *Pump) Size() int {
	return p.enc.Size()
}

// Write hands a copy of burst to the encoder goroutine without blocking.
// It reports false when the burst was dropped or the pump is stopped.
func (p *Pump) Write(burst []float32) bool {
	if len(burst) == 0 {
		return true
	}
	select {
	case <-p.stopCh:
		return false
	default:
	}

	owned := make([]float32, len(burst))
	copy(owned, burst)

	select {
	case p.bursts <- owned:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Frames returns encoded frames in capture order. It is closed after Stop.
func (p *Pump) Frames() <-chan Frame {
	return p.frames
}

// Dropped reports bursts and frames lost to full queues.
func (p *Pump) Dropped() int64 {
	return p.dropped.Load()
}

// Emitted reports frames delivered to the Frames channel.
func (p *Pump) Emitted() int64 {
	return p.emitted.Load()
}

// Stop encodes bursts already accepted, discards the sub-frame tail, and closes
// Frames. It is idempotent and returns once the encoder goroutine has exited.
func (p *Pump) Stop() {
	p.once.Do(func() {
		close(p.stopCh)
	})
	<-p.done
}

func (p *Pump) run() {
	defer close(p.done)
	defer close(p.frames)

	for {
		select {
		case burst := <-p.bursts:
			p.encode(burst)
		case <-p.stopCh:
			for {
				select {
				case burst := <-p.bursts:
					p.encode(burst)
				default:
					p.enc.Reset()
					return
				}
			}
		}
	}
}

func (p *Pump) encode(burst []float32) {
	for _, f := range p.enc.Push(burst) {
		select {
		case p.frames <- f:
			p.emitted.Add(1)
		default:
			p.dropped.Add(1)
		}
	}
}
