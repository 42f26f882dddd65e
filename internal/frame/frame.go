// Package frame converts float32 microphone bursts into fixed-size int16 PCM frames.
package frame

import (
	"encoding/binary"
	"math"
)

// DefaultSamples is the wire frame size: 640 samples, 40ms @ 16kHz mono.
const DefaultSamples = 640

// Frame is one fixed-size block of signed 16-bit samples.
type Frame []int16

// Bytes encodes the frame as little-endian int16 PCM.
func (f Frame) Bytes() []byte {
	return f.AppendBytes(make([]byte, 0, 2*len(f)))
}

// AppendBytes appends the little-endian encoding of f to dst.
func (f Frame) AppendBytes(dst []byte) []byte {
	for _, s := range f {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// Quantize maps one float sample onto int16.
//
// NaN becomes silence, input is clamped to [-1, 1], and the scaled value is
// truncated toward zero, so 1.0 -> 32767 and -1.0 -> -32767.
func Quantize(x float32) int16 {
	v := float64(x)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * math.MaxInt16)
}

// Encoder accumulates bursts of arbitrary length and emits whole frames.
// An Encoder is not safe for concurrent use; Pump gives it a dedicated goroutine.
type Encoder struct {
	size    int
	pending []int16
}

// NewEncoder returns an encoder emitting frames of size samples.
// Non-positive sizes fall back to DefaultSamples.
func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = DefaultSamples
	}
	return &Encoder{size: size, pending: make([]int16, 0, 2*size)}
}

// Size returns the configured frame size in samples.
func (e *Encoder) Size() int {
	return e.size
}

// Pending returns how many quantized samples are waiting for a full frame.
func (e *Encoder) Pending() int {
	return len(e.pending)
}

// Push quantizes burst, appends it to the pending buffer, and returns every
// complete frame in capture order. Fewer than Size samples always remain pending.
func (e *Encoder) Push(burst []float32) []Frame {
	if len(burst) == 0 {
		return nil
	}
	for _, x := range burst {
		e.pending = append(e.pending, Quantize(x))
	}

	n := len(e.pending) / e.size
	if n == 0 {
		return nil
	}

	frames := make([]Frame, n)
	for i := range frames {
		out := make(Frame, e.size)
		copy(out, e.pending[i*e.size:(i+1)*e.size])
		frames[i] = out
	}

	rest := copy(e.pending, e.pending[n*e.size:])
	e.pending = e.pending[:rest]
	return frames
}

// Reset discards pending samples. A partial frame is never emitted.
func (e *Encoder) Reset() {
	e.pending = e.pending[:0]
}
