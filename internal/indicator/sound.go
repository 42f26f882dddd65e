package indicator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/voxtrip/internal/frame"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

const (
	cueSampleRate = 16000
	cueGap        = 22 * time.Millisecond
	cueRamp       = 5 * time.Millisecond
	cueVolume     = 0.18
)

// note is one tone of a cue.
type note struct {
	hz  float64
	dur time.Duration
}

// Rising pairs open and confirm, a single low note stops, falling pairs cancel.
var cueScores = map[cueKind][]note{
	cueStart:    {{880, 70 * time.Millisecond}, {1175, 70 * time.Millisecond}},
	cueStop:     {{620, 120 * time.Millisecond}},
	cueComplete: {{740, 65 * time.Millisecond}, {988, 90 * time.Millisecond}},
	cueCancel:   {{480, 75 * time.Millisecond}, {360, 90 * time.Millisecond}},
}

var (
	cueCacheOnce sync.Once
	cueCache     map[cueKind][]int16
)

// emitCue plays one cue through the Pulse server.
func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playPCM(ctx, samples)
}

// cueSamples returns the rendered PCM for kind, rendering all cues on first use.
func cueSamples(kind cueKind) []int16 {
	cueCacheOnce.Do(func() {
		cueCache = make(map[cueKind][]int16, len(cueScores))
		for k, score := range cueScores {
			cueCache[k] = quantize(render(score, cueVolume))
		}
	})
	return cueCache[kind]
}

func playPCM(ctx context.Context, samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voxtrip"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	remaining := samples
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || len(remaining) == 0 {
			return 0, pulse.EndOfData
		}
		n := copy(buf, remaining)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("voxtrip cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return ctx.Err()
}

// render lays the notes end to end with a short silence between them.
func render(score []note, volume float64) []float32 {
	var out []float32
	for i, n := range score {
		if i > 0 {
			out = append(out, make([]float32, sampleCount(cueGap))...)
		}
		out = append(out, tone(n, volume)...)
	}
	return out
}

// tone renders one sine note with a short linear fade at both ends.
func tone(n note, volume float64) []float32 {
	count := sampleCount(n.dur)
	if count <= 0 || n.hz <= 0 || volume <= 0 {
		return nil
	}
	ramp := min(max(count/10, 1), sampleCount(cueRamp))

	out := make([]float32, count)
	for i := range out {
		gain := min(1, float64(i)/float64(ramp), float64(count-1-i)/float64(ramp))
		phase := 2 * math.Pi * n.hz * float64(i) / cueSampleRate
		out[i] = float32(math.Sin(phase) * volume * gain)
	}
	return out
}

// quantize converts rendered samples with the same rule used for microphone
// frames.
func quantize(samples []float32) []int16 {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = frame.Quantize(s)
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
