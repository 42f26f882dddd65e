//go:build integration

package audio

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMicrophoneCapturesFromDefaultSource(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var bursts atomic.Int64
	capture, err := Microphone{Input: "default", SampleRate: DefaultSampleRate}.Open(ctx, func(samples []float32) {
		if len(samples) > 0 {
			bursts.Add(1)
		}
	})
	require.NoError(t, err)
	defer capture.Close()

	require.Equal(t, DefaultSampleRate, capture.SampleRate())
	require.Eventually(t, func() bool { return bursts.Load() > 2 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, capture.Stop())
	require.Positive(t, capture.SamplesCaptured())
}
