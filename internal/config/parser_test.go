package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJSONCOverlaysDefaults(t *testing.T) {
	input := `
{
  // relay
  "stream": {
    "url": "wss://relay.example/ws/audio",
    "token": "secret",
    "finalize_timeout_ms": 4000,
  },
  "extract": {"url": "http://127.0.0.1:8080/process-speech-text"},
  "confirm": {"auto": true},
  "fill_cmd": "trip-fill --stdin",
  "metrics": {"listen": "127.0.0.1:9464"},
  "log": {"level": "debug"},
  "debug": {"message_dump": true},
}
`
	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "wss://relay.example/ws/audio", cfg.Stream.URL)
	require.Equal(t, "secret", cfg.Stream.Token)
	require.Equal(t, 4000, cfg.Stream.FinalizeTimeoutMS)
	require.Equal(t, 5000, cfg.Stream.DialTimeoutMS, "unset keys keep defaults")
	require.Equal(t, 640, cfg.Stream.FrameSamples)
	require.Equal(t, "http://127.0.0.1:8080/process-speech-text", cfg.Extract.URL)
	require.True(t, cfg.Confirm.Auto)
	require.Equal(t, []string{"trip-fill", "--stdin"}, cfg.Fill.Argv)
	require.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Debug.MessageDump)
	require.Equal(t, []string{"wl-copy", "--trim-newline"}, cfg.Clipboard.Argv)
}

func TestParseYAMLOverlaysDefaults(t *testing.T) {
	input := `
stream:
  url: ws://127.0.0.1:9000/ws/audio
  send_queue: 64
audio:
  input: Elgato
  fallback: default
indicator:
  backend: none
  locale: zh
clipboard_cmd: ""
`
	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "ws://127.0.0.1:9000/ws/audio", cfg.Stream.URL)
	require.Equal(t, 64, cfg.Stream.SendQueue)
	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.Equal(t, "none", cfg.Indicator.Backend)
	require.Equal(t, "zh", cfg.Indicator.Locale)
	require.Empty(t, cfg.Clipboard.Argv)
	require.True(t, cfg.Indicator.SoundEnable)
}

func TestParseYAMLRejectsUnknownKey(t *testing.T) {
	_, _, err := Parse("stream:\n  codec: opus\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "yaml")
	require.Contains(t, err.Error(), "codec")
}

func TestParseYAMLRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("confirm:\n  auto: true\n---\nconfirm:\n  auto: false\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple documents")
}

func TestParseYAMLErrorIncludesLine(t *testing.T) {
	_, _, err := Parse("stream:\n  dial_timeout_ms: fast\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
}

func TestParseEmptyContentUsesBase(t *testing.T) {
	cfg, _, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseFrameSamplesWarning(t *testing.T) {
	_, warnings, err := Parse(`{"stream":{"frame_samples":320}}`, Default())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "frame_samples=320")
}

func TestParseValidationFailureSurfaces(t *testing.T) {
	_, _, err := Parse(`{"stream":{"url":"http://relay"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "stream.url scheme")
}
