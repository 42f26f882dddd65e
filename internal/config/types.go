// Package config resolves, parses, validates, and defaults voxtrip configuration.
package config

// Config is the fully materialized runtime configuration used by voxtrip.
type Config struct {
	Stream    StreamConfig
	Audio     AudioConfig
	Extract   ExtractConfig
	Confirm   ConfirmConfig
	Indicator IndicatorConfig
	Clipboard CommandConfig
	Fill      CommandConfig
	Metrics   MetricsConfig
	Log       LogConfig
	Debug     DebugConfig
}

// StreamConfig controls the transcription relay connection.
type StreamConfig struct {
	URL               string
	Token             string
	DialTimeoutMS     int
	FinalizeTimeoutMS int
	FrameSamples      int
	SendQueue         int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input      string
	Fallback   string
	SampleRate int
}

// ExtractConfig controls the optional structured-extraction endpoint.
type ExtractConfig struct {
	URL       string
	TimeoutMS int
}

// ConfirmConfig controls how a finished transcript is confirmed.
type ConfirmConfig struct {
	Auto bool
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	Locale         string
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// MetricsConfig controls the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string
}

// LogConfig controls the runtime log.
type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	MessageDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
