package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Stream: StreamConfig{
			URL:               "ws://127.0.0.1:8080/ws/audio",
			DialTimeoutMS:     5000,
			FinalizeTimeoutMS: 10000,
			FrameSamples:      640,
			SendQueue:         256,
		},
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
		},
		Extract: ExtractConfig{TimeoutMS: 60000},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "voxtrip",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Log:       LogConfig{Level: "info"},
	}
}
