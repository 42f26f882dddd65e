package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validateURL("stream.url", cfg.Stream.URL, "ws", "wss"); err != nil {
		return nil, err
	}
	if strings.HasPrefix(cfg.Stream.URL, "ws://") && cfg.Stream.Token != "" && !isLoopback(cfg.Stream.URL) {
		warnings = append(warnings, Warning{Message: "stream.token is sent over an unencrypted ws:// connection"})
	}
	if cfg.Stream.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("stream.dial_timeout_ms must be > 0")
	}
	if cfg.Stream.FinalizeTimeoutMS <= 0 {
		return nil, fmt.Errorf("stream.finalize_timeout_ms must be > 0")
	}
	if cfg.Stream.FrameSamples <= 0 {
		return nil, fmt.Errorf("stream.frame_samples must be > 0")
	}
	if cfg.Stream.SendQueue <= 0 {
		return nil, fmt.Errorf("stream.send_queue must be > 0")
	}

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.SampleRate != 16000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("audio.sample_rate=%d; the relay expects 16000 Hz", cfg.Audio.SampleRate)})
	}

	if cfg.Extract.URL != "" {
		if err := validateURL("extract.url", cfg.Extract.URL, "http", "https"); err != nil {
			return nil, err
		}
	}
	if cfg.Extract.TimeoutMS <= 0 {
		return nil, fmt.Errorf("extract.timeout_ms must be > 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" && backend != "none" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop, none")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	switch strings.ToLower(cfg.Indicator.Locale) {
	case "", "en", "zh":
	default:
		return nil, fmt.Errorf("indicator.locale must be one of: en, zh")
	}

	if cfg.Clipboard.Raw != "" && len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd is configured but empty")
	}
	if cfg.Fill.Raw != "" && len(cfg.Fill.Argv) == 0 {
		return nil, fmt.Errorf("fill_cmd is configured but empty")
	}
	if len(cfg.Fill.Argv) > 0 && cfg.Extract.URL == "" {
		warnings = append(warnings, Warning{Message: "fill_cmd is set but extract.url is empty; fill_cmd will receive no fields"})
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func validateURL(key string, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of: %s", key, strings.Join(schemes, ", "))
}

func isLoopback(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}
