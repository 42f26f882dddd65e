package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fileConfig is the on-disk overlay. Nil fields keep the base value. The same
// shape is decoded from JSONC and YAML.
type fileConfig struct {
	Stream    *fileStream    `json:"stream" yaml:"stream"`
	Audio     *fileAudio     `json:"audio" yaml:"audio"`
	Extract   *fileExtract   `json:"extract" yaml:"extract"`
	Confirm   *fileConfirm   `json:"confirm" yaml:"confirm"`
	Indicator *fileIndicator `json:"indicator" yaml:"indicator"`
	Metrics   *fileMetrics   `json:"metrics" yaml:"metrics"`
	Log       *fileLog       `json:"log" yaml:"log"`
	Debug     *fileDebug     `json:"debug" yaml:"debug"`

	ClipboardCmd *string `json:"clipboard_cmd" yaml:"clipboard_cmd"`
	FillCmd      *string `json:"fill_cmd" yaml:"fill_cmd"`
}

type fileStream struct {
	URL               *string `json:"url" yaml:"url"`
	Token             *string `json:"token" yaml:"token"`
	DialTimeoutMS     *int    `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	FinalizeTimeoutMS *int    `json:"finalize_timeout_ms" yaml:"finalize_timeout_ms"`
	FrameSamples      *int    `json:"frame_samples" yaml:"frame_samples"`
	SendQueue         *int    `json:"send_queue" yaml:"send_queue"`
}

type fileAudio struct {
	Input      *string `json:"input" yaml:"input"`
	Fallback   *string `json:"fallback" yaml:"fallback"`
	SampleRate *int    `json:"sample_rate" yaml:"sample_rate"`
}

type fileExtract struct {
	URL       *string `json:"url" yaml:"url"`
	TimeoutMS *int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type fileConfirm struct {
	Auto *bool `json:"auto" yaml:"auto"`
}

type fileIndicator struct {
	Enable         *bool   `json:"enable" yaml:"enable"`
	Backend        *string `json:"backend" yaml:"backend"`
	DesktopAppName *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable" yaml:"sound_enable"`
	Locale         *string `json:"locale" yaml:"locale"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
}

type fileMetrics struct {
	Listen *string `json:"listen" yaml:"listen"`
}

type fileLog struct {
	Level *string `json:"level" yaml:"level"`
}

type fileDebug struct {
	MessageDump *bool `json:"message_dump" yaml:"message_dump"`
}

func decodeJSONC(content string) (fileConfig, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return fileConfig{}, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return fileConfig{}, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return fileConfig{}, wrapJSONDecodeError(normalized, err)
	}
	return payload, nil
}

func (payload fileConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if s := payload.Stream; s != nil {
		setString(&cfg.Stream.URL, s.URL)
		if s.Token != nil {
			cfg.Stream.Token = *s.Token
		}
		setInt(&cfg.Stream.DialTimeoutMS, s.DialTimeoutMS)
		setInt(&cfg.Stream.FinalizeTimeoutMS, s.FinalizeTimeoutMS)
		setInt(&cfg.Stream.FrameSamples, s.FrameSamples)
		setInt(&cfg.Stream.SendQueue, s.SendQueue)
		if s.FrameSamples != nil && *s.FrameSamples != 640 {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("stream.frame_samples=%d differs from the 640-sample wire frame the relay expects", *s.FrameSamples)})
		}
	}

	if a := payload.Audio; a != nil {
		if a.Input != nil {
			cfg.Audio.Input = *a.Input
		}
		if a.Fallback != nil {
			cfg.Audio.Fallback = *a.Fallback
		}
		setInt(&cfg.Audio.SampleRate, a.SampleRate)
	}

	if e := payload.Extract; e != nil {
		setString(&cfg.Extract.URL, e.URL)
		setInt(&cfg.Extract.TimeoutMS, e.TimeoutMS)
	}

	if payload.Confirm != nil && payload.Confirm.Auto != nil {
		cfg.Confirm.Auto = *payload.Confirm.Auto
	}

	if ind := payload.Indicator; ind != nil {
		if ind.Enable != nil {
			cfg.Indicator.Enable = *ind.Enable
		}
		setString(&cfg.Indicator.Backend, ind.Backend)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		if ind.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *ind.SoundEnable
		}
		setString(&cfg.Indicator.Locale, ind.Locale)
		setInt(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
	}

	if payload.Metrics != nil {
		setString(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}
	if payload.Log != nil {
		setString(&cfg.Log.Level, payload.Log.Level)
	}
	if payload.Debug != nil && payload.Debug.MessageDump != nil {
		cfg.Debug.MessageDump = *payload.Debug.MessageDump
	}

	if payload.ClipboardCmd != nil {
		command, err := parseCommand("clipboard_cmd", *payload.ClipboardCmd)
		if err != nil {
			return nil, err
		}
		cfg.Clipboard = command
	}
	if payload.FillCmd != nil {
		command, err := parseCommand("fill_cmd", *payload.FillCmd)
		if err != nil {
			return nil, err
		}
		cfg.Fill = command
	}

	return warnings, nil
}

func parseCommand(key string, raw string) (CommandConfig, error) {
	argv, err := parseArgv(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
