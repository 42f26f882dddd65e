package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variables that override file values. The token override keeps
// relay credentials out of the config file.
const (
	EnvStreamURL   = "VOXTRIP_STREAM_URL"
	EnvStreamToken = "VOXTRIP_STREAM_TOKEN"
	EnvExtractURL  = "VOXTRIP_EXTRACT_URL"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, and parses the config file, applies environment
// overrides, and validates the result. A missing file means defaults.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Exists: true}
	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Exists = false
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := parse(string(content), Default(), os.Getenv)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}
	loaded.Config = cfg
	loaded.Warnings = append(loaded.Warnings, warnings...)
	return loaded, nil
}

func applyEnv(cfg *Config, lookup func(string) string) {
	for name, target := range map[string]*string{
		EnvStreamURL:   &cfg.Stream.URL,
		EnvStreamToken: &cfg.Stream.Token,
		EnvExtractURL:  &cfg.Extract.URL,
	} {
		if value := strings.TrimSpace(lookup(name)); value != "" {
			*target = value
		}
	}
}
