package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// fileNames are tried in order inside the config directory.
var fileNames = []string{"config.jsonc", "config.yaml", "config.yml"}

// ResolvePath applies CLI/XDG/home fallback rules for the config file location.
// Without an explicit path the first existing candidate wins; when none exists
// the JSONC path is returned.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}
	for _, name := range fileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return filepath.Join(dir, fileNames[0]), nil
}

func configDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "voxtrip"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "voxtrip"), nil
}
