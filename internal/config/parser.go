package config

import "strings"

// Parse reads configuration content as JSONC or YAML and validates the result.
//
// JSONC is selected when the first non-whitespace character is `{`; anything
// else is decoded as YAML.
func Parse(content string, base Config) (Config, []Warning, error) {
	return parse(content, base, nil)
}

// parse overlays content onto base, then environment overrides from lookup
// (when non-nil), then validates.
func parse(content string, base Config, lookup func(string) string) (Config, []Warning, error) {
	cfg := base
	var warnings []Warning

	if trimmed := strings.TrimSpace(content); trimmed != "" {
		var (
			payload fileConfig
			err     error
		)
		if strings.HasPrefix(trimmed, "{") {
			payload, err = decodeJSONC(content)
		} else {
			payload, err = decodeYAML(content)
		}
		if err != nil {
			return Config{}, nil, err
		}

		warnings, err = payload.applyTo(&cfg)
		if err != nil {
			return Config{}, nil, err
		}
	}

	if lookup != nil {
		applyEnv(&cfg, lookup)
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validatedWarnings...), nil
}
