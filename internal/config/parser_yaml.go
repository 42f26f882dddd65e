package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// decodeYAML decodes one YAML document into the overlay, rejecting unknown keys.
func decodeYAML(content string) (fileConfig, error) {
	decoder := yaml.NewDecoder(strings.NewReader(content))
	decoder.KnownFields(true)

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return fileConfig{}, fmt.Errorf("decode yaml: %w", err)
	}

	var extra any
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return fileConfig{}, fmt.Errorf("decode yaml: %w", err)
		}
		return fileConfig{}, fmt.Errorf("decode yaml: multiple documents are not allowed")
	}
	return payload, nil
}
