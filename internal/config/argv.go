package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

// parseArgv splits a command string shell-style. Single quotes are literal;
// $VAR and ${VAR} expand from the environment outside them, so fill_cmd can
// reference $HOME. A leading # disables the command.
func parseArgv(input string) ([]string, error) {
	return splitArgv(input, os.Getenv)
}

func splitArgv(input string, lookup func(string) string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv    []string
		current strings.Builder
		started bool
		quote   rune
	)
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
			}
			i++
			current.WriteRune(runes[i])
			started = true
		case r == '$':
			name, next := variableAt(runes, i+1)
			if name == "" {
				current.WriteRune(r)
			} else {
				current.WriteString(lookup(name))
				i = next - 1
			}
			started = true
		case quote == '"':
			if r == '"' {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			started = true
		case unicode.IsSpace(r):
			if started {
				argv = append(argv, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}
	if started {
		argv = append(argv, current.String())
	}
	return argv, nil
}

// variableAt reads a $NAME or ${NAME} reference starting at runes[start] and
// returns the name plus the index after it. An empty name means no reference.
func variableAt(runes []rune, start int) (string, int) {
	if start < len(runes) && runes[start] == '{' {
		for end := start + 1; end < len(runes); end++ {
			if runes[end] == '}' {
				return string(runes[start+1 : end]), end + 1
			}
		}
		return "", start
	}

	end := start
	for end < len(runes) && (runes[end] == '_' || unicode.IsLetter(runes[end]) || (end > start && unicode.IsDigit(runes[end]))) {
		end++
	}
	return string(runes[start:end]), end
}

func mustParseArgv(input string) []string {
	argv, err := splitArgv(input, func(string) string { return "" })
	if err != nil {
		panic(err)
	}
	return argv
}
