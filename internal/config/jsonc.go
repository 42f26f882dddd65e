package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// normalizeJSONC rewrites JSONC into plain JSON in one pass. Comments become
// spaces so decoder offsets still map to the original line and column, and a
// comma followed only by whitespace or comments before `}` or `]` is dropped.
func normalizeJSONC(content string) (string, error) {
	var (
		out     = []byte(content)
		comma   = -1 // offset of a comma not yet followed by a value
		inStr   bool
		escaped bool
	)

	blank := func(from, to int) {
		for k := from; k < to; k++ {
			if out[k] != '\n' && out[k] != '\r' && out[k] != '\t' {
				out[k] = ' '
			}
		}
	}

	for i := 0; i < len(out); i++ {
		ch := out[i]

		if inStr {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inStr = false
			}
			continue
		}

		switch {
		case ch == '/' && i+1 < len(out) && out[i+1] == '/':
			end := strings.IndexAny(content[i:], "\r\n")
			if end < 0 {
				end = len(out) - i
			}
			blank(i, i+end)
			i += end - 1
		case ch == '/' && i+1 < len(out) && out[i+1] == '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			blank(i, i+end+4)
			i += end + 3
		case ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t':
		case ch == ',':
			comma = i
		case ch == '}' || ch == ']':
			if comma >= 0 {
				out[comma] = ' '
			}
			comma = -1
		default:
			comma = -1
			if ch == '"' {
				inStr = true
			}
		}
	}

	return string(out), nil
}

// ensureSingleJSONValue fails when anything but whitespace follows the first value.
func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errors.New("multiple JSON values are not allowed")
	}
}

// wrapJSONDecodeError prefixes syntax and type errors with their location.
func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// offsetToLineCol maps a 1-based decoder offset to a 1-based line and column.
func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	end := min(int(offset), len(content))
	before := content[:end-1]
	line := strings.Count(before, "\n") + 1
	col := end - strings.LastIndexByte(before, '\n') - 1
	return line, col
}
