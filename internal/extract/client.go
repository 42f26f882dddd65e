// Package extract posts a confirmed transcript to the travel-request
// extraction endpoint and returns the structured fields it recognized.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds one extraction round-trip.
const DefaultTimeout = 60 * time.Second

const maxResponseBytes = 1 << 20

// ErrEmptyText is returned when Extract is called without text.
var ErrEmptyText = errors.New("extract: empty text")

// Error is an error reported by the extraction service in its JSON body.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return "extraction service: " + e.Message
	}
	return fmt.Sprintf("extraction service (%d): %s", e.StatusCode, e.Message)
}

// Result holds the fields the service extracted. Null and empty values are
// dropped, so every key present carries a usable value.
type Result struct {
	Fields map[string]any
}

// Keys returns the field names in sorted order.
func (r Result) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for key := range r.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Config configures a Client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client talks to one extraction endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

type request struct {
	Text string `json:"text"`
}

type response struct {
	ExtractedInfo map[string]any `json:"extracted_info"`
	Error         *string        `json:"error"`
}

// NewClient creates a client for cfg.URL.
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("extract url cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Extract sends text to the service and decodes its extracted fields.
func (c *Client) Extract(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyText
	}

	body, err := json.Marshal(request{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("encode extract request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post extract request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read extract response: %w", err)
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode/100 != 2 {
			return Result{}, &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return Result{}, fmt.Errorf("decode extract response: %w", err)
	}
	if decoded.Error != nil {
		status := resp.StatusCode
		if status/100 == 2 {
			status = 0
		}
		return Result{}, &Error{StatusCode: status, Message: *decoded.Error}
	}
	if resp.StatusCode/100 != 2 {
		return Result{}, &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if decoded.ExtractedInfo == nil {
		return Result{}, fmt.Errorf("decode extract response: missing extracted_info")
	}

	return Result{Fields: compact(decoded.ExtractedInfo)}, nil
}

// compact drops null values and blank strings.
func compact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
		case []any:
			if len(v) == 0 {
				continue
			}
		case map[string]any:
			if len(v) == 0 {
				continue
			}
		}
		out[key] = value
	}
	return out
}
