// Package output applies the side effects of a confirmed transcript: field
// extraction, the fill command, and the clipboard.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rbright/voxtrip/internal/config"
	"github.com/rbright/voxtrip/internal/extract"
)

const (
	clipboardTimeout = 2 * time.Second
	fillTimeout      = 10 * time.Second
)

// Extractor turns transcript text into structured fields.
type Extractor interface {
	Extract(ctx context.Context, text string) (extract.Result, error)
}

// Committer applies transcript output side effects.
type Committer struct {
	config    config.Config
	extractor Extractor
	stdout    io.Writer
	logger    *slog.Logger
}

// NewCommitter constructs a transcript committer from runtime config. A nil
// extractor skips extraction and the fill command; a nil stdout uses os.Stdout.
func NewCommitter(cfg config.Config, extractor Extractor, stdout io.Writer, logger *slog.Logger) *Committer {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Committer{config: cfg, extractor: extractor, stdout: stdout, logger: logger}
}

// NewExtractor builds the HTTP extractor for cfg, or nil when no URL is set.
func NewExtractor(cfg config.ExtractConfig) (Extractor, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil
	}
	client, err := extract.NewClient(extract.Config{
		URL:     cfg.URL,
		Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Commit extracts fields from transcript, prints them, feeds them to the fill
// command, and finally copies the transcript to the clipboard. Empty text is
// never committed.
func (c *Committer) Commit(ctx context.Context, transcript string) error {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil
	}

	if c.extractor != nil {
		if err := c.commitFields(ctx, transcript); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintln(c.stdout, transcript); err != nil {
		return fmt.Errorf("print transcript: %w", err)
	}

	if len(c.config.Clipboard.Argv) == 0 {
		return nil
	}
	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(clipboardCtx, c.config.Clipboard.Argv, transcript); err != nil {
		// The extracted fields already reached stdout and the fill command.
		c.log("clipboard dispatch failed", err)
		if c.extractor == nil {
			return fmt.Errorf("set clipboard: %w", err)
		}
	}
	return nil
}

func (c *Committer) commitFields(ctx context.Context, transcript string) error {
	res, err := c.extractor.Extract(ctx, transcript)
	if err != nil {
		return fmt.Errorf("extract fields: %w", err)
	}

	payload, err := json.MarshalIndent(res.Fields, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if _, err := fmt.Fprintf(c.stdout, "%s\n", payload); err != nil {
		return fmt.Errorf("print fields: %w", err)
	}
	if c.logger != nil {
		c.logger.Info("fields extracted", "fields", res.Keys())
	}

	if len(c.config.Fill.Argv) == 0 {
		return nil
	}
	fillCtx, cancel := context.WithTimeout(ctx, fillTimeout)
	defer cancel()
	if err := runCommandWithInput(fillCtx, c.config.Fill.Argv, string(payload)); err != nil {
		return fmt.Errorf("run fill command: %w", err)
	}
	return nil
}

func (c *Committer) log(message string, err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Error(message, "error", err.Error())
}
