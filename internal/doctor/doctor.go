// Package doctor runs readiness diagnostics for config, audio, the recognition
// relay, the extraction endpoint, and the notification backend.
package doctor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/voxtrip/internal/audio"
	"github.com/rbright/voxtrip/internal/config"
	"github.com/rbright/voxtrip/internal/hypr"
	"github.com/rbright/voxtrip/internal/stream"
)

const checkTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Checks are the live tests Run performs. Tests replace them.
type Checks struct {
	Audio  func(context.Context, config.AudioConfig) Check
	Relay  func(context.Context, config.StreamConfig) Check
	Notify func(context.Context, config.IndicatorConfig) Check
}

// DefaultChecks talk to PulseAudio, the relay, and the notification backend.
func DefaultChecks() Checks {
	return Checks{Audio: checkAudioSelection, Relay: checkRelay, Notify: checkNotifyBackend}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, live Checks) Report {
	cfg := loaded.Config
	checks := []Check{configCheck(loaded)}

	if live.Notify != nil {
		checks = append(checks, live.Notify(ctx, cfg.Indicator))
	}
	if cfg.Clipboard.Raw != "" {
		checks = append(checks, checkCommand(cfg.Clipboard.Argv, "clipboard_cmd"))
	}
	if cfg.Fill.Raw != "" {
		checks = append(checks, checkCommand(cfg.Fill.Argv, "fill_cmd"))
	}
	if live.Audio != nil {
		checks = append(checks, live.Audio(ctx, cfg.Audio))
	}
	if live.Relay != nil {
		checks = append(checks, live.Relay(ctx, cfg.Stream))
	}
	if strings.TrimSpace(cfg.Extract.URL) != "" {
		checks = append(checks, checkExtract(ctx, cfg.Extract))
	}

	return Report{Checks: checks}
}

func configCheck(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if n := len(loaded.Warnings); n > 0 {
		message += fmt.Sprintf(" (%d warnings)", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.AudioConfig) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %s", audio.DescribeDevice(selection.Device))
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRelay opens and immediately closes a relay websocket.
func checkRelay(ctx context.Context, cfg config.StreamConfig) Check {
	conn, err := stream.Dial(ctx, stream.Config{
		URL:         cfg.URL,
		Token:       cfg.Token,
		DialTimeout: checkTimeout,
	})
	if err != nil {
		return Check{Name: "stream.relay", Pass: false, Message: err.Error()}
	}
	_ = conn.Close()
	return Check{Name: "stream.relay", Pass: true, Message: "websocket accepted"}
}

// checkNotifyBackend verifies the configured indicator backend can be reached.
func checkNotifyBackend(ctx context.Context, cfg config.IndicatorConfig) Check {
	const name = "indicator.backend"
	if !cfg.Enable {
		return Check{Name: name, Pass: true, Message: "indicator disabled"}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "none":
		return Check{Name: name, Pass: true, Message: "visual indicator off"}
	case "desktop":
		check := checkBinary("busctl", "desktop notifications use busctl")
		check.Name = name
		return check
	default:
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		version, err := hypr.Version(checkCtx)
		if err != nil {
			return Check{Name: name, Pass: false, Message: err.Error()}
		}
		return Check{Name: name, Pass: true, Message: "hyprland " + version}
	}
}

// checkExtract posts an empty request; the service answering with its
// missing-text error proves the route is live.
func checkExtract(ctx context.Context, cfg config.ExtractConfig) Check {
	const name = "extract.endpoint"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodPost, cfg.URL, bytes.NewReader([]byte(`{"text":""}`)))
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode/100 == 2, resp.StatusCode == http.StatusBadRequest:
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.URL)}
	default:
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, cfg.URL)}
	}
}
