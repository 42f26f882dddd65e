// Package app wires the voxtrip command line to the session owner and its
// collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rbright/voxtrip/internal/audio"
	"github.com/rbright/voxtrip/internal/cli"
	"github.com/rbright/voxtrip/internal/config"
	"github.com/rbright/voxtrip/internal/doctor"
	"github.com/rbright/voxtrip/internal/ipc"
	"github.com/rbright/voxtrip/internal/logging"
	"github.com/rbright/voxtrip/internal/session"
	"github.com/rbright/voxtrip/internal/version"
)

const (
	binaryName     = "voxtrip"
	forwardTimeout = 220 * time.Millisecond
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	socketPath := ipc.RuntimeSocketPath()
	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, doctor.DefaultChecks())
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx, socketPath)
	case cli.CommandToggle:
		return r.commandToggle(ctx, socketPath, cfgLoaded.Config, logger)
	default:
		if parsed.Command.Session() {
			return r.forwardOrFail(ctx, socketPath, string(parsed.Command))
		}
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context, socketPath string) int {
	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	if text := strings.TrimSpace(resp.Transcript); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, socketPath string, command string) int {
	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active voxtrip session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandToggle forwards to a running owner, or becomes the owner.
func (r Runner) commandToggle(ctx context.Context, socketPath string, cfg config.Config, logger *slog.Logger) int {
	if code, handled := r.forwardToggle(ctx, socketPath); handled {
		return code
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{PingTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			if code, handled := r.forwardToggle(ctx, socketPath); handled {
				return code
			}
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	owner, err := newOwner(ctx, cfg, r.Stdout, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer owner.close(logger)

	result, err := owner.run(ctx, listener, cfg.Metrics.Listen)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}

	logSessionResult(logger, result)
	return r.reportResult(result)
}

func (r Runner) forwardToggle(ctx context.Context, socketPath string) (int, bool) {
	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandToggle)
	if !handled {
		return 0, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, true
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0, true
}

// reportResult prints how the owned session ended and picks the exit code.
func (r Runner) reportResult(result session.Result) int {
	switch {
	case session.IsNoSpeech(result.Err):
		fmt.Fprintln(r.Stdout, "not recognized")
		return 0
	case result.Cancelled:
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	case result.Dismissed:
		fmt.Fprintln(r.Stdout, "dismissed")
		return 0
	case result.Err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	default:
		return 0
	}
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"state", result.State,
		"outcome", result.Outcome(),
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"frames_sent", result.FramesSent,
		"frames_dropped", result.FramesDropped,
		"bytes_sent", result.BytesSent,
		"transcript_length", len(result.Transcript),
		"finalize_latency_ms", result.FinalizeLatency.Milliseconds(),
	}
	if result.RemoteError != "" {
		fields = append(fields, "remote_error", result.RemoteError)
	}

	if result.Err != nil && !session.IsNoSpeech(result.Err) {
		logger.Error("session failed", append(fields, "kind", session.Kind(result.Err), "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

// tryForward sends command to a running owner. handled is false only when no
// owner is listening.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	client := ipc.Client{Path: socketPath, Timeout: forwardTimeout}
	resp, err := client.Send(ctx, ipc.Request{Command: command})
	if err == nil {
		return resp, true, resp.Err()
	}
	if ipc.IsNoOwner(err) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
