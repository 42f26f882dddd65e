package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when a live owner holds the socket.
var ErrAlreadyRunning = errors.New("voxtrip session already running")

const socketName = "voxtrip.sock"

// RuntimeSocketPath returns the owner socket path under XDG_RUNTIME_DIR, or a
// per-user directory in the system temp dir when it is unset.
func RuntimeSocketPath() string {
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, socketName)
	}
	return filepath.Join(os.TempDir(), "voxtrip-"+strconv.Itoa(os.Getuid()), socketName)
}

// AcquireOptions controls stale-socket recovery.
type AcquireOptions struct {
	PingTimeout time.Duration
	Retries     int
	// Rescue runs after a stale socket is removed.
	Rescue func(context.Context) error
}

// Acquire listens on path, making this process the session owner. A socket
// left behind by a dead owner is removed; a responsive one yields
// ErrAlreadyRunning. An inconclusive ping never unlinks the socket.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}
	client := Client{Path: path, Timeout: opts.PingTimeout}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, pingErr := client.Alive(ctx)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if pingErr != nil {
			return nil, fmt.Errorf("ping existing socket %s: %w", path, pingErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}
		if opts.Rescue != nil {
			_ = opts.Rescue(ctx)
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
}
