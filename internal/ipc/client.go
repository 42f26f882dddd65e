package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultTimeout bounds one client roundtrip.
const DefaultTimeout = 300 * time.Millisecond

// Client sends commands to the owner listening on Path.
type Client struct {
	Path    string
	Timeout time.Duration
}

func (c Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Send performs one request/response roundtrip under the client deadline.
func (c Client) Send(ctx context.Context, req Request) (Response, error) {
	timeout := c.timeout()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Alive reports whether a responsive owner is listening. A missing socket or
// refused connection means no owner; any other failure is inconclusive.
func (c Client) Alive(ctx context.Context) (bool, error) {
	_, err := c.Send(ctx, Request{Command: CommandStatus})
	if err == nil {
		return true, nil
	}
	if IsNoOwner(err) {
		return false, nil
	}
	return false, fmt.Errorf("ping socket: %w", err)
}

// IsNoOwner reports whether err means nothing is listening on the socket.
func IsNoOwner(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
