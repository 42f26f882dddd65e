package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	defaultReadTimeout = 2 * time.Second
	maxRequestBytes    = 4096
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server answers commands on a listener owned by the session process.
type Server struct {
	Handler     Handler
	Logger      *slog.Logger
	ReadTimeout time.Duration
}

// Serve accepts clients until ctx is cancelled or the listener closes. It
// waits for in-flight requests before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	resp := s.respond(ctx, conn)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log(slog.LevelDebug, "ipc write response failed", "error", err.Error())
	}
}

func (s *Server) respond(ctx context.Context, conn net.Conn) Response {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxRequestBytes)
	if !scanner.Scan() {
		err := scanner.Err()
		if err == nil {
			err = errors.New("connection closed before request")
		}
		s.log(slog.LevelWarn, "ipc read request failed", "error", err.Error())
		return Response{OK: false, Error: fmt.Sprintf("read request: %v", err)}
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		s.log(slog.LevelWarn, "ipc decode request failed", "error", err.Error())
		return Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)}
	}

	resp := s.Handler.Handle(ctx, req)
	s.log(slog.LevelDebug, "ipc command handled", "command", req.Command, "ok", resp.OK, "state", resp.State)
	return resp
}

func (s *Server) log(level slog.Level, msg string, args ...any) {
	if s.Logger == nil {
		return
	}
	s.Logger.Log(context.Background(), level, msg, args...)
}
