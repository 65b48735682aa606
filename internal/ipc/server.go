package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	maxRequestBytes    = 4 << 10
	defaultReadTimeout = 2 * time.Second
)

// Handler applies one hotkey command to the running session.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server answers one newline-delimited JSON request per connection.
type Server struct {
	Handler     Handler
	Logger      *slog.Logger
	ReadTimeout time.Duration
}

// Serve accepts clients until ctx is cancelled or the listener closes, then
// waits for in-flight commands to finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

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

			req, resp := s.serveConn(ctx, conn)
			if !resp.OK {
				logger.Warn("ipc command rejected", "command", req.Command, "error", resp.Error)
			} else {
				logger.Debug("ipc command", "command", req.Command, "state", resp.State)
			}
			_ = json.NewEncoder(conn).Encode(resp)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) (Request, Response) {
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	line, err := bufio.NewReader(io.LimitReader(conn, maxRequestBytes)).ReadBytes('\n')
	if err != nil {
		return Request{}, Response{OK: false, Error: fmt.Sprintf("read request: %v", err)}
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)}
	}
	if err := req.Validate(); err != nil {
		return req, Response{OK: false, Error: err.Error()}
	}

	// Commands may block on uploads and saves; only the read is bounded.
	_ = conn.SetReadDeadline(time.Time{})
	return req, s.Handler.Handle(ctx, req)
}
