package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/al-bashkir/securelog/internal/formatter"
	"github.com/al-bashkir/securelog/internal/logsanitize"
	"github.com/al-bashkir/securelog/internal/wire"
)

const (
	// DefaultMaxMessageBytes caps a single request
	DefaultMaxMessageBytes = 1 << 20
	// readTimeout bounds how long a producer may take to send its request
	readTimeout = 10 * time.Second
)

// EventsHandler receives decoded events and reports how many were accepted
type EventsHandler func(ctx context.Context, events []formatter.LogEvent) (int, error)

// Server is the IPC server that listens on a Unix socket for log events
type Server struct {
	socketPath string
	listener   net.Listener
	handler    EventsHandler
	maxBytes   int64
	wg         sync.WaitGroup
	stopChan   chan struct{}
	mu         sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(socketPath string, handler EventsHandler) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		maxBytes:   DefaultMaxMessageBytes,
		stopChan:   make(chan struct{}),
	}
}

// SetMaxMessageBytes sets the request size cap. Must be called before Start.
func (s *Server) SetMaxMessageBytes(n int64) {
	if n > 0 {
		s.maxBytes = n
	}
}

// Start starts the IPC server
func (s *Server) Start(ctx context.Context) error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove old socket if it exists
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	// Owner and group only. Producers run in the daemon's group.
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("IPC server started", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				slog.Error("failed to accept connection", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection reads one request and writes one response
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		slog.Error("failed to set read deadline", "error", err)
		return
	}

	var req Request
	dec := json.NewDecoder(io.LimitReader(conn, s.maxBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			slog.Warn("request truncated or too large", "max_bytes", s.maxBytes)
			s.sendResponse(conn, &Response{Status: StatusError, Error: "request too large or truncated"})
			return
		}
		slog.Warn("failed to decode request", "error", logsanitize.Sanitize(err.Error()))
		s.sendResponse(conn, &Response{Status: StatusError, Error: "invalid request format"})
		return
	}

	if req.Type != MessageTypeLogEvents {
		slog.Warn("invalid request type", "type", logsanitize.Sanitize(string(req.Type)))
		s.sendResponse(conn, &Response{Status: StatusError, Error: "invalid request type"})
		return
	}

	events, err := wire.ParseEvents(req.Events)
	if err != nil {
		slog.Warn("rejected events", "error", logsanitize.Sanitize(err.Error()))
		s.sendResponse(conn, &Response{Status: StatusError, Error: err.Error()})
		return
	}

	accepted, err := s.handler(ctx, events)
	if err != nil {
		slog.Error("handler error", "error", err, "accepted", accepted)
		s.sendResponse(conn, &Response{Status: StatusError, Accepted: accepted, Error: err.Error()})
		return
	}

	s.sendResponse(conn, &Response{Status: StatusOK, Accepted: accepted})
	slog.Debug("events accepted", "count", accepted, "transport", "unix")
}

// sendResponse writes resp as a single JSON line
func (s *Server) sendResponse(conn net.Conn, resp *Response) {
	resp.Type = MessageTypeAck
	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		slog.Error("failed to send response", "error", err)
	}
}

// Stop stops the IPC server gracefully
func (s *Server) Stop() error {
	slog.Info("stopping IPC server")

	close(s.stopChan)

	var closeErr error
	s.mu.Lock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close listener: %w", err)
		}
	}
	s.mu.Unlock()

	// Wait for all connections to finish
	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove socket file", "error", err)
	}

	slog.Info("IPC server stopped")
	return closeErr
}
