package multilang

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Handler handles envelopes arriving on host sessions.
type Handler interface {
	// HandleMessage is called for each envelope read from conn, in order.
	// Returning an error ends that session.
	HandleMessage(conn *Conn, env Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn *Conn, env Envelope) error

// HandleMessage calls f(conn, env).
func (f HandlerFunc) HandleMessage(conn *Conn, env Envelope) error {
	return f(conn, env)
}

// Server accepts host connections over TCP and runs one session per
// connection, with the socket serving as both input and output stream.
type Server struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration
	connOpts        []Option

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server and, unless
// overridden by ServerConnOption, for its sessions.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerConnOption sets the options every session is created with.
// OnMessageOption is ignored; envelopes always go to the Handler.
func ServerConnOption(opts ...Option) ServerOption {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server will wait up to this duration
// before closing the listener. Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// New creates a new server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:    listener,
		logger:      slog.Default(),
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts host connections and runs a session for each of them.
// It blocks until the context is canceled or an unrecoverable error
// occurs. Canceling the context also ends every running session.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)
		go s.serveConn(ctx, conn, handler)
	}
}

// serveConn runs one session over conn until it ends.
func (s *Server) serveConn(ctx context.Context, conn *net.TCPConn, handler Handler) {
	var session *Conn

	opts := make([]Option, 0, len(s.connOpts)+2)
	opts = append(opts, LoggerOption(s.logger))
	opts = append(opts, s.connOpts...)
	opts = append(opts, OnMessageOption(func(env Envelope) error {
		return handler.HandleMessage(session, env)
	}))

	session, err := NewConn(conn, conn, opts...)
	if err != nil {
		s.logger.Error("failed to create session", "remote_addr", conn.RemoteAddr(), "error", err)
		_ = conn.Close()
		return
	}

	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("session ended", "remote_addr", conn.RemoteAddr(), "error", err)
	}
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
