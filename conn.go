// Package multilang implements the worker side of a line-framed
// multi-language protocol: JSON envelopes terminated by a line holding
// "end", with the application payload carried as CBOR inside the
// envelope.
//
// Reader and Writer implement the two directions; Conn pairs them into a
// session with read and write loops, and Server runs sessions for hosts
// that connect over TCP instead of stdin/stdout.
package multilang

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Errors returned by session operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed session.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the send queue is full and cannot accept more envelopes.
	// It means the host is not consuming messages fast enough.
	ErrBufferFull = errors.New("send buffer full")
)

// defaultBufferSize is the default size of the send queue.
const defaultBufferSize = 1

// Conn is one worker session with a host: a Reader on the input stream
// and a Writer on the output stream. Input and output may be the same
// transport, such as a net.Conn.
type Conn struct {
	reader *Reader
	writer *Writer
	logger Logger

	opts options

	sendMsg chan Envelope
	closed  atomic.Bool

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc
}

// NewConn creates a session reading envelopes from in and writing them to
// out. See NewTextReader and NewTextWriter for the accepted handles.
// Returns an error if OnMessageOption is missing or a handle is unsupported.
func NewConn(in, out any, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	tr, err := NewTextReader(in)
	if err != nil {
		return nil, err
	}
	tw, err := NewTextWriter(out)
	if err != nil {
		return nil, err
	}

	return &Conn{
		reader:  newReader(tr, opts),
		writer:  newWriter(tw, opts),
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan Envelope, opts.bufferSize),
	}, nil
}

// checkOptions validates and sets default values for session options.
func checkOptions(opts *options) error {
	setDefaults(opts)

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	return nil
}

// ReadMessage reads one envelope. Do not call it while Run is active.
func (c *Conn) ReadMessage() (Envelope, error) {
	return c.reader.ReadMessage()
}

// SendMessage writes one envelope synchronously. It is safe to call while
// Run is active; writes are serialized by the write guard.
func (c *Conn) SendMessage(env Envelope) error {
	return c.writer.SendMessage(env)
}

// Run starts the session's read and write loops.
// It blocks until the host disconnects, a handler fails or the context is
// canceled. The streams are closed when Run returns, which is also how a
// read blocked on a silent host is released.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("session started")
	c.logger.Debug("session options",
		"buffer_size", c.opts.bufferSize,
		"blank_line_warn_every", c.opts.blankLineWarnEvery,
		"input", c.reader.in.Kind(),
		"output", c.writer.out.Kind())

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()

	switch {
	case err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrConnectionClosed):
		c.logger.Info("session closed")
	case errors.Is(err, ErrRemoteDisconnected):
		c.logger.Info("session closed by host", "error", err)
	default:
		c.logger.Info("session closed with error", "error", err)
	}

	return err
}

// Close ends the session and closes its streams.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Load() {
		return nil
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.closeConn()
}

// IsClosed returns true if the session has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues an envelope for the write loop without blocking.
//
// Returns:
//   - nil: envelope was queued (not yet sent)
//   - ErrBufferFull: send queue is full, envelope was NOT queued
//   - ErrConnectionClosed: session is closed
func (c *Conn) Write(env Envelope) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- env:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues an envelope, blocking until there is room in the
// send queue or the context is canceled.
func (c *Conn) WriteBlocking(ctx context.Context, env Envelope) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues an envelope, waiting at most timeout for room in
// the send queue. Returns ErrBufferFull when the timeout expires.
func (c *Conn) WriteTimeout(env Envelope, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- env:
		return nil
	case <-time.After(timeout):
		return ErrBufferFull
	}
}

// readLoop reads envelopes and hands them to the message handler.
// A disconnect always ends the loop; other read errors go through onError.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		env, err := c.reader.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.closed.Load() {
				return ErrConnectionClosed
			}
			c.logger.Debug("read error", "error", err)
			if errors.Is(err, ErrRemoteDisconnected) || c.opts.onError(err) == Disconnect {
				return err
			}
			continue
		}

		if err = c.opts.onMessage(env); err != nil {
			return err
		}
	}
}

// writeLoop sends queued envelopes until the context is canceled or the
// host goes away.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-c.sendMsg:
			if err := c.writer.SendMessage(env); err != nil {
				c.logger.Debug("write error", "error", err)
				return err
			}
		}
	}
}

// closeConn marks the session as closed and closes both streams once.
// Closing an already closed shared transport is not an error.
func (c *Conn) closeConn() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.reader.Close()
	if werr := c.writer.Close(); werr != nil && !isClosedErr(werr) && err == nil {
		err = werr
	}
	return err
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}
