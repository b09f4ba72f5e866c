package multilang

import (
	"sync"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect ends the session when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and reads the next message.
	Continue
)

// options holds the configuration shared by Reader, Writer and Conn.
type options struct {
	codec  Codec
	logger Logger

	// readLock and writeLock guard one line read and one message write.
	readLock  sync.Locker
	writeLock sync.Locker

	onMessage func(env Envelope) error
	// onError is called by Conn.Run for read errors other than a disconnect.
	// Returns Disconnect to end the session, Continue to keep reading.
	onError func(error) ErrorAction

	bufferSize         int // size of the send queue
	blankLineWarnEvery int // warn once per this many consecutive blank lines
}

// Option is a function that configures a Reader, Writer or Conn.
type Option func(*options)

// CustomCodecOption returns an Option that sets the envelope codec.
// Defaults to JSONCBORCodec.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets the size of the send queue
// used by Conn.Write, WriteBlocking and WriteTimeout.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// ReadLockOption returns an Option that sets the guard held around every
// line read. Use it when something else reads from the same input.
func ReadLockOption(l sync.Locker) Option {
	return func(o *options) {
		o.readLock = l
	}
}

// WriteLockOption returns an Option that sets the guard held around every
// message write and flush. Use it when something else writes to the same output.
func WriteLockOption(l sync.Locker) Option {
	return func(o *options) {
		o.writeLock = l
	}
}

// BlankLineWarnIntervalOption returns an Option that sets how many
// consecutive blank lines pass between two warnings.
func BlankLineWarnIntervalOption(n int) Option {
	return func(o *options) {
		o.blankLineWarnEvery = n
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a message cannot be read for a reason other
// than the host disconnecting. Return Disconnect to end the session, or
// Continue to read the next message.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// It is required by NewConn and is invoked for each envelope read.
func OnMessageOption(cb func(Envelope) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	setDefaults(&opts)
	return opts
}

// setDefaults fills every unset option except onMessage.
func setDefaults(opts *options) {
	if opts.codec == nil {
		opts.codec = JSONCBORCodec{}
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.readLock == nil {
		opts.readLock = new(sync.Mutex)
	}

	if opts.writeLock == nil {
		opts.writeLock = new(sync.Mutex)
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.blankLineWarnEvery <= 0 {
		opts.blankLineWarnEvery = defaultBlankLineWarnEvery
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}
}
