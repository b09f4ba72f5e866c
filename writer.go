package multilang

import (
	"bytes"
	"errors"
	"sync"
	"unicode/utf8"
)

// Writer emits envelopes to a line-oriented output stream, one
// terminated message per call.
type Writer struct {
	out    *TextWriter
	lock   sync.Locker
	codec  Codec
	logger Logger
}

// NewWriter returns a Writer over dst. See NewTextWriter for the handles
// dst may be.
func NewWriter(dst any, opt ...Option) (*Writer, error) {
	out, err := NewTextWriter(dst)
	if err != nil {
		return nil, err
	}
	return newWriter(out, applyOptions(opt)), nil
}

func newWriter(out *TextWriter, opts options) *Writer {
	return &Writer{
		out:    out,
		lock:   opts.writeLock,
		codec:  opts.codec,
		logger: opts.logger,
	}
}

// SendMessage encodes env, appends the terminator and writes and flushes
// it as one unit.
//
// A failed write or flush returns a *DisconnectError. An envelope that
// cannot be encoded is logged at error level and dropped: SendMessage
// returns nil and writes nothing.
func (w *Writer) SendMessage(env Envelope) error {
	msg, err := w.encode(env)
	if err != nil {
		w.logger.Error("failed to send message", "envelope", env, "error", err)
		return nil
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if err := w.out.WriteString(msg); err != nil {
		return &DisconnectError{Op: "write", Err: err}
	}
	if err := w.out.Flush(); err != nil {
		return &DisconnectError{Op: "write", Err: err}
	}
	return nil
}

func (w *Writer) encode(env Envelope) (string, error) {
	text, err := w.codec.Encode(env)
	if err != nil {
		var encErr *EncodeError
		if errors.As(err, &encErr) {
			return "", err
		}
		return "", &EncodeError{Envelope: env, Err: err}
	}
	if bytes.IndexByte(text, '\n') >= 0 {
		return "", &EncodeError{Envelope: env, Err: ErrNewlineInEnvelope}
	}
	if !utf8.Valid(text) {
		return "", &EncodeError{Envelope: env, Err: ErrInvalidUTF8}
	}
	return string(text) + "\n" + terminatorLine, nil
}

// Close closes the output stream if it can be closed.
func (w *Writer) Close() error {
	return w.out.Close()
}
