package multilang

import (
	"errors"
	"fmt"
)

// Errors returned by the protocol layer.
var (
	// ErrRemoteDisconnected is matched (via errors.Is) by every error that
	// means the host went away: end-of-stream while reading, or a failed
	// write/flush.
	ErrRemoteDisconnected = errors.New("multilang: remote end disconnected")
	// ErrInvalidUTF8 is returned when a line read from, or text written to,
	// a stream is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("multilang: invalid utf-8")
	// ErrUnsupportedStream is returned when a stream handle is neither a
	// reader/writer nor exposes a file descriptor.
	ErrUnsupportedStream = errors.New("multilang: unsupported stream handle")
	// ErrNotContainer is returned when an envelope is neither an object nor an array.
	ErrNotContainer = errors.New("multilang: envelope is not an object or array")
	// ErrNewlineInEnvelope is returned when encoded envelope text would
	// contain a literal newline and so break framing.
	ErrNewlineInEnvelope = errors.New("multilang: envelope text contains a newline")
)

// DisconnectError reports that the host end of a stream is gone.
// It matches ErrRemoteDisconnected as well as the underlying cause.
type DisconnectError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *DisconnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("multilang: %s: remote end disconnected", e.Op)
	}
	return fmt.Sprintf("multilang: %s: remote end disconnected: %v", e.Op, e.Err)
}

func (e *DisconnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemoteDisconnected}
	}
	return []error{ErrRemoteDisconnected, e.Err}
}

// DecodeError is returned by ReadMessage when a complete envelope was
// framed but its text, or the payload inside it, could not be parsed.
// Text holds the raw accumulated envelope text.
type DecodeError struct {
	Text string
	Err  error
}

func (e *DecodeError) Error() string {
	return "multilang: decode message: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError describes an outgoing envelope that could not be rendered
// to text. SendMessage logs it and does not return it.
type EncodeError struct {
	Envelope Envelope
	Err      error
}

func (e *EncodeError) Error() string {
	return "multilang: encode message: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error { return e.Err }
