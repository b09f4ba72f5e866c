package multilang

import (
	"errors"
	"io"
	"strings"
	"sync"
)

const (
	// terminatorLine ends every envelope on the wire.
	terminatorLine = "end\n"
	// defaultBlankLineWarnEvery is how many consecutive blank lines pass
	// between two warnings.
	defaultBlankLineWarnEvery = 1000
)

// Reader assembles envelopes from a line-oriented input stream. Each
// envelope is its text followed by a line holding only "end". Blank lines
// between envelopes are skipped.
//
// A Reader must not be used from more than one goroutine at a time.
type Reader struct {
	in        *TextReader
	lock      sync.Locker
	codec     Codec
	logger    Logger
	warnEvery int

	blankLines int
}

// NewReader returns a Reader over src. See NewTextReader for the handles
// src may be.
func NewReader(src any, opt ...Option) (*Reader, error) {
	in, err := NewTextReader(src)
	if err != nil {
		return nil, err
	}
	return newReader(in, applyOptions(opt)), nil
}

func newReader(in *TextReader, opts options) *Reader {
	return &Reader{
		in:        in,
		lock:      opts.readLock,
		codec:     opts.codec,
		logger:    opts.logger,
		warnEvery: opts.blankLineWarnEvery,
	}
}

// ReadMessage blocks until one complete envelope has been read and decoded.
//
// End of stream before the terminator returns a *DisconnectError; text
// that cannot be decoded returns a *DecodeError. A partial envelope is
// never returned.
func (r *Reader) ReadMessage() (Envelope, error) {
	var text strings.Builder
	r.blankLines = 0

	for {
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Envelope{}, &DisconnectError{Op: "read", Err: err}
			}
			return Envelope{}, err
		}

		switch line {
		case terminatorLine:
			return r.decode(text.String())
		case "\n":
			r.blankLines++
			if r.blankLines%r.warnEvery == 0 {
				r.logger.Warn("host sent blank lines while a message was expected",
					"blank_lines", r.blankLines)
			}
			continue
		}

		text.WriteString(line[:len(line)-1])
		text.WriteByte('\n')
	}
}

// readLine holds the read guard for exactly one line.
func (r *Reader) readLine() (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.in.ReadLine()
}

func (r *Reader) decode(text string) (Envelope, error) {
	env, err := r.codec.Decode([]byte(text))
	if err != nil {
		r.logger.Error("failed to decode message", "text", text, "error", err)
		return Envelope{}, &DecodeError{Text: text, Err: err}
	}
	return env, nil
}

// Close closes the input stream if it can be closed.
func (r *Reader) Close() error {
	return r.in.Close()
}
