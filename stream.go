package multilang

import (
	"bufio"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// StreamKind identifies how a raw handle was wrapped into a text stream.
type StreamKind int

const (
	// StreamGeneric wraps a plain io.Reader or io.Writer in a bufio buffer.
	StreamGeneric StreamKind = iota
	// StreamBuffered reuses a handle that is already a *bufio.Reader or *bufio.Writer.
	StreamBuffered
	// StreamDescriptor reopens a handle that only exposes a file descriptor.
	StreamDescriptor
)

func (k StreamKind) String() string {
	switch k {
	case StreamBuffered:
		return "buffered"
	case StreamDescriptor:
		return "descriptor"
	default:
		return "generic"
	}
}

// descriptor is implemented by handles that expose an OS file descriptor.
type descriptor interface {
	Fd() uintptr
}

// flusher is implemented by writers that buffer internally.
type flusher interface {
	Flush() error
}

// TextReader reads UTF-8 text from a raw handle one line at a time.
type TextReader struct {
	r      *bufio.Reader
	closer io.Closer
	kind   StreamKind

	// pending holds lines split off a read that contained a lone "\r".
	pending []string
}

// NewTextReader wraps src for line-oriented UTF-8 reading. The wrapping
// strategy is picked once from what src can do:
//   - *bufio.Reader is used as is
//   - any other io.Reader gets a bufio.Reader on top
//   - a handle with only Fd() is reopened with os.NewFile
//
// Any other handle yields ErrUnsupportedStream.
func NewTextReader(src any) (*TextReader, error) {
	switch s := src.(type) {
	case *bufio.Reader:
		return &TextReader{r: s, closer: asCloser(s), kind: StreamBuffered}, nil
	case io.Reader:
		return &TextReader{r: bufio.NewReader(s), closer: asCloser(s), kind: StreamGeneric}, nil
	case descriptor:
		f := os.NewFile(s.Fd(), "multilang-input")
		if f == nil {
			return nil, errors.Wrapf(ErrUnsupportedStream, "invalid descriptor %d", s.Fd())
		}
		return &TextReader{r: bufio.NewReader(f), closer: f, kind: StreamDescriptor}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedStream, "%T", src)
}

// Kind reports the wrapping strategy chosen at construction.
func (t *TextReader) Kind() StreamKind { return t.kind }

// ReadLine returns the next line with its terminator translated to "\n".
// "\n", "\r\n" and a lone "\r" all end a line. At end of stream it
// returns whatever was left (usually "") together with io.EOF. Errors from
// the underlying handle are returned unchanged.
//
// A line ended by a lone "\r" is only returned once the next "\n" or the
// end of stream has been read.
func (t *TextReader) ReadLine() (string, error) {
	if len(t.pending) > 0 {
		line := t.pending[0]
		t.pending = t.pending[1:]
		return line, nil
	}

	line, err := t.r.ReadString('\n')
	if err == io.EOF && strings.HasSuffix(line, "\r") {
		err = nil
	}
	if err != nil {
		return line, err
	}
	if !utf8.ValidString(line) {
		return "", errors.WithStack(ErrInvalidUTF8)
	}

	lines := splitLines(line)
	t.pending = lines[1:]
	return lines[0], nil
}

// splitLines splits s, which ends with "\n" or "\r", into lines each
// ending with "\n".
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !strings.Contains(s, "\r") {
		return []string{s}
	}

	var lines []string
	for s != "" {
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i]+"\n")
		s = s[i+1:]
	}
	return lines
}

// Close closes the underlying handle if it can be closed.
func (t *TextReader) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// TextWriter writes UTF-8 text to a raw handle and flushes on demand.
type TextWriter struct {
	w      *bufio.Writer
	next   flusher
	closer io.Closer
	kind   StreamKind
}

// NewTextWriter wraps dst for UTF-8 writing, probing it the same way
// NewTextReader probes its source.
func NewTextWriter(dst any) (*TextWriter, error) {
	switch d := dst.(type) {
	case *bufio.Writer:
		return &TextWriter{w: d, closer: asCloser(d), kind: StreamBuffered}, nil
	case io.Writer:
		tw := &TextWriter{w: bufio.NewWriter(d), closer: asCloser(d), kind: StreamGeneric}
		if f, ok := d.(flusher); ok {
			tw.next = f
		}
		return tw, nil
	case descriptor:
		f := os.NewFile(d.Fd(), "multilang-output")
		if f == nil {
			return nil, errors.Wrapf(ErrUnsupportedStream, "invalid descriptor %d", d.Fd())
		}
		return &TextWriter{w: bufio.NewWriter(f), closer: f, kind: StreamDescriptor}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedStream, "%T", dst)
}

// Kind reports the wrapping strategy chosen at construction.
func (t *TextWriter) Kind() StreamKind { return t.kind }

// WriteString buffers s. Nothing reaches the handle before Flush unless
// the buffer fills up.
func (t *TextWriter) WriteString(s string) error {
	if !utf8.ValidString(s) {
		return errors.WithStack(ErrInvalidUTF8)
	}
	_, err := t.w.WriteString(s)
	return err
}

// Flush pushes buffered text to the handle, and flushes the handle too
// when it buffers on its own.
func (t *TextWriter) Flush() error {
	if err := t.w.Flush(); err != nil {
		return err
	}
	if t.next != nil {
		return t.next.Flush()
	}
	return nil
}

// Close closes the underlying handle if it can be closed.
func (t *TextWriter) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

func asCloser(v any) io.Closer {
	if c, ok := v.(io.Closer); ok {
		return c
	}
	return nil
}
