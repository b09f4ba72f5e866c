package multilang

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// errReader fails every read with err.
type errReader struct {
	err error
}

func (r errReader) Read(p []byte) (int, error) {
	return 0, r.err
}

// flushWriter records writes and flushes, and can fail either.
type flushWriter struct {
	buf      bytes.Buffer
	flushes  int
	writeErr error
	flushErr error
}

func (w *flushWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *flushWriter) Flush() error {
	w.flushes++
	return w.flushErr
}

func TestNewTextReader_Generic(t *testing.T) {
	tr, err := NewTextReader(strings.NewReader("first\n\nlast"))
	if err != nil {
		t.Fatalf("NewTextReader failed: %v", err)
	}
	if tr.Kind() != StreamGeneric {
		t.Errorf("kind = %v, want %v", tr.Kind(), StreamGeneric)
	}

	want := []string{"first\n", "\n"}
	for _, w := range want {
		line, err := tr.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if line != w {
			t.Errorf("line = %q, want %q", line, w)
		}
	}

	line, err := tr.ReadLine()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if line != "last" {
		t.Errorf("line = %q, want %q", line, "last")
	}

	line, err = tr.ReadLine()
	if err != io.EOF || line != "" {
		t.Errorf("ReadLine at end = (%q, %v), want (\"\", io.EOF)", line, err)
	}
}

func TestNewTextReader_Buffered(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("x\n"))
	tr, err := NewTextReader(br)
	if err != nil {
		t.Fatalf("NewTextReader failed: %v", err)
	}
	if tr.Kind() != StreamBuffered {
		t.Errorf("kind = %v, want %v", tr.Kind(), StreamBuffered)
	}
	if tr.r != br {
		t.Error("buffered reader was wrapped again")
	}
}

func TestNewTextReader_Unsupported(t *testing.T) {
	_, err := NewTextReader(42)
	if !errors.Is(err, ErrUnsupportedStream) {
		t.Errorf("expected ErrUnsupportedStream, got %v", err)
	}
}

func TestTextReader_UniversalNewlines(t *testing.T) {
	tr, err := NewTextReader(strings.NewReader("crlf\r\n\r\nmac\rmixed\r\rlf\nlast\r"))
	if err != nil {
		t.Fatalf("NewTextReader failed: %v", err)
	}

	want := []string{"crlf\n", "\n", "mac\n", "mixed\n", "\n", "lf\n", "last\n"}
	for _, w := range want {
		line, err := tr.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if line != w {
			t.Errorf("line = %q, want %q", line, w)
		}
	}

	if line, err := tr.ReadLine(); err != io.EOF || line != "" {
		t.Errorf("ReadLine at end = (%q, %v), want (\"\", io.EOF)", line, err)
	}
}

func TestTextReader_InvalidUTF8(t *testing.T) {
	tr, err := NewTextReader(strings.NewReader("\xfc\x89\n"))
	if err != nil {
		t.Fatalf("NewTextReader failed: %v", err)
	}
	if _, err := tr.ReadLine(); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestTextReader_ErrorUnchanged(t *testing.T) {
	readErr := errors.New("broken pipe")
	tr, err := NewTextReader(errReader{err: readErr})
	if err != nil {
		t.Fatalf("NewTextReader failed: %v", err)
	}
	if _, err := tr.ReadLine(); err != readErr {
		t.Errorf("expected %v, got %v", readErr, err)
	}
}

func TestNewTextWriter_Generic(t *testing.T) {
	var buf bytes.Buffer
	tw, err := NewTextWriter(&buf)
	if err != nil {
		t.Fatalf("NewTextWriter failed: %v", err)
	}
	if tw.Kind() != StreamGeneric {
		t.Errorf("kind = %v, want %v", tw.Kind(), StreamGeneric)
	}

	if err := tw.WriteString("héllo\n"); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Error("text reached the handle before Flush")
	}
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := buf.String(); got != "héllo\n" {
		t.Errorf("output = %q, want %q", got, "héllo\n")
	}
}

func TestNewTextWriter_Buffered(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	tw, err := NewTextWriter(bw)
	if err != nil {
		t.Fatalf("NewTextWriter failed: %v", err)
	}
	if tw.Kind() != StreamBuffered {
		t.Errorf("kind = %v, want %v", tw.Kind(), StreamBuffered)
	}
	if tw.w != bw {
		t.Error("buffered writer was wrapped again")
	}
}

func TestTextWriter_FlushChains(t *testing.T) {
	w := &flushWriter{}
	tw, err := NewTextWriter(w)
	if err != nil {
		t.Fatalf("NewTextWriter failed: %v", err)
	}

	_ = tw.WriteString("a\n")
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("underlying flushes = %d, want 1", w.flushes)
	}

	w.flushErr = errors.New("flush failed")
	_ = tw.WriteString("b\n")
	if err := tw.Flush(); err != w.flushErr {
		t.Errorf("expected flush error, got %v", err)
	}
}

func TestTextWriter_InvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	tw, _ := NewTextWriter(&buf)

	if err := tw.WriteString("\xfc\x89"); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
	_ = tw.Flush()
	if buf.Len() != 0 {
		t.Errorf("invalid text was written: %q", buf.String())
	}
}

func TestNewTextWriter_Unsupported(t *testing.T) {
	_, err := NewTextWriter("not a stream")
	if !errors.Is(err, ErrUnsupportedStream) {
		t.Errorf("expected ErrUnsupportedStream, got %v", err)
	}
}

func TestStreamKind_String(t *testing.T) {
	if StreamGeneric.String() != "generic" || StreamBuffered.String() != "buffered" || StreamDescriptor.String() != "descriptor" {
		t.Error("unexpected StreamKind names")
	}
}
