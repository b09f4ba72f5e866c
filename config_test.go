package multilang

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
listen = " 127.0.0.1:7000 "
log_level = "debug"
blank_line_warn_every = 250
send_buffer = 16
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.BlankLineWarnEvery != 250 {
		t.Errorf("BlankLineWarnEvery = %d, want 250", cfg.BlankLineWarnEvery)
	}
	if cfg.SendBuffer != 16 {
		t.Errorf("SendBuffer = %d, want 16", cfg.SendBuffer)
	}
}

func TestLoadConfig_KeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `log_level = "WARN"`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := DefaultConfig()
	want.LogLevel = slog.LevelWarn
	if cfg != want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `listen = `, "load config"},
		{"unknown key", `heartbeat = "1s"`, "unknown key"},
		{"bad level", `log_level = "loud"`, "parse log_level"},
		{"zero interval", `blank_line_warn_every = 0`, "blank_line_warn_every"},
		{"negative buffer", `send_buffer = -1`, "send_buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlankLineWarnEvery = 7
	cfg.SendBuffer = 3

	opts := applyOptions(cfg.Options())
	if opts.blankLineWarnEvery != 7 {
		t.Errorf("blankLineWarnEvery = %d, want 7", opts.blankLineWarnEvery)
	}
	if opts.bufferSize != 3 {
		t.Errorf("bufferSize = %d, want 3", opts.bufferSize)
	}
}
