package multilang

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the file-level configuration of a worker.
type Config struct {
	// Listen, when set, is the TCP address to accept hosts on instead of
	// using stdin/stdout.
	Listen             string
	LogLevel           slog.Level
	BlankLineWarnEvery int
	SendBuffer         int
}

type fileConfig struct {
	Listen             string `toml:"listen"`
	LogLevel           string `toml:"log_level"`
	BlankLineWarnEvery int    `toml:"blank_line_warn_every"`
	SendBuffer         int    `toml:"send_buffer"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel:           slog.LevelInfo,
		BlankLineWarnEvery: defaultBlankLineWarnEvery,
		SendBuffer:         defaultBufferSize,
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Keys absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}

	if meta.IsDefined("log_level") {
		lvl, err := ParseLogLevel(raw.LogLevel)
		if err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}

	if meta.IsDefined("blank_line_warn_every") {
		if raw.BlankLineWarnEvery <= 0 {
			return Config{}, fmt.Errorf("blank_line_warn_every must be positive, got %d", raw.BlankLineWarnEvery)
		}
		cfg.BlankLineWarnEvery = raw.BlankLineWarnEvery
	}

	if meta.IsDefined("send_buffer") {
		if raw.SendBuffer <= 0 {
			return Config{}, fmt.Errorf("send_buffer must be positive, got %d", raw.SendBuffer)
		}
		cfg.SendBuffer = raw.SendBuffer
	}

	return cfg, nil
}

// ParseLogLevel parses debug, info, warn or error (any case).
func ParseLogLevel(raw string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

// Options returns the session options c describes.
func (c Config) Options() []Option {
	return []Option{
		BlankLineWarnIntervalOption(c.BlankLineWarnEvery),
		BufferSizeOption(c.SendBuffer),
	}
}
