package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Zereker/multilang"
)

// heartbeatStream is the stream id hosts use to check a worker is alive.
const heartbeatStream = "__heartbeat"

// echoBolt emits every incoming tuple back to the host, anchored to the
// input tuple, and acks it.
type echoBolt struct {
	logger *slog.Logger
}

func (b *echoBolt) HandleMessage(conn *multilang.Conn, env multilang.Envelope) error {
	if env.IsList() {
		b.logger.Debug("emit delivered", "task_ids", env.List)
		return nil
	}

	if pidDir, ok := env.Get("pidDir"); ok {
		return b.handshake(conn, pidDir)
	}

	id, _ := env.Get("id")
	if stream, _ := env.Get("stream"); stream == heartbeatStream {
		return conn.SendMessage(multilang.NewMapEnvelope(map[string]any{"command": "sync"}))
	}

	payload, ok := env.Payload()
	if !ok {
		b.logger.Warn("unexpected message", "envelope", env)
		return nil
	}

	if err := conn.SendMessage(multilang.NewMapEnvelope(map[string]any{
		"command":            "emit",
		"anchors":            []any{id},
		"need_task_ids":      false,
		multilang.PayloadKey: payload,
	})); err != nil {
		return err
	}
	return conn.SendMessage(multilang.NewMapEnvelope(map[string]any{
		"command": "ack",
		"id":      id,
	}))
}

// handshake announces the worker's pid, leaving an empty file named after
// it in the host's pid directory.
func (b *echoBolt) handshake(conn *multilang.Conn, pidDir any) error {
	dir, ok := pidDir.(string)
	if !ok {
		return fmt.Errorf("handshake: pidDir is %T, want string", pidDir)
	}
	pid := os.Getpid()
	if err := os.WriteFile(filepath.Join(dir, strconv.Itoa(pid)), nil, 0o644); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	b.logger.Info("handshake complete", "pid", pid, "pid_dir", dir)
	return conn.SendMessage(multilang.NewMapEnvelope(map[string]any{"pid": pid}))
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("multilang-echo", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a TOML config file")
	listen := flagSet.String("listen", "", "accept hosts on this TCP address instead of stdin/stdout")
	logLevel := flagSet.String("log-level", "", "log level: debug, info, warn or error")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := multilang.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = multilang.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if flagSet.Changed("listen") {
		cfg.Listen = *listen
	}
	if flagSet.Changed("log-level") {
		lvl, err := multilang.ParseLogLevel(*logLevel)
		if err != nil {
			return fmt.Errorf("parse --log-level: %w", err)
		}
		cfg.LogLevel = lvl
	}

	// stdout carries the protocol; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bolt := &echoBolt{logger: logger}
	opts := append(cfg.Options(), multilang.LoggerOption(logger))

	if cfg.Listen != "" {
		return serveTCP(ctx, cfg.Listen, bolt, logger, opts)
	}
	return serveStdio(ctx, bolt, opts)
}

func serveStdio(ctx context.Context, handler multilang.Handler, opts []multilang.Option) error {
	var conn *multilang.Conn
	opts = append(opts, multilang.OnMessageOption(func(env multilang.Envelope) error {
		return handler.HandleMessage(conn, env)
	}))

	conn, err := multilang.NewConn(os.Stdin, os.Stdout, opts...)
	if err != nil {
		return err
	}

	err = conn.Run(ctx)
	if err == nil || errors.Is(err, multilang.ErrRemoteDisconnected) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveTCP(ctx context.Context, addr string, handler multilang.Handler, logger *slog.Logger, opts []multilang.Option) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	server, err := multilang.New(tcpAddr,
		multilang.ServerLoggerOption(logger),
		multilang.ServerConnOption(opts...),
	)
	if err != nil {
		return err
	}
	defer server.Close()

	if err := server.Serve(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
