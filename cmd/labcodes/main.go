package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/erazemk/labcodes/internal/bot"
	"github.com/erazemk/labcodes/internal/chat"
	"github.com/erazemk/labcodes/internal/config"
	"github.com/erazemk/labcodes/internal/db"
	"github.com/erazemk/labcodes/internal/metrics"
	"github.com/erazemk/labcodes/internal/store"
	"github.com/erazemk/labcodes/internal/telegram"
)

// levelRouter is a slog.Handler that routes records below ERROR to stdout and
// ERROR+ to stderr.
type levelRouter struct {
	level  slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.level
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. If logPath is non-empty, all
// levels are also written to that file. Returns a cleanup function that
// closes the log file (if opened).
func setupLogger(logPath string, debug bool) (func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		level:  level,
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func main() {
	fs := flag.NewFlagSet("labcodes", flag.ContinueOnError)

	var configPath string
	fs.StringVar(&configPath, "config", "labcodes.yaml", "")
	fs.StringVar(&configPath, "c", "labcodes.yaml", "")

	var dsn string
	fs.StringVar(&dsn, "db", "", "")
	fs.StringVar(&dsn, "d", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var metricsAddr string
	fs.StringVar(&metricsAddr, "metrics", "", "")
	fs.StringVar(&metricsAddr, "m", "", "")

	var debug bool
	fs.BoolVar(&debug, "debug", false, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: labcodes [flags]

The bot token is read from TELEGRAM_BOT_TOKEN (environment or .env).

Flags:
  -c, -config <path>      YAML config file (default: labcodes.yaml, optional)
  -d, -db <dsn>           database path or URL (default: labcodes.sqlite3)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -m, -metrics <addr>     serve Prometheus metrics on addr (default: off)
  -debug                  log debug messages and Bot API traffic
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Flags win over the config file and the environment.
	if dsn != "" {
		cfg.Database.DSN = dsn
	}
	if logPath != "" {
		cfg.Log.Path = logPath
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if debug {
		cfg.Log.Debug = true
		cfg.Telegram.Debug = true
	}

	closeLog, err := setupLogger(cfg.Log.Path, cfg.Log.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		if closeLog != nil {
			closeLog()
		}
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("bot stopped", "error", err)
		if closeLog != nil {
			closeLog()
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "driver", string(database.Dialect))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		select {
		case sig := <-quit:
			slog.Info("shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	tg, err := telegram.New(cfg.Telegram.Token, telegram.Options{
		PollTimeout: cfg.GetPollTimeout(),
		Debug:       cfg.Telegram.Debug,
	})
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}

	b := bot.New(store.New(database), tg, bot.Options{
		PendingTTL: cfg.GetPendingTTL(),
		Metrics:    m,
	})

	updates := make(chan chat.Update)
	go tg.Poll(ctx, updates)

	slog.Info("bot started", "username", tg.Username())
	if err := b.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("bot stopped, closing database")
	return nil
}
