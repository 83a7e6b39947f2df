package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/observability/otelx"
	"github.com/bakkerme/matchday/internal/runner/factory"
)

type options struct {
	Config    string `long:"config" env:"MATCHDAY_CONFIG" default:"matchday.yaml" description:"Path to the matchday YAML document (defaults apply when missing)"`
	Daemon    bool   `long:"daemon" env:"MATCHDAY_DAEMON" description:"Stay running and invoke on the cron schedule instead of running once"`
	Schedule  string `long:"schedule" env:"MATCHDAY_SCHEDULE" description:"Cron schedule for --daemon (overrides schedule.cron)"`
	Timezone  string `long:"timezone" env:"MATCHDAY_TIMEZONE" description:"Timezone for the cron schedule (overrides schedule.timezone)"`
	DryRun    bool   `long:"dry-run" env:"DRY_RUN" description:"Log posts instead of publishing them"`
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"debug, info, warn or error"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" description:"text or json"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	logger := newLogger(opts.LogLevel, opts.LogFormat)
	slog.SetDefault(logger)

	doc, err := config.LoadDocument(opts.Config)
	if err != nil {
		log.Fatalf("failed to load config document: %v", err)
	}
	if opts.Schedule != "" {
		doc.Schedule.Cron = opts.Schedule
	}
	if opts.Timezone != "" {
		doc.Schedule.Timezone = opts.Timezone
	}
	env := config.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = core.WithLogger(ctx, logger)

	shutdownTracing, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	os.Exit(run(ctx, logger, env, doc, opts, shutdownTracing))
}

// run returns the process exit code so deferred cleanup happens before exit.
func run(ctx context.Context, logger *slog.Logger, env config.EnvConfig, doc config.Document, opts options, shutdownTracing func(context.Context) error) int {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	f := factory.NewFromEnvConfig(logger, env, doc)
	r, store, err := f.NewRunner(opts.DryRun)
	if err != nil {
		logger.Error("failed to build runner", "error", err)
		return 1
	}
	defer store.Close()

	if !opts.Daemon {
		if _, err := r.RunOnce(ctx); err != nil {
			logger.Error("run failed", "error", err)
			return 1
		}
		return 0
	}

	trigger, err := f.NewTrigger()
	if err != nil {
		logger.Error("invalid schedule", "error", err)
		return 1
	}
	logger.Info("waiting for schedule", "cron", doc.Schedule.Cron, "timezone", doc.Schedule.Timezone, "dry_run", opts.DryRun)
	if err := r.Start(ctx, trigger); err != nil {
		logger.Error("runner stopped", "error", err)
		return 1
	}
	return 0
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}
