package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/daemon"
	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/history"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
	"git.home.luguber.info/inful/sitepub/internal/metrics"
	"git.home.luguber.info/inful/sitepub/internal/notify"
	"git.home.luguber.info/inful/sitepub/internal/pipeline"
	"git.home.luguber.info/inful/sitepub/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"sitepub.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct{} `cmd:"" help:"Build and publish the site once"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Daemon struct{} `cmd:"" help:"Run continuously, triggered by source changes, schedule, or webhooks"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	adapter := errors.NewCLIErrorAdapter(CLI.Verbose, logger)

	switch kctx.Command() {
	case "run":
		adapter.HandleError(runOnce())
	case "init":
		adapter.HandleError(runInit(CLI.Config, CLI.Init.Force))
	case "daemon":
		adapter.HandleError(runDaemon())
	case "version":
		fmt.Printf("sitepub %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}

func runOnce() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := pipeline.New(cfg).Run(ctx, "manual")
	if err != nil {
		return err
	}

	if summary.NoChange {
		fmt.Printf("No changes: %s already holds the current site\n", summary.Ref)
	} else {
		fmt.Printf("Published %d files to %s at %s\n", summary.Files, summary.Ref, summary.Revision)
	}
	return nil
}

func runInit(configPath string, force bool) error {
	slog.Info("Initializing configuration", logfields.Path(configPath), slog.Bool("force", force))
	return config.Init(configPath, force)
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	historyPath := cfg.Daemon.History
	if historyPath == "" {
		historyPath = ":memory:"
	}
	store, err := history.NewSQLiteStore(historyPath)
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "open run history")
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close run history", logfields.Error(err))
		}
	}()

	notifier, err := notify.NewNATSNotifier(cfg.Notify)
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "connect notifier")
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			slog.Warn("Failed to close notifier", logfields.Error(err))
		}
	}()

	runner := pipeline.New(cfg, pipeline.WithRecorder(recorder))

	d, err := daemon.New(cfg,
		daemon.WithRunner(runner),
		daemon.WithStore(store),
		daemon.WithNotifier(notifier),
		daemon.WithMetricsHTTP(metrics.HTTPHandler(registry)),
	)
	if err != nil {
		return err
	}

	return d.Run(ctx)
}
