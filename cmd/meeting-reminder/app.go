package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/venkytv/meeting-reminder/pkg/api"
	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/calendar/providers"
	"github.com/venkytv/meeting-reminder/pkg/config"
	"github.com/venkytv/meeting-reminder/pkg/metrics"
	"github.com/venkytv/meeting-reminder/pkg/nats"
	"github.com/venkytv/meeting-reminder/pkg/notify"
	"github.com/venkytv/meeting-reminder/pkg/scheduler"
)

const gracefulTimeout = 30 * time.Second

func newRunCommand(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reminder daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg, logger, dryRun)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			return app.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log reminders without opening links or publishing to NATS")
	return cmd
}

// App holds the main application components
type App struct {
	config    *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	manager   *calendar.Manager
	source    *calendar.Source
	runner    *scheduler.Runner
	publisher *nats.Publisher
	commands  *nats.CommandSubscriber
	api       *api.Server
}

// NewApp wires the calendar providers, the reminder loop and the optional
// NATS and HTTP surfaces.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, dryRun bool) (*App, error) {
	logger.Info("Starting meeting reminder",
		"version", Version,
		"commit", GitCommit,
		"build_time", BuildTime,
		"dry_run", dryRun)

	manager, err := buildManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNewMetrics(registry)

	source := calendar.NewSource(manager, cfg.SourceConfig(), nil, m, logger)

	var opener scheduler.Opener
	if !dryRun {
		opener = notify.NewExecOpener()
	}
	reminders := scheduler.NewReminderScheduler(cfg.SchedulerConfig(), nil, opener, notify.NewBellSound(nil), m, logger)
	reminders.AddObserver(notify.NewLogObserver(logger))

	app := &App{
		config:   cfg,
		logger:   logger,
		registry: registry,
		manager:  manager,
		source:   source,
	}

	if cfg.NATS.URL != "" && !dryRun {
		natsConfig := nats.DefaultConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.Subject = cfg.NATS.Subject
		natsConfig.CommandSubject = cfg.NATS.CommandSubject

		publisher, err := nats.NewPublisher(natsConfig, logger)
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		reminders.AddObserver(publisher)
		app.publisher = publisher
	}

	app.runner = scheduler.NewRunner(reminders, source.Updates(), nil, logger)

	if app.publisher != nil {
		app.commands = nats.NewCommandSubscriber(app.publisher.Conn(), cfg.NATS.CommandSubject, app.runner, logger)
	}

	if cfg.API.Listen != "" {
		app.api = api.NewServer(app.runner, source, manager, registry, nil, logger)
	}

	return app, nil
}

// buildManager creates one initialized provider per configured calendar.
func buildManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*calendar.Manager, error) {
	factory := calendar.NewDefaultProviderFactory()
	providers.InitializeBuiltinProviders(factory)

	manager := calendar.NewManagerWithCoordinator(cfg.Coordination, logger)

	for _, calendarCfg := range cfg.Calendars {
		provider, err := factory.NewInitializedProvider(ctx, calendarCfg.Type, calendarCfg.ProviderConfig(),
			logger.With("provider_name", calendarCfg.Name))
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("calendar %s: %w", calendarCfg.Name, err)
		}

		manager.AddProvider(calendarCfg.Name, provider, calendarCfg.CalendarIDs...)

		logger.Info("Configured calendar provider",
			"name", calendarCfg.Name,
			"type", calendarCfg.Type)
	}

	return manager, nil
}

// Run blocks until ctx is done, then waits up to gracefulTimeout for the
// components to stop before releasing their resources.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(a.source.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(a.runner.Run(gctx)) })

	if a.commands != nil {
		if err := a.commands.Start(); err != nil {
			a.logger.Error("Reminder commands over NATS are unavailable", "error", err)
		}
	}

	if a.api != nil {
		g.Go(func() error { return a.api.ListenAndServe(gctx, a.config.API.Listen) })
	}

	a.logger.Info("Meeting reminder started successfully")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
		select {
		case err = <-done:
		case <-time.After(gracefulTimeout):
			err = fmt.Errorf("timed out after %s waiting for shutdown", gracefulTimeout)
		}
	}

	a.Stop()

	if err != nil {
		a.logger.Error("Error during shutdown", "error", err)
		return err
	}
	a.logger.Info("Meeting reminder stopped gracefully")
	return nil
}

// Stop releases the NATS connection and the calendar providers.
func (a *App) Stop() {
	if a.commands != nil {
		if err := a.commands.Stop(); err != nil {
			a.logger.Error("Error stopping command subscriber", "error", err)
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Error closing NATS publisher", "error", err)
		}
	}

	if err := a.manager.Close(); err != nil {
		a.logger.Error("Error closing calendar manager", "error", err)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
