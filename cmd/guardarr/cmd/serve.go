package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/guardarr/internal/config"
	"github.com/jmylchreest/guardarr/internal/controller"
	"github.com/jmylchreest/guardarr/internal/database"
	"github.com/jmylchreest/guardarr/internal/events"
	internalhttp "github.com/jmylchreest/guardarr/internal/http"
	"github.com/jmylchreest/guardarr/internal/http/handlers"
	"github.com/jmylchreest/guardarr/internal/httpclient"
	"github.com/jmylchreest/guardarr/internal/probe"
	"github.com/jmylchreest/guardarr/internal/repository"
	"github.com/jmylchreest/guardarr/internal/version"
	"github.com/jmylchreest/guardarr/internal/watchdog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the guardarr watchdog",
	Long: `Start the watchdog loop and the optional status HTTP server.

The watchdog polls the controller for active channels, attaches an
ffmpeg probe to each one, and requests a switch to the channel's next
source when playback stalls or decodes with errors.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Controller flags
	serveCmd.Flags().String("controller-type", config.ControllerDispatcharr, "Controller dialect (dispatcharr, streammaster, aiptv)")
	serveCmd.Flags().String("controller-url", "", "Controller base URL")

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind the status server to")
	serveCmd.Flags().Int("port", 8080, "Port for the status server")
	serveCmd.Flags().String("database", "guardarr.db", "Event database DSN")

	// Bind flags to viper
	viper.BindPFlag("controller.type", serveCmd.Flags().Lookup("controller-type"))
	viper.BindPFlag("controller.url", serveCmd.Flags().Lookup("controller-url"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Event store
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	eventRepo := repository.NewEventRepository(db.DB)

	// Shared HTTP client for all controller traffic
	httpConfig := httpclient.DefaultConfig()
	httpConfig.UserAgent = cfg.Controller.UserAgent
	httpConfig.Logger = logger
	httpClient := httpclient.New(httpConfig)

	ctrl, err := controller.New(cfg.Controller, httpClient.StandardClient(), logger)
	if err != nil {
		return fmt.Errorf("initializing controller client: %w", err)
	}

	// Probe sessions decode the stream only when error detection is on;
	// otherwise a cheap copy is enough to measure speed.
	probeFactory := probe.NewFactory(probe.Config{
		FFmpegPath:      cfg.Probe.FFmpegPath,
		UserAgent:       cfg.Controller.UserAgent,
		DecodeForErrors: cfg.Watchdog.ErrorCheckingEnabled(),
		StopGracePeriod: cfg.Probe.StopGracePeriod,
	})

	sink := watchdog.MultiSink{
		&watchdog.LogSink{Logger: logger},
		repository.NewEventSink(eventRepo, logger),
	}

	orch := watchdog.New(
		watchdog.Config{
			PollInterval: cfg.Watchdog.PollInterval,
			UserAgent:    cfg.Controller.UserAgent,
			Monitor: watchdog.MonitorConfig{
				BufferSpeedThreshold: cfg.Watchdog.BufferSpeedThreshold,
				BufferTimeThreshold:  cfg.Watchdog.BufferTimeThreshold,
				BufferExtensionTime:  cfg.Watchdog.BufferExtensionTime,
				ErrorThreshold:       cfg.Watchdog.ErrorThreshold,
				ErrorSwitchCooldown:  cfg.Watchdog.ErrorSwitchCooldown,
				ErrorResetTime:       cfg.Watchdog.ErrorResetTime,
				RestartBackoff:       cfg.Watchdog.RestartBackoff,
				MaxMemoryBytes:       cfg.Probe.MaxMemoryBytes(),
				MemoryCheckInterval:  watchdog.DefaultMemoryCheckInterval,
			},
		},
		ctrl,
		watchdog.MonitorDeps{
			Prober: func(streamURL string) (watchdog.ProbeSession, error) {
				return probeFactory.Start(streamURL)
			},
			Sink:    sink,
			Command: watchdog.NewCommandRunner(cfg.Watchdog.CustomCommand, cfg.Watchdog.CustomCommandTimeout, logger),
			Logger:  logger,
		},
	)

	// Event retention
	janitor, err := events.NewJanitor(eventRepo, cfg.Events.Retention, cfg.Events.CleanupCron, logger)
	if err != nil {
		return fmt.Errorf("initializing event janitor: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting guardarr",
		slog.String("controller", cfg.Controller.Type),
		slog.String("controller_url", cfg.Controller.URL),
		slog.String("version", version.Version),
	)

	if !cfg.Server.Enabled {
		return orch.Run(ctx)
	}

	// Status server
	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	handlers.NewHealthHandler(version.Version).
		WithDB(db).
		WithController(cfg.Controller.Type, httpClient).
		WithMonitors(orch).
		Register(server.API())
	handlers.NewChannelsHandler(orch).Register(server.API())
	handlers.NewEventsHandler(eventRepo).Register(server.API())

	watchdogErr := make(chan error, 1)
	go func() {
		watchdogErr <- orch.Run(ctx)
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		cancel()
		<-watchdogErr
		return err
	}

	return <-watchdogErr
}
