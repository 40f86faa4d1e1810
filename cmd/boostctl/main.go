package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/boostctl/internal/api"
	"codeberg.org/mutker/boostctl/internal/config"
	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/history"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/metrics"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/permission"
	"codeberg.org/mutker/boostctl/internal/pid"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Printf("invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(cfg.PIDFile); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.FatalWithCode(coded).Str("pid_file", cfg.PIDFile).Msg("failed to write PID file")
		} else {
			logger.Fatal().Err(err).Str("pid_file", cfg.PIDFile).Msg("failed to write PID file")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.Default().ErrorWithCode(coded).Msg("error in main loop")
		} else {
			logger.Error().Err(err).Msg("error in main loop")
		}
	}
	cleanup()
}

func run(ctx context.Context) error {
	errFactory := errors.New()
	log := logger.Default()

	modes, err := mode.NewController(cfg.Mode, log.With("mode"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	recorder, err := history.NewRecorder(cfg.HistoryConfig(), log.With("history"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitRecord, err)
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close history")
		}
	}()

	exporter := metrics.NewExporter(prometheus.DefaultRegisterer)
	exporter.SetMode(modes.Mode())
	modes.Subscribe(exporter.ModeChanged)

	svc, err := telemetry.NewService(
		cfg.TelemetryConfig(),
		modes,
		log.With("telemetry"),
		recorder,
		exporter,
		telemetry.LogObserver(log.With("telemetry")),
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	checker := permission.NewStaticChecker(cfg.Capabilities())
	flow := permission.NewFlow(checker, log.With("setup"))

	logger.Info().
		Str("mode", modes.Mode().String()).
		Dur("interval", cfg.Interval).
		Bool("history", recorder.Enabled()).
		Str("setup_step", flow.Step().String()).
		Msg("boostctl started")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(gCtx)
	})

	if cfg.Listen != "" {
		sims := make([]api.SnapshotSource, 0, len(svc.Simulators()))
		for _, sim := range svc.Simulators() {
			sims = append(sims, sim)
		}

		server := api.NewServer(cfg.Listen, api.Deps{
			Modes:        modes,
			Simulators:   sims,
			History:      recorder,
			Setup:        flow,
			Capabilities: checker,
			Gatherer:     prometheus.DefaultGatherer,
		}, log.With("api"))

		g.Go(func() error {
			return server.Run(gCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return errFactory.Wrap(errors.ErrMainLoop, err)
	}
	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if err := pid.Remove(cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}
