package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hazz-dev/availmon/internal/config"
	"github.com/hazz-dev/availmon/internal/endpoint"
	"github.com/hazz-dev/availmon/internal/health"
	"github.com/hazz-dev/availmon/internal/journal"
	"github.com/hazz-dev/availmon/internal/lifecycle"
	"github.com/hazz-dev/availmon/internal/logging"
	"github.com/hazz-dev/availmon/internal/probe"
	"github.com/hazz-dev/availmon/internal/report"
	"github.com/hazz-dev/availmon/internal/scheduler"
	"github.com/hazz-dev/availmon/internal/telemetry"
	"github.com/hazz-dev/availmon/internal/version"
)

const (
	msgTerminated    = "Program terminated."
	msgInvalidConfig = "Invalid endpoint definition. Nothing was probed."
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "availmon [endpoints.yml]",
		Short:        "Probe HTTP endpoints and report per-host availability",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runRoot,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(versionCmd())
	root.AddCommand(checkCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		File:       settings.LogFile,
		Console:    cmd.OutOrStdout(),
		Level:      settings.LogLevel,
		MaxBackups: 5,
		MaxAgeDays: 14,
		Compress:   true,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if len(args) == 0 {
		logger.Info(msgTerminated)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := monitor(ctx, logger, settings, args[0], cmd.OutOrStdout()); err != nil {
		if config.IsValidation(err) {
			logger.Error(msgInvalidConfig, zap.String("file", args[0]), zap.Error(err))
		}
		return err
	}
	logger.Info(msgTerminated)
	return nil
}

// monitor wires the collaborators, runs the lifecycle until ctx is done, and
// writes the run summary. Startup failures return before any probe runs.
func monitor(ctx context.Context, logger *zap.Logger, settings *config.Settings, path string, metricsOut io.Writer) (err error) {
	provider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "availmon",
		Version:     version.Version,
		Exporter:    settings.Metrics,
		Writer:      metricsOut,
	})
	if err != nil {
		return fmt.Errorf("setting up metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, provider.Shutdown(shutdownCtx))
	}()

	metrics, err := telemetry.NewMetrics(provider.Meter())
	if err != nil {
		return fmt.Errorf("creating probe metrics: %w", err)
	}

	j, err := journal.Open(journal.InMemory)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { err = multierr.Append(err, j.Close()) }()

	agg := health.NewAggregator()
	prober := probe.New(agg, probe.Options{
		Timeout:       settings.Timeout,
		SlowThreshold: settings.SlowThreshold,
	})

	sched := scheduler.New(prober, scheduler.Options{
		Interval:      settings.Interval,
		MaxConcurrent: settings.MaxConcurrent,
	}, logger)
	sink := newResultSink(j, metrics, logger)
	sched.SetOnResult(sink.record)

	rep := report.New(logger)
	ctrl := lifecycle.New(sched, agg, rep, lifecycle.Options{
		Interval:     settings.Interval,
		DrainTimeout: 2 * settings.Timeout,
	}, logger)

	if err := ctrl.Start(func() ([]endpoint.Endpoint, error) {
		return config.LoadEndpoints(path)
	}); err != nil {
		return err
	}
	logger.Debug("monitor started", zap.Int("endpoints", sched.Len()), zap.Duration("interval", settings.Interval))

	runErr := ctrl.Run(ctx)
	// Probes abandoned by the drain timeout may still complete after this.
	sink.close()

	stats, statsErr := j.Summary(context.Background())
	if statsErr != nil {
		logger.Warn("reading run summary failed", zap.Error(statsErr))
	} else {
		rep.Summary(stats)
	}
	return runErr
}

// resultSink fans each probe outcome out to the log, the journal, and the
// metrics. After close, outcomes are only logged: the journal and meter
// provider are about to be released.
type resultSink struct {
	journal *journal.Journal
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func newResultSink(j *journal.Journal, m *telemetry.Metrics, logger *zap.Logger) *resultSink {
	return &resultSink{journal: j, metrics: m, logger: logger}
}

func (s *resultSink) record(ep endpoint.Endpoint, out probe.Outcome) {
	s.logger.Info(ep.String(),
		zap.String("status", out.Status()),
		zap.Int("status_code", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS()),
	)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	if err := s.journal.Record(context.Background(), out); err != nil {
		s.logger.Warn("journal write failed", zap.String("endpoint", ep.Name()), zap.Error(err))
	}
	s.metrics.Record(context.Background(), out)
}

// close waits for in-progress writes and drops every later one.
func (s *resultSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
