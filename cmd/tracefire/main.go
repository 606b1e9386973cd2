package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/tracefire/internal/config"
	"github.com/torosent/tracefire/internal/dashboard"
	"github.com/torosent/tracefire/internal/extractor"
	"github.com/torosent/tracefire/internal/httpclient"
	"github.com/torosent/tracefire/internal/influx"
	"github.com/torosent/tracefire/internal/logging"
	"github.com/torosent/tracefire/internal/metrics"
	"github.com/torosent/tracefire/internal/output"
	"github.com/torosent/tracefire/internal/promexport"
	"github.com/torosent/tracefire/internal/replay"
	"github.com/torosent/tracefire/internal/threshold"
	"github.com/torosent/tracefire/internal/trace"
	"github.com/torosent/tracefire/internal/tracing"
)

const (
	progressInterval = time.Second
	flushTimeout     = 10 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Everything that can reject the input is resolved before the output
	// directory is touched or anything is dispatched.
	delays, err := trace.Load(cfg.TraceFile, trace.Options{Scale: cfg.DelayScale, Limit: cfg.TraceLimit})
	if err != nil {
		return err
	}
	tmpl, err := httpclient.NewTemplate(cfg)
	if err != nil {
		return err
	}
	checks, err := extractor.ParseAll(cfg.Expect)
	if err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	var metricsLn net.Listener
	if cfg.MetricsAddr != "" {
		if metricsLn, err = promexport.Listen(cfg.MetricsAddr); err != nil {
			return err
		}
		defer metricsLn.Close()
	}

	sink, err := output.OpenSink(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), flushTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	var exec replay.Executor = &httpExecutor{
		client:    httpclient.NewClient(cfg.Timeout),
		template:  tmpl,
		checks:    checks,
		propagate: tp.ShouldPropagate(),
	}
	exec = tracing.WrapExecutor(exec, tp, tmpl.Method())
	if cfg.LogErrors {
		failures := logging.NewFailureLogger(log, 0, 0)
		exec = replay.WithLogging(exec, failures)
		defer failures.Flush()
	}

	collector := metrics.NewCollector()
	collector.SetPlan(delays.Len(), delays.Total())
	observers := []replay.Observer{collector}

	var exporter *promexport.Exporter
	if metricsLn != nil {
		exporter = promexport.New()
		exporter.SetPlanned(delays.Len())
		observers = append(observers, exporter)
	}

	var points *influx.Sink
	if cfg.Influx.Enabled() {
		points, err = influx.New(cfg.Influx, sink.RunID(), tmpl.URL(), log)
		if err != nil {
			return err
		}
		observers = append(observers, points)
	}

	sched, err := replay.New(replay.Options{
		Delays:       delays,
		Executor:     exec,
		Observer:     replay.Observers(observers...),
		GracePeriod:  graceOption(cfg.GracePeriod),
		DrainTimeout: cfg.DrainTimeout,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	log.Info("replay configured",
		zap.String("run_id", sink.RunID()),
		zap.String("target", tmpl.URL()),
		zap.String("method", tmpl.Method()),
		zap.Int("requests", delays.Len()),
		zap.Duration("planned_length", delays.Total()),
	)

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.ReplayConfig{
			TargetURL:     tmpl.URL(),
			Method:        tmpl.Method(),
			TraceFile:     cfg.TraceFile,
			DelayScale:    cfg.DelayScale,
			Requests:      delays.Len(),
			PlannedLength: delays.Total(),
			Timeout:       cfg.Timeout,
			ConfigFile:    cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if cfg.Progress && !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, progressInterval, stdout)
		progress.Start()
	}

	collector.Start()
	result, runErr := supervise(ctx, sched, exporter, metricsLn, log)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}
	// Requests that reached the target are always written out, even when
	// the run itself failed.
	if runErr != nil && result.Launched() == 0 {
		return runErr
	}

	if points != nil {
		flushCtx, done := context.WithTimeout(context.Background(), flushTimeout)
		if err := points.Close(flushCtx); err != nil {
			log.Warn("influx sink close failed", zap.Error(err))
		}
		done()
	}

	if err := sink.Write(result, output.Manifest{
		Target:     tmpl.URL(),
		Method:     tmpl.Method(),
		TraceFile:  cfg.TraceFile,
		DelayScale: cfg.DelayScale,
	}); err != nil {
		return err
	}
	log.Info("results written", zap.String("dir", sink.Dir()), zap.String("run_id", sink.RunID()))
	if runErr != nil {
		return runErr
	}

	stats := collector.Stats(result.Duration())
	results := threshold.NewEvaluator(thresholds).Evaluate(stats)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, output.JSONReport{
			RunID:      sink.RunID(),
			Stats:      stats,
			Thresholds: output.SummarizeThresholds(results),
		}); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, stats)
		output.PrintThresholds(stdout, results)
	}

	failed := 0
	for _, r := range results {
		if !r.Pass {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	if cfg.FailOnError && result.Failed > 0 {
		return fmt.Errorf("%d of %d requests failed", result.Failed, result.Launched())
	}
	return nil
}

// supervise runs the replay next to the optional metrics endpoint. The
// endpoint is stopped once the replay returns; a failing endpoint interrupts
// the replay.
func supervise(ctx context.Context, sched *replay.Scheduler, exporter *promexport.Exporter, ln net.Listener, log *zap.Logger) (replay.Result, error) {
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	g, gctx := errgroup.WithContext(serveCtx)

	if exporter != nil {
		g.Go(func() error {
			if err := promexport.Serve(gctx, ln, exporter.Handler(), log); err != nil {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}

	var result replay.Result
	g.Go(func() error {
		defer stopServe()
		var err error
		result, err = sched.Run(gctx)
		return err
	})

	err := g.Wait()
	return result, err
}

// graceOption maps the configured grace period onto replay.Options, where
// zero selects the package default. A configured zero means no grace wait.
func graceOption(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
