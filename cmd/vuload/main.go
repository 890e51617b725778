package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/generator"
	"github.com/torosent/vuload/internal/logging"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/output"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/threshold"
	"github.com/torosent/vuload/internal/tracing"
	"github.com/torosent/vuload/internal/transport"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// errThresholdsFailed marks a completed run whose thresholds did not hold.
var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, errThresholdsFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errThresholdsFailed):
		return 2
	default:
		return 1
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	tr, closeTransport := buildTransport(cfg)
	defer closeTransport()
	if tp.Enabled() || tp.ShouldPropagate() {
		tr = transport.Traced(tr, tp.Tracer(), string(cfg.Protocol), tp.ShouldPropagate())
	}

	gen, f, err := generator.FromConfig(*cfg)
	if err != nil {
		return err
	}
	if f != nil {
		defer f.Close()
	}

	checks, err := check.FromConfig(cfg.Checks)
	if err != nil {
		return err
	}

	var recOpts []metrics.Option
	if cfg.MetricsAddr != "" {
		observer := metrics.NewPrometheusObserver()
		stop, err := serveMetrics(cfg.MetricsAddr, observer.Handler(), logger)
		if err != nil {
			return err
		}
		defer stop()
		recOpts = append(recOpts, metrics.WithObserver(observer))
	}
	recorder := metrics.NewRecorder(cfg.VirtualUsers, checks.Names(), recOpts...)

	sched := runner.New(runner.Options{
		Generator: gen,
		Transport: tr,
		Checks:    checks,
		Recorder:  recorder,
		Logger:    logger,
		LogErrors: cfg.LogErrors,
	})

	var progress *output.ProgressReporter
	if cfg.Output == config.OutputText {
		progress = output.NewProgressReporter(recorder, progressInterval, stdout)
		progress.Start()
	}

	stats, err := sched.Run(ctx, *cfg)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return err
	}

	if err := output.Write(stdout, cfg.Output, stats); err != nil {
		return err
	}

	if len(thresholds) == 0 {
		return nil
	}
	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := stdout
	if cfg.Output != config.OutputText {
		report = stderr
	}
	output.PrintThresholds(report, results)
	if !threshold.AllPassed(results) {
		return errThresholdsFailed
	}
	return nil
}

// buildTransport returns the transport for cfg.Protocol and a func releasing it.
func buildTransport(cfg *config.Config) (transport.Transport, func()) {
	if cfg.Protocol == config.ProtocolWebSocket {
		ws := transport.NewWebSocketTransport(transport.WebSocketOptions{
			Timeout:  cfg.Timeout,
			PoolSize: cfg.VirtualUsers,
		})
		return ws, func() { _ = ws.Close() }
	}
	return transport.NewHTTPTransport(transport.HTTPOptions{Timeout: cfg.Timeout}), func() {}
}

// serveMetrics exposes handler on addr at /metrics until the returned func is called.
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
