package runner

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/generator"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/transport"
)

// WorkerState is the lifecycle of one virtual user.
type WorkerState int32

const (
	WorkerRunning WorkerState = iota
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker is one virtual user: it repeatedly generates a request, sends it, checks
// the response and records the outcome until the clock expires or its context is
// cancelled.
type Worker struct {
	id        int
	gen       generator.Generator
	transport transport.Transport
	checks    *check.Set
	recorder  *metrics.Recorder
	clock     *Clock
	pacer     pacer
	rateCap   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
	logErrors bool

	state      atomic.Int32
	iterations atomic.Int64
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Iterations returns how many requests the worker has completed.
func (w *Worker) Iterations() int64 {
	return w.iterations.Load()
}

// Run loops until ctx is cancelled or the clock expires. No request starts after
// either; a request already in flight when ctx is cancelled is allowed to finish,
// bounded by the request timeout.
func (w *Worker) Run(ctx context.Context) {
	defer w.state.Store(int32(WorkerStopped))

	for w.active(ctx) {
		if err := w.pacer.Wait(ctx); err != nil {
			return
		}
		if w.rateCap != nil {
			if err := w.rateCap.Wait(ctx); err != nil {
				return
			}
		}
		if !w.active(ctx) {
			return
		}
		w.iterate(ctx)
	}
}

func (w *Worker) active(ctx context.Context) bool {
	return ctx.Err() == nil && !w.clock.Expired()
}

func (w *Worker) iterate(ctx context.Context) {
	req := w.gen.Next(w.id)
	if req != nil {
		req.VU = w.id
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	start := time.Now()
	resp, err := w.transport.Send(sendCtx, req)
	elapsed := time.Since(start)
	cancel()

	outcome := metrics.Outcome{Worker: w.id, Checks: w.checks.Evaluate(resp, err)}
	if err != nil || resp == nil {
		outcome.Kind = transport.Classify(err)
		if outcome.Kind == "" {
			outcome.Kind = transport.KindProtocol
		}
		outcome.Latency = elapsed
		if l, ok := transport.LatencyOf(err); ok {
			outcome.Latency = l
		}
		w.logFailure(req, outcome, err)
	} else {
		outcome.StatusCode = resp.StatusCode
		outcome.Latency = resp.Latency
		if outcome.Latency <= 0 {
			outcome.Latency = elapsed
		}
	}

	w.recorder.Record(outcome)
	w.iterations.Add(1)
}

func (w *Worker) logFailure(req *transport.Request, o metrics.Outcome, err error) {
	fields := []zap.Field{
		zap.Int("worker", w.id),
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.String("error_kind", string(o.Kind)),
		zap.Duration("latency", o.Latency),
		zap.Error(err),
	}
	if w.logErrors {
		w.logger.Warn("request failed", fields...)
		return
	}
	w.logger.Debug("request failed", fields...)
}
