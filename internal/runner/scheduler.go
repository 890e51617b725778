package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/generator"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/transport"
)

// RunState is the lifecycle of a Scheduler.
type RunState int32

const (
	StateIdle RunState = iota
	StateRunning
	StateDraining
	StateCompleted
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

var (
	// ErrDrainTimeout is logged when workers are still busy after the grace period.
	// It never fails the run.
	ErrDrainTimeout = errors.New("drain timeout: workers abandoned")
	// ErrAlreadyStarted is returned when Run is called on a used Scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Options wire a Scheduler to its collaborators.
type Options struct {
	Generator generator.Generator // required
	Transport transport.Transport // required
	Checks    *check.Set
	// Recorder defaults to one sized for the run's virtual users.
	Recorder  *metrics.Recorder
	Logger    *zap.Logger
	LogErrors bool
	// Seed seeds poisson pacing; zero uses the current time.
	Seed int64
}

// Scheduler runs one load test.
type Scheduler struct {
	opts  Options
	state atomic.Int32
	runID atomic.Value

	mu       sync.Mutex
	workers  []*Worker
	recorder *metrics.Recorder
}

func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{opts: opts}
}

func (s *Scheduler) State() RunState {
	return RunState(s.state.Load())
}

// RunID is the ULID assigned when Run started, or "" before.
func (s *Scheduler) RunID() string {
	id, _ := s.runID.Load().(string)
	return id
}

// Recorder returns the recorder in use, available once Run has started.
func (s *Scheduler) Recorder() *metrics.Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder
}

// Workers returns the spawned workers.
func (s *Scheduler) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Worker(nil), s.workers...)
}

// Run executes the test described by cfg and returns the final statistics. It fails
// only when cfg's load shape is invalid, in which case no worker is started.
// Cancelling ctx ends the run early and drains it like a normal expiry.
func (s *Scheduler) Run(ctx context.Context, cfg config.Config) (metrics.Statistics, error) {
	if err := cfg.ValidateLoad(); err != nil {
		return metrics.Statistics{}, err
	}
	if s.opts.Generator == nil || s.opts.Transport == nil {
		return metrics.Statistics{}, fmt.Errorf("runner: generator and transport are required")
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return metrics.Statistics{}, ErrAlreadyStarted
	}

	runID := ulid.Make().String()
	s.runID.Store(runID)
	logger := s.opts.Logger.With(zap.String("run_id", runID))

	recorder := s.opts.Recorder
	if recorder == nil {
		recorder = metrics.NewRecorder(cfg.VirtualUsers, s.opts.Checks.Names())
	}
	s.mu.Lock()
	s.recorder = recorder
	s.mu.Unlock()

	logger.Info("run starting",
		zap.Int("vus", cfg.VirtualUsers),
		zap.Duration("duration", cfg.Duration),
		zap.Duration("pacing", cfg.Pacing),
		zap.String("arrival", string(cfg.Arrival)),
		zap.Int("rate", cfg.Rate),
	)

	clock := NewClock(cfg.Duration)
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rateCap := newRateCap(cfg.Rate)
	var wg sync.WaitGroup

	clock.Start()
	recorder.Start()
	for i := 0; i < cfg.VirtualUsers; i++ {
		w := &Worker{
			id:        i,
			gen:       s.opts.Generator,
			transport: s.opts.Transport,
			checks:    s.opts.Checks,
			recorder:  recorder,
			clock:     clock,
			pacer:     newPacer(cfg.Arrival, cfg.Pacing, newSampler(s.seedFor(i))),
			rateCap:   rateCap,
			timeout:   cfg.Timeout,
			logger:    logger,
			logErrors: s.opts.LogErrors,
		}
		s.mu.Lock()
		s.workers = append(s.workers, w)
		s.mu.Unlock()

		wg.Add(1)
		recorder.WorkerStarted()
		go func() {
			defer wg.Done()
			defer recorder.WorkerStopped()
			w.Run(workerCtx)
		}()
	}

	select {
	case <-clock.Done():
	case <-ctx.Done():
		logger.Info("run interrupted", zap.Error(ctx.Err()), zap.Duration("elapsed", clock.Elapsed()))
	}

	s.state.Store(int32(StateDraining))
	logger.Debug("draining workers", zap.Duration("grace_period", cfg.GracePeriod))
	cancel()

	if abandoned := s.awaitDrain(&wg, cfg.GracePeriod); abandoned > 0 {
		logger.Warn("workers did not stop within grace period",
			zap.Error(ErrDrainTimeout),
			zap.Int("abandoned", abandoned),
			zap.Duration("grace_period", cfg.GracePeriod),
		)
	}

	recorder.Seal()
	clock.Stop()
	s.state.Store(int32(StateCompleted))

	stats := recorder.Snapshot()
	stats.RunID = runID
	logger.Info("run completed",
		zap.Int64("requests", stats.Total),
		zap.Int64("failures", stats.Failures),
		zap.Duration("elapsed", stats.Duration),
		zap.Float64("rps", stats.RequestsPerSec),
	)
	return stats, nil
}

// awaitDrain waits for all workers up to grace and returns how many are still running.
func (s *Scheduler) awaitDrain(wg *sync.WaitGroup, grace time.Duration) int {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return 0
	case <-timer.C:
	}

	select {
	case <-done:
		return 0
	default:
	}

	abandoned := 0
	for _, w := range s.Workers() {
		if w.State() == WorkerRunning {
			abandoned++
		}
	}
	return abandoned
}

func (s *Scheduler) seedFor(worker int) int64 {
	if s.opts.Seed == 0 {
		return 0
	}
	return s.opts.Seed + int64(worker)
}
