package runner

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/generator"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/transport"
)

func TestSchedulerRejectsInvalidLoad(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero vus", func(c *config.Config) { c.VirtualUsers = 0 }},
		{"zero duration", func(c *config.Config) { c.Duration = 0 }},
		{"negative timeout", func(c *config.Config) { c.Timeout = -time.Second }},
		{"poisson without pacing", func(c *config.Config) { c.Arrival = config.ArrivalModelPoisson }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &stubTransport{status: http.StatusCreated}
			s := New(Options{Generator: staticGenerator(), Transport: tr})
			cfg := loadConfig(2, time.Second)
			tt.mutate(&cfg)

			_, err := s.Run(context.Background(), cfg)
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("Run() error = %v, want ErrInvalidConfig", err)
			}
			if s.State() != StateIdle {
				t.Errorf("State() = %s, want idle", s.State())
			}
			if tr.calls.Load() != 0 {
				t.Errorf("transport calls = %d, want 0", tr.calls.Load())
			}
			if len(s.Workers()) != 0 {
				t.Errorf("spawned %d workers, want 0", len(s.Workers()))
			}
		})
	}
}

func TestSchedulerRequiresCollaborators(t *testing.T) {
	s := New(Options{Generator: staticGenerator()})
	if _, err := s.Run(context.Background(), loadConfig(1, time.Second)); err == nil {
		t.Fatal("Run() without transport error = nil")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s, want idle", s.State())
	}
}

func TestSchedulerRunCompletes(t *testing.T) {
	tr := &stubTransport{status: http.StatusCreated, latency: 5 * time.Millisecond}
	checks := createdCheck(t)
	s := New(Options{Generator: staticGenerator(), Transport: tr, Checks: checks})

	const vus = 4
	stats, err := s.Run(context.Background(), loadConfig(vus, 150*time.Millisecond))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if s.State() != StateCompleted {
		t.Errorf("State() = %s, want completed", s.State())
	}
	if stats.Total < vus {
		t.Errorf("Total = %d, want at least %d", stats.Total, vus)
	}
	if stats.Total != tr.calls.Load() {
		t.Errorf("Total = %d, transport calls = %d", stats.Total, tr.calls.Load())
	}
	cs, ok := stats.Check("Order placed successfully")
	if !ok {
		t.Fatal("check missing from statistics")
	}
	if cs.Passes+cs.Fails != stats.Total {
		t.Errorf("check passes+fails = %d, want %d", cs.Passes+cs.Fails, stats.Total)
	}
	if cs.Fails != 0 || cs.PassRate != 1 {
		t.Errorf("check = %+v, want all passing", cs)
	}

	if _, err := ulid.Parse(stats.RunID); err != nil {
		t.Errorf("RunID %q is not a ULID: %v", stats.RunID, err)
	}
	if stats.RunID != s.RunID() {
		t.Errorf("stats.RunID = %q, s.RunID() = %q", stats.RunID, s.RunID())
	}

	workers := s.Workers()
	if len(workers) != vus {
		t.Fatalf("workers = %d, want %d", len(workers), vus)
	}
	var sum int64
	for _, w := range workers {
		if w.State() != WorkerStopped {
			t.Errorf("worker %d state = %s", w.ID(), w.State())
		}
		if w.Iterations() == 0 {
			t.Errorf("worker %d made no requests", w.ID())
		}
		sum += w.Iterations()
	}
	if sum != stats.Total {
		t.Errorf("worker iterations = %d, Total = %d", sum, stats.Total)
	}
}

func TestSchedulerSnapshotIsStable(t *testing.T) {
	tr := &stubTransport{status: http.StatusCreated, latency: time.Millisecond}
	s := New(Options{Generator: staticGenerator(), Transport: tr, Checks: createdCheck(t)})

	stats, err := s.Run(context.Background(), loadConfig(2, 50*time.Millisecond))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	again := s.Recorder().Snapshot()
	if again.Total != stats.Total || again.P99Latency != stats.P99Latency || again.ChecksPassed != stats.ChecksPassed {
		t.Errorf("second snapshot differs: %+v vs %+v", again, stats)
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	s := New(Options{Generator: staticGenerator(), Transport: &stubTransport{status: http.StatusCreated}})
	if _, err := s.Run(context.Background(), loadConfig(1, 20*time.Millisecond)); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := s.Run(context.Background(), loadConfig(1, 20*time.Millisecond)); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestSchedulerThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const (
		vus      = 50
		latency  = 20 * time.Millisecond
		duration = 500 * time.Millisecond
	)
	tr := &stubTransport{status: http.StatusCreated, latency: latency}
	s := New(Options{Generator: staticGenerator(), Transport: tr, Checks: createdCheck(t)})

	stats, err := s.Run(context.Background(), loadConfig(vus, duration))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	perWorker := int64(duration / latency)
	expected := vus * perWorker
	// Each worker may complete one request started just before expiry, or lose
	// the last one to sleep overshoot.
	upper := vus * (perWorker + 1)
	lower := expected - vus
	if stats.Total < lower || stats.Total > upper {
		t.Errorf("Total = %d, want within [%d, %d] (expected about %d)", stats.Total, lower, upper, expected)
	}
}

func TestSchedulerDrainIsBounded(t *testing.T) {
	tr := newBlockingTransport()
	t.Cleanup(tr.Release)

	s := New(Options{Generator: staticGenerator(), Transport: tr, Checks: createdCheck(t)})
	cfg := loadConfig(3, 50*time.Millisecond)
	cfg.GracePeriod = 100 * time.Millisecond
	cfg.Timeout = time.Minute

	start := time.Now()
	stats, err := s.Run(context.Background(), cfg)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Run() took %v, want bounded by duration plus grace period", elapsed)
	}
	if s.State() != StateCompleted {
		t.Errorf("State() = %s, want completed", s.State())
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0 while every request is stuck", stats.Total)
	}

	// Abandoned workers finish after the run; their outcomes are discarded.
	tr.Release()
	rec := s.Recorder()
	deadline := time.Now().Add(2 * time.Second)
	for rec.Discarded() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.Discarded(); got != 3 {
		t.Errorf("Discarded() = %d, want 3", got)
	}
	if after := rec.Snapshot(); after.Total != 0 {
		t.Errorf("snapshot after late outcomes Total = %d, want 0", after.Total)
	}
}

func TestSchedulerParentCancel(t *testing.T) {
	tr := &stubTransport{status: http.StatusCreated, latency: time.Millisecond}
	s := New(Options{Generator: staticGenerator(), Transport: tr})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	stats, err := s.Run(ctx, loadConfig(2, time.Hour))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Run() ignored cancellation")
	}
	if stats.Total == 0 {
		t.Error("Total = 0, want requests before cancellation")
	}
	if s.State() != StateCompleted {
		t.Errorf("State() = %s, want completed", s.State())
	}
}

func TestSchedulerRateCap(t *testing.T) {
	tr := &stubTransport{status: http.StatusCreated}
	s := New(Options{Generator: staticGenerator(), Transport: tr})
	cfg := loadConfig(10, 500*time.Millisecond)
	cfg.Rate = 20

	stats, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Total == 0 || stats.Total > 16 {
		t.Errorf("Total = %d, want about 11 at 20 rps for 500ms", stats.Total)
	}
}

func TestSchedulerPacing(t *testing.T) {
	tr := &stubTransport{status: http.StatusCreated}
	s := New(Options{Generator: staticGenerator(), Transport: tr})
	cfg := loadConfig(1, 350*time.Millisecond)
	cfg.Pacing = 100 * time.Millisecond

	stats, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Total < 3 || stats.Total > 5 {
		t.Errorf("Total = %d, want about 4 iterations", stats.Total)
	}
}

func TestSchedulerHTTPOrders(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || r.URL.Path != "/orders" || string(body) != `{"quantity":10,"symbol":"EURUSD"}` {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	cfg := loadConfig(5, 200*time.Millisecond)
	cfg.TargetURL = server.URL + "/orders"
	cfg.Body = `{"quantity":10,"symbol":"EURUSD"}`
	cfg.Checks = []config.CheckConfig{cfg.DefaultCheck()}

	gen, _, err := generator.FromConfig(cfg)
	if err != nil {
		t.Fatalf("generator.FromConfig() error = %v", err)
	}
	checks, err := check.FromConfig(cfg.Checks)
	if err != nil {
		t.Fatalf("check.FromConfig() error = %v", err)
	}
	rec := metrics.NewRecorder(cfg.VirtualUsers, checks.Names())
	s := New(Options{
		Generator: gen,
		Transport: transport.NewHTTPTransport(transport.HTTPOptions{Timeout: cfg.Timeout}),
		Checks:    checks,
		Recorder:  rec,
	})

	stats, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.Recorder() != rec {
		t.Error("Recorder() did not return the supplied recorder")
	}
	if stats.Total == 0 || stats.Total != hits.Load() {
		t.Errorf("Total = %d, server hits = %d", stats.Total, hits.Load())
	}
	if stats.StatusCodes[http.StatusCreated] != stats.Total {
		t.Errorf("StatusCodes = %v, want all 201", stats.StatusCodes)
	}
	cs, ok := stats.Check("Order placed successfully")
	if !ok || cs.Passes != stats.Total || cs.PassRate != 1 {
		t.Errorf("check = %+v, want every request passing", cs)
	}
}

func TestSchedulerHTTPTimeouts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	cfg := loadConfig(3, 200*time.Millisecond)
	cfg.Timeout = 50 * time.Millisecond
	cfg.TargetURL = server.URL + "/orders"

	gen, _, err := generator.FromConfig(cfg)
	if err != nil {
		t.Fatalf("generator.FromConfig() error = %v", err)
	}
	s := New(Options{
		Generator: gen,
		Transport: transport.NewHTTPTransport(transport.HTTPOptions{Timeout: cfg.Timeout}),
		Checks:    createdCheck(t),
	})

	stats, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Total == 0 {
		t.Fatal("Total = 0, want timed out requests")
	}
	if stats.FailureKinds["timeout"] != stats.Total {
		t.Errorf("FailureKinds = %v, want all %d timeouts", stats.FailureKinds, stats.Total)
	}
	if stats.ChecksPassed != 0 || stats.ChecksFailed != stats.Total {
		t.Errorf("checks passed/failed = %d/%d, want 0/%d", stats.ChecksPassed, stats.ChecksFailed, stats.Total)
	}
	if stats.Responses != 0 {
		t.Errorf("Responses = %d, want 0", stats.Responses)
	}
}

func TestRunStateString(t *testing.T) {
	tests := map[RunState]string{
		StateIdle:      "idle",
		StateRunning:   "running",
		StateDraining:  "draining",
		StateCompleted: "completed",
		RunState(42):   "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("RunState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestSchedulerSingleUserAlwaysCreated(t *testing.T) {
	tr := &stubTransport{status: http.StatusCreated, latency: 10 * time.Millisecond}
	s := New(Options{Generator: staticGenerator(), Transport: tr, Checks: createdCheck(t)})
	cfg := loadConfig(1, time.Second)
	cfg.Timeout = 5 * time.Second

	start := time.Now()
	stats, err := s.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > cfg.Duration+cfg.GracePeriod+500*time.Millisecond {
		t.Errorf("Run() took %v", elapsed)
	}
	if stats.Total == 0 {
		t.Fatal("Total = 0")
	}
	if stats.CheckPassRate() != 1 {
		t.Errorf("CheckPassRate() = %v, want 1", stats.CheckPassRate())
	}
}

func TestSchedulerTransportAlwaysTimesOut(t *testing.T) {
	tr := &stubTransport{err: &transport.Error{Kind: transport.KindTimeout, Err: context.DeadlineExceeded}, latency: 5 * time.Millisecond}
	s := New(Options{Generator: staticGenerator(), Transport: tr, Checks: createdCheck(t)})

	stats, err := s.Run(context.Background(), loadConfig(3, 100*time.Millisecond))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Total == 0 || stats.Failures != stats.Total {
		t.Errorf("failures = %d, total = %d, want every request failed", stats.Failures, stats.Total)
	}
	if stats.ChecksPassed != 0 {
		t.Errorf("ChecksPassed = %d, want 0", stats.ChecksPassed)
	}
	if stats.FailureRate() != 1 {
		t.Errorf("FailureRate() = %v, want 1", stats.FailureRate())
	}
}
