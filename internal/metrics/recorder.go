package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/vuload/internal/transport"
)

// Histogram bounds in microseconds: 1µs up to 60s with 3 significant figures.
const (
	histMin     = 1
	histMax     = 60_000_000
	histSigFigs = 3
)

// Observer receives every outcome after it has been recorded, and the number of
// active virtual users whenever it changes. Implementations must be safe for
// concurrent use.
type Observer interface {
	Observe(o Outcome)
	ActiveVUs(n int)
}

type Option func(*Recorder)

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observer = o }
}

type checkCount struct {
	passes int64
	fails  int64
}

type shard struct {
	mu        sync.Mutex
	sealed    bool
	hist      *hdrhistogram.Histogram
	total     int64
	responses int64
	failures  int64
	min       time.Duration
	max       time.Duration
	sum       time.Duration
	status    map[int]int64
	kinds     map[transport.ErrorKind]int64
	checks    map[string]*checkCount
}

func newShard() *shard {
	return &shard{
		hist:   hdrhistogram.New(histMin, histMax, histSigFigs),
		status: make(map[int]int64),
		kinds:  make(map[transport.ErrorKind]int64),
		checks: make(map[string]*checkCount),
	}
}

func (s *shard) record(o Outcome) {
	s.total++
	if o.Failed() {
		s.failures++
		s.kinds[o.Kind]++
	} else {
		s.responses++
		s.status[o.StatusCode]++
	}

	us := o.Latency.Microseconds()
	if us < histMin {
		us = histMin
	}
	if us > histMax {
		us = histMax
	}
	_ = s.hist.RecordValue(us)

	s.sum += o.Latency
	if s.total == 1 || o.Latency < s.min {
		s.min = o.Latency
	}
	if o.Latency > s.max {
		s.max = o.Latency
	}

	for _, res := range o.Checks {
		c := s.checks[res.Name]
		if c == nil {
			c = &checkCount{}
			s.checks[res.Name] = c
		}
		if res.Passed {
			c.passes++
		} else {
			c.fails++
		}
	}
}

// LiveStats is an approximate, lock-free view of a run in flight.
type LiveStats struct {
	Requests     int64
	Failures     int64
	ChecksPassed int64
	ChecksFailed int64
	ActiveVUs    int64
	Elapsed      time.Duration
}

// Recorder accumulates outcomes from concurrent workers. Each worker slot maps to
// its own shard so Record never takes a lock shared with other workers.
type Recorder struct {
	shards     []*shard
	checkNames []string
	observer   Observer

	startNanos atomic.Int64
	endNanos   atomic.Int64
	sealed     atomic.Bool
	discarded  atomic.Int64

	requests     atomic.Int64
	failures     atomic.Int64
	checksPassed atomic.Int64
	checksFailed atomic.Int64
	active       atomic.Int64

	snapMu sync.Mutex
	snap   *Statistics
}

// NewRecorder returns a recorder with one shard per worker slot. checkNames fixes
// the report order of checks; names not listed are appended alphabetically.
func NewRecorder(slots int, checkNames []string, opts ...Option) *Recorder {
	if slots < 1 {
		slots = 1
	}
	r := &Recorder{
		shards:     make([]*shard, slots),
		checkNames: append([]string(nil), checkNames...),
	}
	for i := range r.shards {
		r.shards[i] = newShard()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start marks the beginning of the measured window.
func (r *Recorder) Start() {
	r.startNanos.Store(time.Now().UnixNano())
}

// Record adds one outcome. It is safe for concurrent use; outcomes arriving after
// Seal are dropped and counted as discarded.
func (r *Recorder) Record(o Outcome) {
	idx := o.Worker % len(r.shards)
	if idx < 0 {
		idx = -idx
	}
	s := r.shards[idx]

	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		r.discarded.Add(1)
		return
	}
	s.record(o)
	s.mu.Unlock()

	r.requests.Add(1)
	if o.Failed() {
		r.failures.Add(1)
	}
	for _, res := range o.Checks {
		if res.Passed {
			r.checksPassed.Add(1)
		} else {
			r.checksFailed.Add(1)
		}
	}
	if r.observer != nil {
		r.observer.Observe(o)
	}
}

// WorkerStarted and WorkerStopped track the active virtual user gauge.
func (r *Recorder) WorkerStarted() {
	n := r.active.Add(1)
	if r.observer != nil {
		r.observer.ActiveVUs(int(n))
	}
}

func (r *Recorder) WorkerStopped() {
	n := r.active.Add(-1)
	if r.observer != nil {
		r.observer.ActiveVUs(int(n))
	}
}

// Seal closes the recorder to new outcomes and fixes the end of the measured window.
// It is idempotent.
func (r *Recorder) Seal() {
	if r.sealed.Swap(true) {
		return
	}
	r.endNanos.Store(time.Now().UnixNano())
	for _, s := range r.shards {
		s.mu.Lock()
		s.sealed = true
		s.mu.Unlock()
	}
}

// Sealed reports whether Seal has been called.
func (r *Recorder) Sealed() bool {
	return r.sealed.Load()
}

// Discarded returns how many outcomes were dropped after sealing.
func (r *Recorder) Discarded() int64 {
	return r.discarded.Load()
}

// Live returns approximate counters without blocking recording.
func (r *Recorder) Live() LiveStats {
	return LiveStats{
		Requests:     r.requests.Load(),
		Failures:     r.failures.Load(),
		ChecksPassed: r.checksPassed.Load(),
		ChecksFailed: r.checksFailed.Load(),
		ActiveVUs:    r.active.Load(),
		Elapsed:      r.elapsed(),
	}
}

func (r *Recorder) elapsed() time.Duration {
	start := r.startNanos.Load()
	if start == 0 {
		return 0
	}
	end := r.endNanos.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return time.Duration(end - start)
}

// Snapshot merges all shards into Statistics. After Seal the result is computed
// once and every later call returns an identical copy.
func (r *Recorder) Snapshot() Statistics {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()

	if r.snap != nil {
		return r.snap.clone()
	}
	sealed := r.sealed.Load()
	stats := r.merge()
	if sealed {
		r.snap = &stats
		return stats.clone()
	}
	return stats
}

func (r *Recorder) merge() Statistics {
	stats := Statistics{
		StatusCodes:  map[int]int64{},
		FailureKinds: map[string]int64{},
	}
	hist := hdrhistogram.New(histMin, histMax, histSigFigs)
	checks := map[string]*checkCount{}
	first := true

	for _, s := range r.shards {
		s.mu.Lock()
		stats.Total += s.total
		stats.Responses += s.responses
		stats.Failures += s.failures
		stats.SumLatency += s.sum
		if s.total > 0 {
			if first || s.min < stats.MinLatency {
				stats.MinLatency = s.min
			}
			if s.max > stats.MaxLatency {
				stats.MaxLatency = s.max
			}
			first = false
		}
		for code, n := range s.status {
			stats.StatusCodes[code] += n
		}
		for kind, n := range s.kinds {
			stats.FailureKinds[string(kind)] += n
		}
		for name, c := range s.checks {
			agg := checks[name]
			if agg == nil {
				agg = &checkCount{}
				checks[name] = agg
			}
			agg.passes += c.passes
			agg.fails += c.fails
		}
		hist.Merge(s.hist)
		s.mu.Unlock()
	}

	stats.LatencyCount = stats.Total
	stats.Discarded = r.discarded.Load()
	stats.Duration = r.elapsed()

	if hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P95Latency = time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond
		stats.P99Latency = time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond
	}

	for _, name := range r.orderedCheckNames(checks) {
		c := checks[name]
		if c == nil {
			c = &checkCount{}
		}
		stats.Checks = append(stats.Checks, CheckStats{Name: name, Passes: c.passes, Fails: c.fails})
		stats.ChecksPassed += c.passes
		stats.ChecksFailed += c.fails
	}

	if len(stats.StatusCodes) == 0 {
		stats.StatusCodes = nil
	}
	if len(stats.FailureKinds) == 0 {
		stats.FailureKinds = nil
	}
	stats.fillDerived()
	return stats
}

func (r *Recorder) orderedCheckNames(seen map[string]*checkCount) []string {
	names := append([]string(nil), r.checkNames...)
	declared := make(map[string]struct{}, len(names))
	for _, n := range names {
		declared[n] = struct{}{}
	}
	var extra []string
	for n := range seen {
		if _, ok := declared[n]; !ok {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func (s Statistics) clone() Statistics {
	out := s
	if s.StatusCodes != nil {
		out.StatusCodes = make(map[int]int64, len(s.StatusCodes))
		for k, v := range s.StatusCodes {
			out.StatusCodes[k] = v
		}
	}
	if s.FailureKinds != nil {
		out.FailureKinds = make(map[string]int64, len(s.FailureKinds))
		for k, v := range s.FailureKinds {
			out.FailureKinds[k] = v
		}
	}
	out.Checks = append([]CheckStats(nil), s.Checks...)
	return out
}
