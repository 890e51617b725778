package metrics

import (
	"time"
)

// CheckStats aggregates one named check.
type CheckStats struct {
	Name     string  `json:"name" yaml:"name"`
	Passes   int64   `json:"passes" yaml:"passes"`
	Fails    int64   `json:"fails" yaml:"fails"`
	PassRate float64 `json:"pass_rate" yaml:"pass_rate"`
}

// Statistics is the merged view of every recorded outcome.
type Statistics struct {
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`

	Total     int64 `json:"total" yaml:"total"`
	Responses int64 `json:"responses" yaml:"responses"`
	Failures  int64 `json:"failures" yaml:"failures"`
	// Discarded counts outcomes that arrived after the recorder was sealed.
	Discarded int64 `json:"discarded,omitempty" yaml:"discarded,omitempty"`

	StatusCodes  map[int]int64    `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	FailureKinds map[string]int64 `json:"failure_kinds,omitempty" yaml:"failure_kinds,omitempty"`

	Checks       []CheckStats `json:"checks,omitempty" yaml:"checks,omitempty"`
	ChecksPassed int64        `json:"checks_passed" yaml:"checks_passed"`
	ChecksFailed int64        `json:"checks_failed" yaml:"checks_failed"`

	LatencyCount int64         `json:"latency_count" yaml:"latency_count"`
	MinLatency   time.Duration `json:"-" yaml:"-"`
	MaxLatency   time.Duration `json:"-" yaml:"-"`
	SumLatency   time.Duration `json:"-" yaml:"-"`
	MeanLatency  time.Duration `json:"-" yaml:"-"`
	P50Latency   time.Duration `json:"-" yaml:"-"`
	P90Latency   time.Duration `json:"-" yaml:"-"`
	P95Latency   time.Duration `json:"-" yaml:"-"`
	P99Latency   time.Duration `json:"-" yaml:"-"`
	Duration     time.Duration `json:"-" yaml:"-"`

	RequestsPerSec float64 `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	SumLatencyMs  float64 `json:"sum_latency_ms" yaml:"sum_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`
}

// Check returns the aggregate for the named check.
func (s Statistics) Check(name string) (CheckStats, bool) {
	for _, c := range s.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckStats{}, false
}

// CheckPassRate is the fraction of all check evaluations that passed.
func (s Statistics) CheckPassRate() float64 {
	total := s.ChecksPassed + s.ChecksFailed
	if total == 0 {
		return 0
	}
	return float64(s.ChecksPassed) / float64(total)
}

// FailureRate is the fraction of requests that got no response.
func (s Statistics) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total)
}

func (s *Statistics) fillDerived() {
	if s.LatencyCount > 0 {
		s.MeanLatency = time.Duration(int64(s.SumLatency) / s.LatencyCount)
	}
	for i := range s.Checks {
		c := &s.Checks[i]
		if n := c.Passes + c.Fails; n > 0 {
			c.PassRate = float64(c.Passes) / float64(n)
		}
	}

	s.MinLatencyMs = toMs(s.MinLatency)
	s.MaxLatencyMs = toMs(s.MaxLatency)
	s.SumLatencyMs = toMs(s.SumLatency)
	s.MeanLatencyMs = toMs(s.MeanLatency)
	s.P50LatencyMs = toMs(s.P50Latency)
	s.P90LatencyMs = toMs(s.P90Latency)
	s.P95LatencyMs = toMs(s.P95Latency)
	s.P99LatencyMs = toMs(s.P99Latency)
	s.DurationMs = toMs(s.Duration)

	if s.Duration > 0 && s.Total > 0 {
		s.RequestsPerSec = float64(s.Total) / s.Duration.Seconds()
	}
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
