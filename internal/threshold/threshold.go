// Package threshold evaluates pass/fail assertions against run statistics.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/vuload/internal/metrics"
)

const (
	MetricDuration = "req_duration"
	MetricFailed   = "req_failed"
	MetricRequests = "requests"
	MetricChecks   = "checks"
)

// Threshold is a single assertion such as "req_duration:p95 < 500".
type Threshold struct {
	Metric    string  // req_duration, req_failed, requests, checks
	Check     string  // optional check name for the checks metric
	Aggregate string  // p50, p90, p95, p99, avg, min, max, rate, count, passes, fails
	Operator  string  // <, <=, >, >=, ==
	Value     float64 // latencies are in milliseconds
	Raw       string
}

// Result is the outcome of evaluating one threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against run statistics.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold against stats.
func (e *Evaluator) Evaluate(stats metrics.Statistics) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats metrics.Statistics) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("✗ %s: %v", t.Raw, err)}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?:\{([^{}]+)\})?:([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string. Supported forms:
//
//	req_duration:p95 < 500          latency percentile in ms (p50, p90, p95, p99, avg, min, max)
//	req_failed:rate < 0.01          fraction of requests without a response
//	req_failed:count < 10
//	requests:count >= 1000
//	requests:rate > 100             requests per second
//	checks:rate > 0.99              pass rate across all checks
//	checks{Order placed}:rate == 1  pass rate of one named check
//	checks:fails == 0
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'req_duration:p95 < 500')", s)
	}
	metric, check, aggregate, operator, valueStr := matches[1], strings.TrimSpace(matches[2]), matches[3], matches[4], matches[5]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	allowed, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: req_duration, req_failed, requests, checks)", metric)
	}
	if check != "" && metric != MetricChecks {
		return Threshold{}, fmt.Errorf("metric %q does not take a check name", metric)
	}
	if !contains(allowed, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(allowed, ", "))
	}
	if !contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Check:     check,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every string, reporting all failures together.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

var aggregates = map[string][]string{
	MetricDuration: {"p50", "p90", "p95", "p99", "avg", "min", "max"},
	MetricFailed:   {"rate", "count"},
	MetricRequests: {"rate", "count"},
	MetricChecks:   {"rate", "passes", "fails"},
}

var operators = []string{"<", "<=", ">", ">=", "=="}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, stats metrics.Statistics) (float64, error) {
	switch t.Metric {
	case MetricDuration:
		return latencyValue(t.Aggregate, stats)
	case MetricFailed:
		if t.Aggregate == "count" {
			return float64(stats.Failures), nil
		}
		return stats.FailureRate(), nil
	case MetricRequests:
		if t.Aggregate == "count" {
			return float64(stats.Total), nil
		}
		return stats.RequestsPerSec, nil
	case MetricChecks:
		return checkValue(t, stats)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func latencyValue(aggregate string, stats metrics.Statistics) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p95":
		return stats.P95LatencyMs, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "avg":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for req_duration", aggregate)
	}
}

func checkValue(t Threshold, stats metrics.Statistics) (float64, error) {
	passes, fails, rate := stats.ChecksPassed, stats.ChecksFailed, stats.CheckPassRate()
	if t.Check != "" {
		cs, ok := stats.Check(t.Check)
		if !ok {
			return 0, fmt.Errorf("no check named %q", t.Check)
		}
		passes, fails, rate = cs.Passes, cs.Fails, cs.PassRate
	}
	switch t.Aggregate {
	case "passes":
		return float64(passes), nil
	case "fails":
		return float64(fails), nil
	default:
		return rate, nil
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
