package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatProgress(t *testing.T) {
	line := formatProgress(metrics.LiveStats{
		Requests:     200,
		Failures:     4,
		ChecksPassed: 190,
		ChecksFailed: 10,
		ActiveVUs:    10,
		Elapsed:      2*time.Second + 300*time.Millisecond,
	})

	for _, want := range []string{"Requests: 200", "Failures: 4", "VUs: 10", "Elapsed: 2s", "Checks: 95.0%"} {
		if !strings.Contains(line, want) {
			t.Errorf("progress line %q missing %q", line, want)
		}
	}
	if !strings.HasPrefix(line, "\r") {
		t.Errorf("progress line should rewrite the current line: %q", line)
	}
}

func TestFormatProgressWithoutChecks(t *testing.T) {
	line := formatProgress(metrics.LiveStats{})
	if strings.Contains(line, "Checks:") {
		t.Errorf("progress line %q should omit checks", line)
	}
	if !strings.Contains(line, "RPS: 0.0") {
		t.Errorf("progress line %q should report zero rps", line)
	}
}

func TestProgressReporterWritesFromRecorder(t *testing.T) {
	rec := metrics.NewRecorder(1, nil)
	rec.Start()
	rec.WorkerStarted()
	for i := 0; i < 5; i++ {
		rec.Record(metrics.Outcome{StatusCode: 201, Latency: time.Millisecond})
	}

	var buf syncBuffer
	reporter := NewProgressReporter(rec, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(80 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	out := buf.String()
	if !strings.Contains(out, "Requests: 5") {
		t.Errorf("output %q missing request count", out)
	}
	if !strings.Contains(out, "VUs: 1") {
		t.Errorf("output %q missing active VUs", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("output should end with a newline after Stop: %q", out)
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(metrics.NewRecorder(1, nil), time.Hour, &buf)
	reporter.Stop()
	if buf.Len() != 0 {
		t.Errorf("Stop() without output wrote %q", buf.String())
	}
}

type countingSource struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSource) Live() metrics.LiveStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return metrics.LiveStats{}
}

func (c *countingSource) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestProgressReporterIdleUntilStart(t *testing.T) {
	source := &countingSource{}
	var buf syncBuffer
	reporter := NewProgressReporter(source, 5*time.Millisecond, &buf)

	time.Sleep(50 * time.Millisecond)
	if got := source.Calls(); got != 0 {
		t.Fatalf("Live() called %d times before Start", got)
	}

	reporter.Start()
	deadline := time.Now().Add(2 * time.Second)
	for source.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	reporter.Stop()
	if source.Calls() == 0 {
		t.Error("Live() never called after Start")
	}
}
