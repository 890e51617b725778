package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

// LiveSource exposes in-flight counters. *metrics.Recorder satisfies it.
type LiveSource interface {
	Live() metrics.LiveStats
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   LiveSource
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	printed  atomic.Bool
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source LiveSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
	}
	if p.printed.Load() {
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, formatProgress(p.source.Live()))
			p.printed.Store(true)
		case <-p.done:
			return
		}
	}
}

func formatProgress(live metrics.LiveStats) string {
	rps := 0.0
	if secs := live.Elapsed.Seconds(); secs > 0 {
		rps = float64(live.Requests) / secs
	}
	line := fmt.Sprintf("\rRequests: %d | Failures: %d | VUs: %d | RPS: %.1f | Elapsed: %s",
		live.Requests, live.Failures, live.ActiveVUs, rps, live.Elapsed.Truncate(time.Second))
	if checks := live.ChecksPassed + live.ChecksFailed; checks > 0 {
		line += fmt.Sprintf(" | Checks: %.1f%%", float64(live.ChecksPassed)/float64(checks)*100)
	}
	return line
}
