package runner

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/vuload/internal/config"
)

// pacer spaces the iterations of one worker. It is not shared between workers.
type pacer interface {
	Wait(ctx context.Context) error
}

func newPacer(model config.ArrivalModel, interval time.Duration, sample func() float64) pacer {
	if interval <= 0 {
		return closedLoop{}
	}
	if model == config.ArrivalModelPoisson {
		return &poissonPacer{mean: interval, sample: sample, now: time.Now}
	}
	// Burst 1: the first iteration starts immediately, each later one waits
	// for the rest of the interval measured from the previous start.
	return &uniformPacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

type closedLoop struct{}

func (closedLoop) Wait(context.Context) error { return nil }

// uniformPacer delegates spacing to a rate.Limiter.
type uniformPacer struct {
	limiter *rate.Limiter
}

func (u *uniformPacer) Wait(ctx context.Context) error {
	return u.limiter.Wait(ctx)
}

// poissonPacer draws exponential gaps between iteration starts, so the starts of
// one worker form a Poisson process with the configured mean interval.
type poissonPacer struct {
	mean   time.Duration
	sample func() float64
	now    func() time.Time
	next   time.Time
}

func (p *poissonPacer) Wait(ctx context.Context) error {
	now := p.now()
	if p.next.IsZero() {
		p.next = now.Add(p.gap())
		return nil
	}
	delay := p.next.Sub(now)
	if delay < 0 {
		p.next = now
		delay = 0
	}
	p.next = p.next.Add(p.gap())
	if delay == 0 {
		return ctx.Err()
	}
	return sleep(ctx, delay)
}

func (p *poissonPacer) gap() time.Duration {
	g := float64(p.mean) * p.sample()
	if g > math.MaxInt64 {
		g = math.MaxInt64
	}
	return time.Duration(g)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// newSampler returns a seeded exponential sampler. Seed zero picks a time-based seed.
func newSampler(seed int64) func() float64 {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed)).ExpFloat64
}

// newRateCap returns a limiter shared by all workers, or nil when rps is zero.
func newRateCap(rps int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
