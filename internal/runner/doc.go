// Package runner drives a load test: a Scheduler spawns one Worker per virtual
// user, gates them all on a shared Clock, and drains them when the clock expires.
//
// # Basic Usage
//
//	sched := runner.New(runner.Options{
//		Generator: gen,
//		Transport: tr,
//		Checks:    checks,
//		Logger:    logger,
//	})
//	stats, err := sched.Run(ctx, cfg)
//
// Run validates the load shape first and returns a config.ValidationError before
// any worker starts.
//
// # Lifecycle
//
// A Scheduler moves Idle -> Running -> Draining -> Completed exactly once. Workers
// only begin requests while Running. When the clock expires (or the parent context
// is cancelled) the scheduler cancels every worker; requests already in flight may
// finish within the grace period. Workers still busy after that are abandoned and
// their late outcomes discarded.
//
// # Pacing
//
// Workers run closed loop by default. With a pacing interval each worker waits out
// the rest of the interval before its next iteration, either at a fixed cadence
// (uniform) or with exponentially distributed gaps (poisson). A global rate cap is
// shared by all workers.
package runner
