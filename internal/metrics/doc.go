// Package metrics records per-request outcomes and aggregates them into run statistics.
//
// The central [Recorder] is sharded by worker slot: each virtual user writes to its
// own shard, guarded by its own mutex and HDR histogram, so recording never contends
// on a global lock.
//
//	rec := metrics.NewRecorder(vus, checkNames)
//	rec.Start()
//	rec.Record(metrics.Outcome{Worker: 3, StatusCode: 201, Latency: 140 * time.Millisecond})
//	rec.Seal()
//	stats := rec.Snapshot()
//
// [Recorder.Snapshot] merges every shard into a consistent [Statistics]. Once the
// recorder is sealed the snapshot is cached and later calls return the same value.
// Outcomes recorded after sealing (from workers abandoned after the grace period)
// are discarded and counted in [Statistics.Discarded].
//
// # Live view
//
// [Recorder.Live] reads atomic counters without touching any shard lock and is meant
// for progress output while a run is in flight.
//
// # Observers
//
// An [Observer] sees every recorded outcome. [PrometheusObserver] exports request,
// check and latency series for scraping during a run.
package metrics
