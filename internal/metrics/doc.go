// Package metrics aggregates replay events into live and final statistics.
//
// A [Collector] implements replay.Observer. It counts dispatches and
// completions, keeps HDR histograms of request latency and of schedule lag
// (how late each dispatch went out relative to its planned offset), and
// buckets failures by class and code:
//
//	collector := metrics.NewCollector()
//	collector.SetPlan(seq.Len(), seq.Total())
//	collector.Start()
//	// pass collector as (part of) replay.Options.Observer
//	stats := collector.Stats(collector.Elapsed())
//
// Failure classes are "replay" (UNRESOLVED, ABANDONED, PANIC), "check"
// (a response check rejected the body), "http" (status code) and
// "transport" (TIMEOUT, CANCELED or the error type name).
package metrics
