// Package replay drives an open-loop replay of an inter-arrival trace.
//
// A [Scheduler] walks a [trace.Sequence] and dispatches request i at
// start + d[0] + ... + d[i], measured against a single start instant taken
// before the first wait. Each dispatch runs on its own goroutine, so a slow
// response never delays the next send, and scheduling error never
// accumulates across iterations.
//
// # Basic Usage
//
//	s, err := replay.New(replay.Options{
//		Delays:   seq,
//		Executor: exec,
//		Observer: replay.Observers(collector, promExporter),
//		Logger:   logger,
//	})
//	if err != nil {
//		return err
//	}
//	result, err := s.Run(ctx)
//
// # Executor Interface
//
// The [Executor] performs one request and reports its own latency:
//
//	type Executor interface {
//		Execute(ctx context.Context, d DispatchRecord) Response
//	}
//
// Panics inside Execute are recovered and recorded as failures wrapping
// [ErrExecutorPanic].
//
// # Collection
//
// Every completion flows through one mutex-guarded collector that stores the
// record in its launch slot. Run returns only after every launched request
// resolved, or after a bounded wait:
//   - after the last dispatch, [Options.DrainTimeout] bounds the wait and
//     stragglers are recorded with [ErrUnresolved];
//   - after ctx is cancelled no further requests are dispatched,
//     [Options.GracePeriod] bounds the wait and stragglers are recorded with
//     [ErrAbandoned].
//
// In-flight requests run on a context detached from ctx so that an interrupt
// does not cut them short before the grace period ends. Once the records are
// sealed that context is cancelled; completions arriving afterwards are
// counted in [Result.Late] and otherwise ignored.
package replay
