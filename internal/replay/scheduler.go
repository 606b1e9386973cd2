package replay

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler replays a delay sequence open loop.
type Scheduler struct {
	opt Options
	log *zap.Logger
}

func New(opt Options) (*Scheduler, error) {
	if err := opt.normalize(); err != nil {
		return nil, err
	}
	return &Scheduler{opt: opt, log: opt.Logger}, nil
}

// Run dispatches one request per delay and returns once every dispatched
// request resolved or was recorded as unresolved. Cancelling ctx stops
// scheduling; the partial Result is still returned with Interrupted set and a
// nil error.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	if s == nil || s.opt.Executor == nil {
		return Result{}, ErrNoExecutor
	}
	if ctx == nil {
		ctx = context.Background()
	}

	n := s.opt.Delays.Len()
	col := newCollector(n, s.opt.Observer)
	dispatches := make([]DispatchRecord, 0, n)

	// Requests outlive an interrupt until the grace period ends.
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	var tasks sync.WaitGroup
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	result := Result{Planned: n, Start: time.Now()}
	start := result.Start
	last := start
	var cumulative float64

	s.log.Info("replay starting", zap.Int("requests", n))

	for i := 0; i < n; i++ {
		cumulative += s.opt.Delays.At(i)
		scheduled := secondsToDuration(cumulative)

		if wait := time.Until(start.Add(scheduled)); wait > 0 {
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			select {
			case <-ctx.Done():
				result.Interrupted = true
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			result.Interrupted = true
		}
		if result.Interrupted {
			break
		}

		now := time.Now()
		d := DispatchRecord{
			Index:        i,
			Scheduled:    scheduled,
			DispatchedAt: now,
			Offset:       now.Sub(start),
			Gap:          now.Sub(last),
		}
		last = now
		dispatches = append(dispatches, d)
		s.opt.Observer.Dispatched(d)

		col.launch()
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			col.complete(newLatencyRecord(d, s.execute(execCtx, d)))
		}()
	}
	col.closeLaunching()

	cause := s.drain(ctx, col, &result, len(dispatches))

	records, filled := col.seal(dispatches, cause)
	cancelExec()
	reap(&tasks, reapTimeout)

	result.End = time.Now()
	result.Dispatches = dispatches
	result.Records = records
	result.Late = col.lateCount()
	switch cause {
	case ErrAbandoned:
		result.Abandoned = filled
	case ErrUnresolved:
		result.Unresolved = filled
	}
	for _, rec := range records {
		if !rec.Success() {
			result.Failed++
		}
	}

	s.log.Info("replay finished",
		zap.Int("launched", result.Launched()),
		zap.Int("failed", result.Failed),
		zap.Bool("interrupted", result.Interrupted),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

// drain waits for launched requests and returns the error to record for any
// that did not resolve in time.
func (s *Scheduler) drain(ctx context.Context, col *collector, result *Result, launched int) error {
	if !result.Interrupted {
		resolved, interrupted := col.wait(s.opt.DrainTimeout, ctx.Done())
		if resolved {
			return nil
		}
		if !interrupted {
			s.log.Warn("drain timeout expired with requests in flight",
				zap.Duration("drain_timeout", s.opt.DrainTimeout),
				zap.Int("launched", launched),
			)
			return ErrUnresolved
		}
		result.Interrupted = true
	}

	s.log.Warn("replay interrupted, waiting for in-flight requests",
		zap.Int("launched", launched),
		zap.Int("planned", result.Planned),
		zap.Duration("grace_period", s.opt.GracePeriod),
	)
	if resolved, _ := col.wait(s.opt.GracePeriod, nil); resolved {
		return nil
	}
	s.log.Warn("grace period expired, abandoning in-flight requests")
	return ErrAbandoned
}

func (s *Scheduler) execute(ctx context.Context, d DispatchRecord) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("executor panicked", zap.Int("index", d.Index), zap.Any("panic", r))
			resp = Response{Err: fmt.Errorf("%w: %v", ErrExecutorPanic, r)}
		}
	}()
	return s.opt.Executor.Execute(ctx, d)
}

func reap(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
}

func secondsToDuration(s float64) time.Duration {
	ns := s * float64(time.Second)
	if ns > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}
