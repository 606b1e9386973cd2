package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/torosent/tracefire/internal/metrics"
)

// ProgressReporter rewrites a single status line on every tick while a
// replay runs.
type ProgressReporter struct {
	collector *metrics.Collector
	interval  time.Duration
	w         io.Writer
	start     time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
}

func NewProgressReporter(collector *metrics.Collector, interval time.Duration, w io.Writer) *ProgressReporter {
	if w == nil {
		w = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		collector: collector,
		interval:  interval,
		w:         w,
		start:     time.Now(),
		started:   make(chan struct{}),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start launches the ticker goroutine. Later calls do nothing.
func (p *ProgressReporter) Start() {
	p.startOnce.Do(func() {
		close(p.started)
		go p.loop()
	})
}

// Stop ends the ticker and terminates the line with a final snapshot. It is
// a no-op when Start was never called.
func (p *ProgressReporter) Stop() {
	select {
	case <-p.started:
	default:
		return
	}
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.stopped
		fmt.Fprintln(p.w, p.line())
	})
}

func (p *ProgressReporter) loop() {
	defer close(p.stopped)
	tick := time.NewTicker(p.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			fmt.Fprint(p.w, p.line())
		case <-p.stop:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	s := p.collector.Stats(time.Since(p.start))
	return fmt.Sprintf("\rDispatched: %d/%d (%.0f%%) | In flight: %d | Done: %d | Failures: %d | Lag p99: %.1fms | RPS: %.1f",
		s.Dispatched, s.Planned, s.Progress()*100, s.InFlight, s.Total, s.Failures, s.P99LagMs, s.RequestsPerSec)
}
