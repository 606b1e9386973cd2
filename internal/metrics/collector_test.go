package metrics_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/torosent/tracefire/internal/metrics"
	"github.com/torosent/tracefire/internal/replay"
)

func complete(c *metrics.Collector, index int, latency time.Duration, err error) {
	c.Dispatched(replay.DispatchRecord{Index: index})
	c.Completed(replay.LatencyRecord{Index: index, Latency: latency, Err: err})
}

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	for i, ms := range []int{10, 20, 30, 40, 50} {
		complete(c, i, time.Duration(ms)*time.Millisecond, nil)
	}

	stats := c.Stats(0)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
	if stats.InFlight != 0 {
		t.Errorf("expected nothing in flight, got %d", stats.InFlight)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 samples: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		complete(c, i, time.Duration(i)*time.Millisecond, nil)
	}

	stats := c.Stats(0)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestScheduleLag(t *testing.T) {
	c := metrics.NewCollector()
	c.SetPlan(3, 300*time.Millisecond)

	c.Dispatched(replay.DispatchRecord{Index: 0, Scheduled: 100 * time.Millisecond, Offset: 101 * time.Millisecond})
	c.Dispatched(replay.DispatchRecord{Index: 1, Scheduled: 200 * time.Millisecond, Offset: 210 * time.Millisecond})

	stats := c.Stats(250 * time.Millisecond)
	if stats.Planned != 3 || stats.Dispatched != 2 {
		t.Fatalf("planned/dispatched = %d/%d, want 3/2", stats.Planned, stats.Dispatched)
	}
	if stats.InFlight != 2 {
		t.Errorf("expected 2 in flight, got %d", stats.InFlight)
	}
	if stats.MaxLag != 10*time.Millisecond {
		t.Errorf("expected max lag 10ms, got %s", stats.MaxLag)
	}
	if stats.P99Lag < 9*time.Millisecond || stats.P99Lag > 11*time.Millisecond {
		t.Errorf("expected p99 lag ~10ms, got %s", stats.P99Lag)
	}
	if stats.LastOffset != 210*time.Millisecond {
		t.Errorf("expected last offset 210ms, got %s", stats.LastOffset)
	}
	if got := stats.Progress(); got < 0.66 || got > 0.67 {
		t.Errorf("expected progress ~2/3, got %v", got)
	}
	if stats.PlannedLength != 300*time.Millisecond {
		t.Errorf("expected planned length 300ms, got %s", stats.PlannedLength)
	}
}

func TestFailuresAreBucketed(t *testing.T) {
	c := metrics.NewCollector()
	complete(c, 0, 5*time.Millisecond, nil)
	c.Dispatched(replay.DispatchRecord{Index: 1})
	c.Completed(replay.LatencyRecord{Index: 1, Latency: 7 * time.Millisecond, StatusCode: 503, Err: &replay.HTTPError{StatusCode: 503}})
	c.Dispatched(replay.DispatchRecord{Index: 2})
	c.Completed(replay.LatencyRecord{Index: 2, Err: replay.ErrUnresolved})

	stats := c.Stats(time.Second)
	if stats.Failures != 2 || stats.Successes != 1 {
		t.Fatalf("successes/failures = %d/%d, want 1/2", stats.Successes, stats.Failures)
	}
	if stats.StatusBuckets["http"]["503"] != 1 {
		t.Errorf("expected one http/503 bucket, got %v", stats.StatusBuckets)
	}
	if stats.StatusBuckets["replay"]["UNRESOLVED"] != 1 {
		t.Errorf("expected one replay/UNRESOLVED bucket, got %v", stats.StatusBuckets)
	}
	if stats.Errors["HTTP error response"] != 1 || stats.Errors["Unresolved at drain timeout"] != 1 {
		t.Errorf("unexpected error breakdown: %v", stats.Errors)
	}
	// Unresolved records carry no latency and stay out of the histogram.
	if stats.MinLatency != 5*time.Millisecond || stats.MaxLatency != 7*time.Millisecond {
		t.Errorf("latency range = %s..%s, want 5ms..7ms", stats.MinLatency, stats.MaxLatency)
	}
	if stats.RequestsPerSec != 3 {
		t.Errorf("expected 3 req/s, got %v", stats.RequestsPerSec)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()

	complete(c, 0, 15*time.Millisecond, nil)
	complete(c, 1, 25*time.Millisecond, &replay.HTTPError{StatusCode: 500})

	stats := c.Stats(100 * time.Millisecond)

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{
		"planned", "dispatched", "total", "successes", "failures",
		"min_latency_ms", "max_latency_ms", "mean_latency_ms",
		"p50_latency_ms", "p90_latency_ms", "p99_latency_ms",
		"p99_schedule_lag_ms", "max_schedule_lag_ms",
		"duration_ms", "requests_per_sec", "errors", "status_buckets",
	}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	workers := 10
	recordsPerWorker := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(w int) {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				complete(c, w*recordsPerWorker+j, time.Millisecond, nil)
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats(0)
	expected := workers * recordsPerWorker
	if stats.Total != int64(expected) {
		t.Errorf("expected total %d, got %d", expected, stats.Total)
	}
	if stats.Dispatched != int64(expected) {
		t.Errorf("expected dispatched %d, got %d", expected, stats.Dispatched)
	}
}
