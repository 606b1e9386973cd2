package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/tracefire/internal/replay"
)

// Collector aggregates dispatch and completion events from a replay. It
// implements replay.Observer and is safe for concurrent use.
type Collector struct {
	mu            sync.Mutex
	latency       *hdrhistogram.Histogram
	lag           *hdrhistogram.Histogram
	planned       int64
	plannedLength time.Duration
	dispatched    int64
	successes     int64
	failures      int64
	bytesRead     int64
	minLatency    time.Duration
	maxLatency    time.Duration
	sumLatency    time.Duration
	maxLag        time.Duration
	lastOffset    time.Duration
	errorsByType  map[string]int64
	statusBuckets map[string]map[string]int
	start         time.Time
}

// Stats represents aggregated metrics.
type Stats struct {
	Planned        int64         `json:"planned"`
	Dispatched     int64         `json:"dispatched"`
	InFlight       int64         `json:"in_flight"`
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	BytesRead      int64         `json:"bytes_read"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	P50Lag         time.Duration `json:"-"`
	P90Lag         time.Duration `json:"-"`
	P99Lag         time.Duration `json:"-"`
	MaxLag         time.Duration `json:"-"`
	LastOffset     time.Duration `json:"-"`
	PlannedLength  time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	DispatchRate   float64       `json:"dispatch_rate"`

	// JSON-friendly millisecond fields.
	MinLatencyMs    float64                   `json:"min_latency_ms"`
	MaxLatencyMs    float64                   `json:"max_latency_ms"`
	MeanLatencyMs   float64                   `json:"mean_latency_ms"`
	P50LatencyMs    float64                   `json:"p50_latency_ms"`
	P90LatencyMs    float64                   `json:"p90_latency_ms"`
	P99LatencyMs    float64                   `json:"p99_latency_ms"`
	P50LagMs        float64                   `json:"p50_schedule_lag_ms"`
	P90LagMs        float64                   `json:"p90_schedule_lag_ms"`
	P99LagMs        float64                   `json:"p99_schedule_lag_ms"`
	MaxLagMs        float64                   `json:"max_schedule_lag_ms"`
	PlannedLengthMs float64                   `json:"planned_length_ms"`
	DurationMs      float64                   `json:"duration_ms"`
	Errors          map[string]int            `json:"errors,omitempty"`
	StatusBuckets   map[string]map[string]int `json:"status_buckets,omitempty"`
}

// Progress is the fraction of planned requests already dispatched.
func (s Stats) Progress() float64 {
	if s.Planned <= 0 {
		return 0
	}
	p := float64(s.Dispatched) / float64(s.Planned)
	if p > 1 {
		return 1
	}
	return p
}

func NewCollector() *Collector {
	// Track latencies and lag from 1µs up to 60s with 3 significant figures.
	return &Collector{
		latency:       hdrhistogram.New(1, 60_000_000, 3),
		lag:           hdrhistogram.New(1, 60_000_000, 3),
		errorsByType:  make(map[string]int64),
		statusBuckets: make(map[string]map[string]int),
		start:         time.Now(),
	}
}

// SetPlan records how many requests the trace schedules and the planned
// offset of the last one.
func (c *Collector) SetPlan(requests int, length time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.planned = int64(requests)
	c.plannedLength = length
}

// Start marks the beginning of the replay for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Dispatched records one send and its schedule lag.
func (c *Collector) Dispatched(d replay.DispatchRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dispatched++
	if d.Offset > c.lastOffset {
		c.lastOffset = d.Offset
	}
	lag := d.Lag()
	if lag < 0 {
		lag = 0
	}
	recordDuration(c.lag, lag)
	if lag > c.maxLag {
		c.maxLag = lag
	}
}

// Completed records the outcome of one request.
func (c *Collector) Completed(r replay.LatencyRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bytesRead += r.BytesRead
	if r.Latency > 0 {
		recordDuration(c.latency, r.Latency)
		c.sumLatency += r.Latency
		if c.minLatency == 0 || r.Latency < c.minLatency {
			c.minLatency = r.Latency
		}
		if r.Latency > c.maxLatency {
			c.maxLatency = r.Latency
		}
	}

	if r.Err == nil {
		c.successes++
		return
	}
	c.failures++
	c.errorsByType[errorLabel(r.Err)]++

	class, code := Classify(r)
	codes := c.statusBuckets[class]
	if codes == nil {
		codes = make(map[string]int)
		c.statusBuckets[class] = codes
	}
	codes[code]++
}

func recordDuration(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Planned:       c.planned,
		Dispatched:    c.dispatched,
		InFlight:      c.dispatched - total,
		Total:         total,
		Successes:     c.successes,
		Failures:      c.failures,
		BytesRead:     c.bytesRead,
		MinLatency:    c.minLatency,
		MaxLatency:    c.maxLatency,
		MaxLag:        c.maxLag,
		LastOffset:    c.lastOffset,
		PlannedLength: c.plannedLength,
		P50Latency:    quantile(c.latency, 50),
		P90Latency:    quantile(c.latency, 90),
		P99Latency:    quantile(c.latency, 99),
		P50Lag:        quantile(c.lag, 50),
		P90Lag:        quantile(c.lag, 90),
		P99Lag:        quantile(c.lag, 99),
	}
	if stats.InFlight < 0 {
		stats.InFlight = 0
	}
	if n := c.latency.TotalCount(); n > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / n)
	}

	stats.MinLatencyMs = millis(stats.MinLatency)
	stats.MaxLatencyMs = millis(stats.MaxLatency)
	stats.MeanLatencyMs = millis(stats.MeanLatency)
	stats.P50LatencyMs = millis(stats.P50Latency)
	stats.P90LatencyMs = millis(stats.P90Latency)
	stats.P99LatencyMs = millis(stats.P99Latency)
	stats.P50LagMs = millis(stats.P50Lag)
	stats.P90LagMs = millis(stats.P90Lag)
	stats.P99LagMs = millis(stats.P99Lag)
	stats.MaxLagMs = millis(stats.MaxLag)
	stats.PlannedLengthMs = millis(stats.PlannedLength)

	stats.Duration = elapsed
	stats.DurationMs = millis(elapsed)
	if elapsed > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
		stats.DispatchRate = float64(c.dispatched) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}
	if len(c.statusBuckets) > 0 {
		stats.StatusBuckets = make(map[string]map[string]int, len(c.statusBuckets))
		for class, codes := range c.statusBuckets {
			cp := make(map[string]int, len(codes))
			for code, n := range codes {
				cp[code] = n
			}
			stats.StatusBuckets[class] = cp
		}
	}

	return stats
}
