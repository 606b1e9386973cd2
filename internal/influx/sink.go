// Package influx writes one InfluxDB 3 point per replayed request.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/influxdb3"
	"go.uber.org/zap"

	"github.com/torosent/tracefire/internal/config"
	"github.com/torosent/tracefire/internal/metrics"
	"github.com/torosent/tracefire/internal/replay"
)

const (
	writeBatchSize = 5000
	queuedBatches  = 16
	writeTimeout   = 10 * time.Second
)

type pointWriter interface {
	WritePoints(ctx context.Context, points []*influxdb3.Point, options ...influxdb3.WriteOption) error
	Close() error
}

// Sink is a replay.Observer that batches completed records into points and
// writes them from a single background goroutine. A full queue drops the
// batch rather than stalling request goroutines.
type Sink struct {
	w           pointWriter
	measurement string
	runID       string
	target      string
	log         *zap.Logger

	mu      sync.Mutex
	pending []*influxdb3.Point
	closed  bool

	batches chan []*influxdb3.Point
	done    chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// New connects to the database named in cfg.
func New(cfg config.InfluxConfig, runID, target string, log *zap.Logger) (*Sink, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     cfg.Host,
		Token:    cfg.Token,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("influx client: %w", err)
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = config.DefaultMeasurement
	}
	return newSink(client, measurement, runID, target, log), nil
}

func newSink(w pointWriter, measurement, runID, target string, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sink{
		w:           w,
		measurement: measurement,
		runID:       runID,
		target:      target,
		log:         log,
		pending:     make([]*influxdb3.Point, 0, writeBatchSize),
		batches:     make(chan []*influxdb3.Point, queuedBatches),
		done:        make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

func (s *Sink) Dispatched(replay.DispatchRecord) {}

func (s *Sink) Completed(r replay.LatencyRecord) {
	p := s.point(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	s.pending = append(s.pending, p)
	if len(s.pending) >= writeBatchSize {
		s.enqueueLocked()
	}
}

func (s *Sink) point(r replay.LatencyRecord) *influxdb3.Point {
	tags := map[string]string{
		"run_id":  s.runID,
		"target":  s.target,
		"success": strconv.FormatBool(r.Success()),
	}
	fields := map[string]any{
		"index":      int64(r.Index),
		"offset_ms":  float64(r.Offset) / float64(time.Millisecond),
		"latency_ms": float64(r.Latency) / float64(time.Millisecond),
		"bytes_read": r.BytesRead,
	}
	if r.StatusCode > 0 {
		fields["status_code"] = int64(r.StatusCode)
	}
	if r.Err != nil {
		class, code := metrics.Classify(r)
		tags["class"] = class
		tags["code"] = code
		fields["error"] = r.Err.Error()
	}
	return influxdb3.NewPoint(s.measurement, tags, fields, r.DispatchedAt)
}

func (s *Sink) enqueueLocked() {
	if len(s.pending) == 0 {
		return
	}
	batch := s.pending
	s.pending = make([]*influxdb3.Point, 0, writeBatchSize)
	select {
	case s.batches <- batch:
	default:
		s.dropped.Add(int64(len(batch)))
	}
}

func (s *Sink) flushLoop() {
	defer close(s.done)
	for batch := range s.batches {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.w.WritePoints(ctx, batch)
		cancel()
		if err != nil {
			s.failed.Add(int64(len(batch)))
			s.log.Warn("influx write failed", zap.Int("points", len(batch)), zap.Error(err))
			continue
		}
		s.written.Add(int64(len(batch)))
	}
}

// Close writes any pending points, waits for queued batches until ctx is
// done and closes the client.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		// The flusher keeps draining, so this send cannot block for long.
		select {
		case s.batches <- batch:
		case <-ctx.Done():
			s.dropped.Add(int64(len(batch)))
		}
	}
	close(s.batches)
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.log.Warn("influx flush interrupted", zap.Error(ctx.Err()))
	}
	if n := s.dropped.Load(); n > 0 {
		s.log.Warn("influx points dropped", zap.Int64("points", n))
	}
	s.log.Debug("influx sink closed",
		zap.Int64("written", s.written.Load()),
		zap.Int64("failed", s.failed.Load()))
	return s.w.Close()
}

// Written reports how many points were accepted by the server.
func (s *Sink) Written() int64 {
	return s.written.Load()
}

// Dropped reports how many points never reached the writer.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}
