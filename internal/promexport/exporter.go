// Package promexport exposes live replay metrics in the Prometheus text
// format while a replay runs.
package promexport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/torosent/tracefire/internal/metrics"
	"github.com/torosent/tracefire/internal/replay"
)

const namespace = "tracefire"

// Exporter is a replay.Observer backed by its own Prometheus registry.
type Exporter struct {
	registry   *prometheus.Registry
	planned    prometheus.Gauge
	dispatched prometheus.Counter
	inFlight   prometheus.Gauge
	completed  *prometheus.CounterVec
	latency    prometheus.Histogram
	lag        prometheus.Histogram
	bytesRead  prometheus.Counter
}

func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		planned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "planned_requests",
			Help:      "Requests scheduled by the trace",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_total",
			Help:      "Requests sent so far",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_requests",
			Help:      "Requests sent but not yet resolved",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completed_total",
			Help:      "Resolved requests by outcome and failure class",
		}, []string{"outcome", "class", "code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schedule_lag_seconds",
			Help:      "How late each dispatch left relative to its planned offset",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Response body bytes read",
		}),
	}
	e.registry.MustRegister(e.planned, e.dispatched, e.inFlight, e.completed, e.latency, e.lag, e.bytesRead)
	return e
}

func (e *Exporter) SetPlanned(n int) {
	e.planned.Set(float64(n))
}

func (e *Exporter) Dispatched(d replay.DispatchRecord) {
	e.dispatched.Inc()
	e.inFlight.Inc()
	lag := d.Lag()
	if lag < 0 {
		lag = 0
	}
	e.lag.Observe(lag.Seconds())
}

func (e *Exporter) Completed(r replay.LatencyRecord) {
	e.inFlight.Dec()
	e.bytesRead.Add(float64(r.BytesRead))
	if r.Latency > 0 {
		e.latency.Observe(r.Latency.Seconds())
	}
	if r.Err == nil {
		e.completed.WithLabelValues("success", "", "").Inc()
		return
	}
	class, code := metrics.Classify(r)
	e.completed.WithLabelValues("failure", class, code).Inc()
}

// Registry returns the registry holding the replay metrics.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	return mux
}

// Listen binds the metrics address. It runs before the replay so a taken or
// malformed address is rejected before anything is dispatched.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics endpoint: %w", err)
	}
	return ln, nil
}

// Serve answers on ln until ctx is done, then shuts the server down. The
// listener is closed when Serve returns.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
