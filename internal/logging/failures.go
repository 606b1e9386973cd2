package logging

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/tracefire/internal/replay"
)

const (
	defaultFailuresPerSecond = 10
	defaultFailureBurst      = 20
)

// FailureLogger writes one line per failed request, throttled so that a
// target that fails every request cannot flood stderr. Suppressed lines are
// counted and reported with the next line that gets through.
type FailureLogger struct {
	log        *zap.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// NewFailureLogger returns a FailureLogger allowing perSecond lines per
// second with the given burst. Non-positive values select defaults.
func NewFailureLogger(log *zap.Logger, perSecond float64, burst int) *FailureLogger {
	if log == nil {
		log = zap.NewNop()
	}
	if perSecond <= 0 {
		perSecond = defaultFailuresPerSecond
	}
	if burst <= 0 {
		burst = defaultFailureBurst
	}
	return &FailureLogger{
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (f *FailureLogger) LogFailure(d replay.DispatchRecord, resp replay.Response) {
	if resp.Err == nil {
		return
	}
	if !f.limiter.Allow() {
		f.suppressed.Add(1)
		return
	}
	fields := []zap.Field{
		zap.Int("index", d.Index),
		zap.Duration("offset", d.Offset),
		zap.Duration("latency", resp.Latency),
		zap.Error(resp.Err),
	}
	var httpErr *replay.HTTPError
	if errors.As(resp.Err, &httpErr) {
		fields = append(fields, zap.Int("status", httpErr.StatusCode))
	}
	if n := f.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Int64("suppressed", n))
	}
	f.log.Warn("request failed", fields...)
}

// Suppressed returns how many failures were dropped since the last logged one.
func (f *FailureLogger) Suppressed() int64 {
	return f.suppressed.Load()
}

// Flush logs a summary line for failures still suppressed at the end of a run.
func (f *FailureLogger) Flush() {
	if n := f.suppressed.Swap(0); n > 0 {
		f.log.Warn("additional request failures not logged", zap.Int64("suppressed", n))
	}
}
