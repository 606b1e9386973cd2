package replay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/tracefire/internal/trace"
)

const (
	DefaultGracePeriod  = 5 * time.Second
	DefaultDrainTimeout = 2 * time.Minute
	// reapTimeout bounds how long Run waits for cancelled tasks to return
	// after the records are sealed.
	reapTimeout = time.Second
)

// Executor performs a single request for a dispatch.
// Implementations report failures through Response.Err.
type Executor interface {
	Execute(ctx context.Context, d DispatchRecord) Response
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, d DispatchRecord) Response

func (f ExecutorFunc) Execute(ctx context.Context, d DispatchRecord) Response {
	return f(ctx, d)
}

// Options configure the Scheduler.
type Options struct {
	Delays       trace.Sequence // inter-arrival delays, in playback order
	Executor     Executor       // request executor (required)
	Observer     Observer       // optional live hook, called concurrently
	GracePeriod  time.Duration  // wait for in-flight requests after an interrupt (0 means default, negative means none)
	DrainTimeout time.Duration  // wait for in-flight requests after the last dispatch (0 means default)
	Logger       *zap.Logger
}

func (o *Options) normalize() error {
	if o.Executor == nil {
		return ErrNoExecutor
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	switch {
	case o.GracePeriod == 0:
		o.GracePeriod = DefaultGracePeriod
	case o.GracePeriod < 0:
		o.GracePeriod = 0
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}
