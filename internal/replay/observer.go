package replay

import "context"

// Observer receives dispatch and completion events as they happen.
// Dispatched is called from the scheduling goroutine; Completed is called
// concurrently from request goroutines and must be safe for that.
type Observer interface {
	Dispatched(d DispatchRecord)
	Completed(r LatencyRecord)
}

type nopObserver struct{}

func (nopObserver) Dispatched(DispatchRecord) {}
func (nopObserver) Completed(LatencyRecord)   {}

type multiObserver []Observer

func (m multiObserver) Dispatched(d DispatchRecord) {
	for _, o := range m {
		o.Dispatched(d)
	}
}

func (m multiObserver) Completed(r LatencyRecord) {
	for _, o := range m {
		o.Completed(r)
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nopObserver{}
	case 1:
		return out[0]
	}
	return out
}

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(d DispatchRecord, resp Response)
}

type loggingExecutor struct {
	inner  Executor
	logger FailureLogger
}

// WithLogging wraps an Executor to log failures.
func WithLogging(exec Executor, logger FailureLogger) Executor {
	if logger == nil {
		return exec
	}
	return &loggingExecutor{inner: exec, logger: logger}
}

func (l *loggingExecutor) Execute(ctx context.Context, d DispatchRecord) Response {
	resp := l.inner.Execute(ctx, d)
	if resp.Err != nil {
		l.logger.LogFailure(d, resp)
	}
	return resp
}
