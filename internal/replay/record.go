package replay

import "time"

// DispatchRecord describes one send as observed by the scheduler.
type DispatchRecord struct {
	Index        int
	Scheduled    time.Duration // planned offset from run start
	DispatchedAt time.Time     // monotonic instant of the send
	Offset       time.Duration // actual offset from run start
	Gap          time.Duration // time since the previous dispatch (or run start)
}

// Lag is how late the dispatch went out relative to its plan.
func (d DispatchRecord) Lag() time.Duration {
	return d.Offset - d.Scheduled
}

// Response is what an Executor reports for one request.
type Response struct {
	StatusCode int
	Latency    time.Duration
	BytesRead  int64
	Err        error
}

// LatencyRecord is the outcome of one dispatch. DispatchedAt and Offset are
// always the scheduler's, never the executor's own start instant.
type LatencyRecord struct {
	Index        int
	DispatchedAt time.Time
	Offset       time.Duration
	Latency      time.Duration
	StatusCode   int
	BytesRead    int64
	Err          error
}

func (r LatencyRecord) Success() bool {
	return r.Err == nil
}

func newLatencyRecord(d DispatchRecord, resp Response) LatencyRecord {
	return LatencyRecord{
		Index:        d.Index,
		DispatchedAt: d.DispatchedAt,
		Offset:       d.Offset,
		Latency:      resp.Latency,
		StatusCode:   resp.StatusCode,
		BytesRead:    resp.BytesRead,
		Err:          resp.Err,
	}
}

// Result is the outcome of a replay. Dispatches and Records are both in launch
// order and have the same length.
type Result struct {
	Start       time.Time
	End         time.Time
	Planned     int
	Dispatches  []DispatchRecord
	Records     []LatencyRecord
	Failed      int
	Unresolved  int
	Abandoned   int
	Late        int
	Interrupted bool
}

// Launched returns the number of requests that were dispatched.
func (r Result) Launched() int {
	return len(r.Dispatches)
}

func (r Result) Succeeded() int {
	return len(r.Records) - r.Failed
}

// Duration is the wall time from the first scheduling instant to the last
// resolution.
func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
