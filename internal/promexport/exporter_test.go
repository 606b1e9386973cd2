package promexport_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/torosent/tracefire/internal/promexport"
	"github.com/torosent/tracefire/internal/replay"
)

func TestExporterCountsReplayEvents(t *testing.T) {
	e := promexport.New()
	e.SetPlanned(3)

	for i := 0; i < 3; i++ {
		e.Dispatched(replay.DispatchRecord{Index: i, Scheduled: 0, Offset: time.Millisecond})
	}
	e.Completed(replay.LatencyRecord{Index: 0, Latency: 20 * time.Millisecond, BytesRead: 10})
	e.Completed(replay.LatencyRecord{Index: 1, Latency: 30 * time.Millisecond, StatusCode: 503, Err: &replay.HTTPError{StatusCode: 503}})

	if got := testutil.CollectAndCount(e.Registry(), "tracefire_dispatched_total"); got != 1 {
		t.Fatalf("expected one dispatched series, got %d", got)
	}

	body := scrape(t, e.Handler())
	for _, want := range []string{
		"tracefire_planned_requests 3",
		"tracefire_dispatched_total 3",
		"tracefire_in_flight_requests 1",
		"tracefire_response_bytes_total 10",
		`tracefire_completed_total{class="",code="",outcome="success"} 1`,
		`tracefire_completed_total{class="http",code="503",outcome="failure"} 1`,
		"tracefire_request_latency_seconds_count 2",
		"tracefire_schedule_lag_seconds_count 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in scrape output", want)
		}
	}
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(raw)
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := promexport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	exp := promexport.New()
	exp.SetPlanned(3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- promexport.Serve(ctx, ln, exp.Handler(), nil)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d", resp.StatusCode)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListenRejectsTakenAddress(t *testing.T) {
	held, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer held.Close()

	for _, addr := range []string{"not-an-address", held.Addr().String()} {
		if ln, err := promexport.Listen(addr); err == nil {
			ln.Close()
			t.Errorf("Listen(%q) error = nil, want error", addr)
		}
	}
}
