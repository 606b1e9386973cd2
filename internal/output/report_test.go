package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/torosent/tracefire/internal/metrics"
	"github.com/torosent/tracefire/internal/threshold"
)

func TestPrintReportBasic(t *testing.T) {
	stats := metrics.Stats{
		Planned:        100,
		Dispatched:     100,
		Total:          100,
		Successes:      95,
		Failures:       5,
		MeanLatencyMs:  12.5,
		RequestsPerSec: 50.0,
		Duration:       2 * time.Second,
		MaxLag:         3 * time.Millisecond,
		StatusBuckets: map[string]map[string]int{
			"http":   {"503": 4},
			"replay": {"UNRESOLVED": 1},
		},
		Errors: map[string]int{"HTTP error response": 4, "Unresolved at drain timeout": 1},
	}

	var buf bytes.Buffer
	PrintReport(&buf, stats)

	output := buf.String()
	for _, want := range []string{
		"Average request latency for 100 requests: 12.500 ms",
		"Total Requests:    100",
		"Successful:        95",
		"Schedule Lag:",
		"3ms",
		"HTTP 503: 4",
		"REPLAY UNRESOLVED: 1",
		"Unresolved at drain timeout: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in report:\n%s", want, output)
		}
	}
}

func TestPrintReportWithoutFailures(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, metrics.Stats{Total: 3, Successes: 3})
	if strings.Contains(buf.String(), "Status Buckets") {
		t.Errorf("did not expect status buckets without failures:\n%s", buf.String())
	}
}

func TestPrintJSONReportIncludesThresholds(t *testing.T) {
	ths, err := threshold.ParseMultiple([]string{"http_req_failed:rate < 0.01", "schedule_lag:max < 10"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	stats := metrics.Stats{Total: 100, Successes: 90, Failures: 10, MaxLagMs: 2}
	results := threshold.NewEvaluator(ths).Evaluate(stats)

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, JSONReport{RunID: "01HZX", Stats: stats, Thresholds: SummarizeThresholds(results)}); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	var parsed struct {
		RunID string `json:"run_id"`
		Stats struct {
			Total int `json:"total"`
		} `json:"stats"`
		Thresholds ThresholdSummary `json:"thresholds"`
	}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if parsed.RunID != "01HZX" || parsed.Stats.Total != 100 {
		t.Errorf("unexpected report header: %+v", parsed)
	}
	if parsed.Thresholds.Total != 2 || parsed.Thresholds.Passed != 1 || parsed.Thresholds.Failed != 1 {
		t.Errorf("unexpected threshold summary: %+v", parsed.Thresholds)
	}
}

func TestPrintThresholds(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholds(&buf, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output for no thresholds, got %q", buf.String())
	}
	PrintThresholds(&buf, []threshold.Result{{Message: "✓ http_requests:count > 1: 5.00 > 1.00", Pass: true}})
	if !strings.Contains(buf.String(), "http_requests:count") {
		t.Errorf("expected threshold line, got %q", buf.String())
	}
}
