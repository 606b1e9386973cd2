package threshold

import (
	"strings"
	"testing"

	"github.com/torosent/tracefire/internal/metrics"
)

func TestParse(t *testing.T) {
	valid := []struct {
		input string
		want  Threshold
	}{
		{"http_req_duration:p95 < 500", Threshold{Metric: "http_req_duration", Aggregate: "p95", Operator: "<", Value: 500}},
		{"http_req_failed:rate < 0.01", Threshold{Metric: "http_req_failed", Aggregate: "rate", Operator: "<", Value: 0.01}},
		{"http_req_duration:p99 <= 1000", Threshold{Metric: "http_req_duration", Aggregate: "p99", Operator: "<=", Value: 1000}},
		{"http_requests:rate>100", Threshold{Metric: "http_requests", Aggregate: "rate", Operator: ">", Value: 100}},
		{"  http_req_duration:avg < 200 ", Threshold{Metric: "http_req_duration", Aggregate: "avg", Operator: "<", Value: 200}},
		{"schedule_lag:p99 < 2.5", Threshold{Metric: "schedule_lag", Aggregate: "p99", Operator: "<", Value: 2.5}},
		{"http_requests:count == 1000", Threshold{Metric: "http_requests", Aggregate: "count", Operator: "==", Value: 1000}},
	}
	for _, tt := range valid {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			tt.want.Raw = strings.TrimSpace(tt.input)
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}

	invalid := map[string]string{
		"empty":                    "",
		"missing operator":         "http_req_duration:p95 500",
		"missing aggregate":        "http_req_duration < 500",
		"unknown metric":           "invalid_metric:p95 < 500",
		"unknown aggregate":        "http_req_duration:p85 < 500",
		"aggregate not for metric": "http_req_failed:p95 < 1",
		"lag has no average":       "schedule_lag:avg < 1",
		"doubled operator":         "http_req_duration:p95 << 500",
		"not equal":                "http_req_duration:p95 != 500",
		"not a number":             "http_req_duration:p95 < abc",
		"not finite":               "http_req_duration:p95 < NaN",
	}
	for name, input := range invalid {
		t.Run(name, func(t *testing.T) {
			if got, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) = %+v, want error", input, got)
			}
		})
	}
}

func TestParseMultipleReportsEveryFailure(t *testing.T) {
	got, err := ParseMultiple(nil)
	if err != nil || got != nil {
		t.Fatalf("ParseMultiple(nil) = %v, %v", got, err)
	}

	got, err = ParseMultiple([]string{"http_req_duration:p95 < 500", "http_req_failed:rate < 0.01", "http_requests:rate > 100"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ParseMultiple() returned %d thresholds, want 3", len(got))
	}

	_, err = ParseMultiple([]string{"bogus", "http_req_duration:p95 < 500", "schedule_lag:rate < 1"})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"threshold[0]", "threshold[2]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if strings.Contains(err.Error(), "threshold[1]") {
		t.Errorf("error %q names the valid threshold", err)
	}
}

func sampleStats() metrics.Stats {
	return metrics.Stats{
		Total:          1000,
		Successes:      950,
		Failures:       50,
		MinLatencyMs:   10.5,
		MaxLatencyMs:   500.25,
		MeanLatencyMs:  100.75,
		P50LatencyMs:   80.5,
		P90LatencyMs:   200.25,
		P99LatencyMs:   400.5,
		P50LagMs:       0.25,
		P90LagMs:       1.5,
		P99LagMs:       2.5,
		MaxLagMs:       12,
		RequestsPerSec: 123.45,
	}
}

func TestExtractMetricValue(t *testing.T) {
	stats := sampleStats()
	cases := map[string]float64{
		"http_req_duration:p50":  80.5,
		"http_req_duration:p90":  200.25,
		"http_req_duration:p95":  300.375,
		"http_req_duration:p99":  400.5,
		"http_req_duration:avg":  100.75,
		"http_req_duration:mean": 100.75,
		"http_req_duration:min":  10.5,
		"http_req_duration:max":  500.25,
		"http_req_failed:rate":   0.05,
		"http_req_failed:count":  50,
		"http_requests:rate":     123.45,
		"http_requests:count":    1000,
		"schedule_lag:p50":       0.25,
		"schedule_lag:p95":       2,
		"schedule_lag:max":       12,
	}
	for key, want := range cases {
		metric, aggregate, _ := strings.Cut(key, ":")
		got, err := extractMetricValue(Threshold{Metric: metric, Aggregate: aggregate}, stats)
		if err != nil {
			t.Errorf("%s: unexpected error %v", key, err)
			continue
		}
		if got != want {
			t.Errorf("%s = %v, want %v", key, got, want)
		}
	}

	for _, bad := range []Threshold{
		{Metric: "invalid_metric", Aggregate: "p95"},
		{Metric: "http_req_failed", Aggregate: "p95"},
		{Metric: "schedule_lag", Aggregate: "avg"},
	} {
		if _, err := extractMetricValue(bad, stats); err == nil {
			t.Errorf("%s:%s: expected error", bad.Metric, bad.Aggregate)
		}
	}
}

func TestFailureRateWithoutRequests(t *testing.T) {
	got, err := extractMetricValue(Threshold{Metric: "http_req_failed", Aggregate: "rate"}, metrics.Stats{})
	if err != nil || got != 0 {
		t.Fatalf("rate on empty stats = %v, %v; want 0, nil", got, err)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{50, "<", 100, true},
		{100, "<", 100, false},
		{100, "<=", 100, true},
		{150, "<=", 100, false},
		{150, ">", 100, true},
		{100, ">", 100, false},
		{100, ">=", 100, true},
		{50, ">=", 100, false},
		{100, "==", 100, true},
		{100, "==", 101, false},
		{100.0000000001, "==", 100, true},
		{100, "!=", 1, false},
	}
	for _, tt := range tests {
		if got := compareValues(tt.actual, tt.operator, tt.expected); got != tt.want {
			t.Errorf("compareValues(%v %s %v) = %v, want %v", tt.actual, tt.operator, tt.expected, got, tt.want)
		}
	}
}

func TestEvaluator(t *testing.T) {
	stats := sampleStats()
	tests := []struct {
		name     string
		exprs    []string
		wantPass []bool
	}{
		{
			name:     "all pass",
			exprs:    []string{"http_req_duration:p99 < 500", "http_req_failed:rate < 0.06", "http_requests:rate > 50"},
			wantPass: []bool{true, true, true},
		},
		{
			name:     "some fail",
			exprs:    []string{"http_req_duration:p99 < 300", "http_req_failed:rate < 0.01", "http_requests:count > 900"},
			wantPass: []bool{false, false, true},
		},
		{
			name:     "schedule lag",
			exprs:    []string{"schedule_lag:p99 < 5", "schedule_lag:max < 10"},
			wantPass: []bool{true, false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ths, err := ParseMultiple(tt.exprs)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}
			results := NewEvaluator(ths).Evaluate(stats)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}
			for i, r := range results {
				if r.Pass != tt.wantPass[i] {
					t.Errorf("%q: pass = %v, want %v (actual %.2f)", r.Threshold.Raw, r.Pass, tt.wantPass[i], r.Actual)
				}
				if !strings.Contains(r.Message, r.Threshold.Raw) {
					t.Errorf("message %q does not name %q", r.Message, r.Threshold.Raw)
				}
			}
		})
	}
}

func TestEvaluateUnparsedThreshold(t *testing.T) {
	results := NewEvaluator([]Threshold{{Metric: "schedule_lag", Aggregate: "rate", Raw: "schedule_lag:rate < 1"}}).Evaluate(metrics.Stats{})
	if len(results) != 1 || results[0].Pass {
		t.Fatalf("unexpected results %+v", results)
	}
	if !strings.Contains(results[0].Message, "unsupported aggregate") {
		t.Errorf("message = %q", results[0].Message)
	}
	if NewEvaluator(nil).Evaluate(metrics.Stats{}) != nil {
		t.Error("expected nil results without thresholds")
	}
}
