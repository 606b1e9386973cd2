// Package threshold evaluates pass/fail assertions against replay statistics.
//
// A threshold reads "metric:aggregate op value", for example
// "http_req_duration:p95 < 500" or "schedule_lag:max <= 10". Latency and lag
// values are milliseconds, failure rates are fractions in [0, 1].
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/tracefire/internal/metrics"
)

// Threshold is one parsed assertion.
type Threshold struct {
	Metric    string
	Aggregate string
	Operator  string
	Value     float64
	Raw       string
}

// Result is the outcome of evaluating one Threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

type extractor func(metrics.Stats) float64

// catalog maps metric name to the aggregates it supports.
var catalog = map[string]map[string]extractor{
	"http_req_duration": {
		"p50":  func(s metrics.Stats) float64 { return s.P50LatencyMs },
		"p90":  func(s metrics.Stats) float64 { return s.P90LatencyMs },
		"p95":  func(s metrics.Stats) float64 { return midpoint(s.P90LatencyMs, s.P99LatencyMs) },
		"p99":  func(s metrics.Stats) float64 { return s.P99LatencyMs },
		"avg":  func(s metrics.Stats) float64 { return s.MeanLatencyMs },
		"mean": func(s metrics.Stats) float64 { return s.MeanLatencyMs },
		"min":  func(s metrics.Stats) float64 { return s.MinLatencyMs },
		"max":  func(s metrics.Stats) float64 { return s.MaxLatencyMs },
	},
	"schedule_lag": {
		"p50": func(s metrics.Stats) float64 { return s.P50LagMs },
		"p90": func(s metrics.Stats) float64 { return s.P90LagMs },
		"p95": func(s metrics.Stats) float64 { return midpoint(s.P90LagMs, s.P99LagMs) },
		"p99": func(s metrics.Stats) float64 { return s.P99LagMs },
		"max": func(s metrics.Stats) float64 { return s.MaxLagMs },
	},
	"http_req_failed": {
		"count": func(s metrics.Stats) float64 { return float64(s.Failures) },
		"rate":  failureRate,
	},
	"http_requests": {
		"count": func(s metrics.Stats) float64 { return float64(s.Total) },
		"rate":  func(s metrics.Stats) float64 { return s.RequestsPerSec },
	},
}

const epsilon = 1e-9

var operators = map[string]func(actual, want float64) bool{
	"<":  func(a, w float64) bool { return a < w },
	"<=": func(a, w float64) bool { return a <= w || math.Abs(a-w) < epsilon },
	">":  func(a, w float64) bool { return a > w },
	">=": func(a, w float64) bool { return a >= w || math.Abs(a-w) < epsilon },
	"==": func(a, w float64) bool { return math.Abs(a-w) < epsilon },
}

// The stats only carry p90 and p99, so p95 sits halfway between them.
func midpoint(lo, hi float64) float64 { return (lo + hi) / 2 }

func failureRate(s metrics.Stats) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total)
}

var (
	headPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)$`)
	tailPattern = regexp.MustCompile(`^(<=|>=|==|<|>)\s*(\S+)$`)
)

// Parse turns one threshold expression into a Threshold. The metric must be
// known and must support the aggregate.
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	split := strings.IndexAny(s, "<>=!")
	if split <= 0 {
		return Threshold{}, fmt.Errorf("invalid threshold %q: want metric:aggregate op value, e.g. 'http_req_duration:p95 < 500'", s)
	}
	head := headPattern.FindStringSubmatch(strings.TrimSpace(s[:split]))
	tail := tailPattern.FindStringSubmatch(s[split:])
	if head == nil || tail == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q: want metric:aggregate op value, e.g. 'http_req_duration:p95 < 500'", s)
	}

	t := Threshold{Metric: head[1], Aggregate: head[2], Operator: tail[1], Raw: s}
	if _, err := lookup(t); err != nil {
		return Threshold{}, err
	}

	value, err := strconv.ParseFloat(tail[2], 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Threshold{}, fmt.Errorf("invalid threshold value %q in %q", tail[2], s)
	}
	t.Value = value
	return t, nil
}

// ParseMultiple parses every expression and reports all failures at once.
func ParseMultiple(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	parsed := make([]Threshold, 0, len(exprs))
	var problems []string
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		parsed = append(parsed, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return parsed, nil
}

func lookup(t Threshold) (extractor, error) {
	aggregates, ok := catalog[t.Metric]
	if !ok {
		return nil, fmt.Errorf("unsupported metric %q (supported: %s)", t.Metric, strings.Join(keys(catalog), ", "))
	}
	fn, ok := aggregates[t.Aggregate]
	if !ok {
		return nil, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", t.Aggregate, t.Metric, strings.Join(keys(aggregates), ", "))
	}
	return fn, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	fn, err := lookup(t)
	if err != nil {
		return 0, err
	}
	return fn(stats), nil
}

func compareValues(actual float64, operator string, expected float64) bool {
	cmp, ok := operators[operator]
	return ok && cmp(actual, expected)
}

// Evaluator checks a fixed set of thresholds against run statistics.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate returns one Result per threshold, in the order they were given.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, len(e.thresholds))
	for i, t := range e.thresholds {
		results[i] = evaluate(t, stats)
	}
	return results
}

func evaluate(t Threshold, stats metrics.Stats) Result {
	res := Result{Threshold: t}
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		res.Message = fmt.Sprintf("✗ %s: %v", t.Raw, err)
		return res
	}
	res.Actual = actual
	res.Pass = compareValues(actual, t.Operator, t.Value)
	mark := "✓"
	if !res.Pass {
		mark = "✗"
	}
	res.Message = fmt.Sprintf("%s %s: %.2f %s %.2f", mark, t.Raw, actual, t.Operator, t.Value)
	return res
}
