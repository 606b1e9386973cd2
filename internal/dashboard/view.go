package dashboard

import (
	"fmt"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/tracefire/internal/metrics"
)

const (
	historyLen    = 100
	maxStatusRows = 10
)

// ReplayConfig describes the run in the dashboard header.
type ReplayConfig struct {
	TargetURL     string
	Method        string
	TraceFile     string
	DelayScale    float64
	Requests      int
	PlannedLength time.Duration // offset of the last scheduled request
	Timeout       time.Duration
	ConfigFile    string
}

// view holds the widgets and the rolling history behind the sparklines.
// It knows nothing about the terminal lifecycle.
type view struct {
	header   *widgets.Paragraph
	gauge    *widgets.Gauge
	counters *widgets.Paragraph
	latency  *widgets.SparklineGroup
	quantile *widgets.Paragraph
	lag      *widgets.SparklineGroup
	failures *widgets.List

	latencyHistory []float64
	lagHistory     []float64
}

func frame(b *ui.Block, title string) {
	b.Title = title
	b.BorderStyle.Fg = ui.ColorCyan
}

func paragraph(title, text string) *widgets.Paragraph {
	p := widgets.NewParagraph()
	frame(&p.Block, title)
	p.Text = text
	return p
}

func sparkline(group, title string, color ui.Color) *widgets.SparklineGroup {
	line := widgets.NewSparkline()
	line.Title = title
	line.LineColor = color
	line.Data = []float64{0}
	g := widgets.NewSparklineGroup(line)
	frame(&g.Block, group)
	return g
}

func newView() *view {
	v := &view{
		header:         paragraph("Replay", "Initializing..."),
		counters:       paragraph("Metrics", "Waiting for data..."),
		quantile:       paragraph("Latency Stats", latencyText(metrics.Stats{})),
		latency:        sparkline("Latency", "Mean latency (ms)", ui.ColorGreen),
		lag:            sparkline("Schedule Lag", "P99 schedule lag (ms)", ui.ColorMagenta),
		latencyHistory: make([]float64, 0, historyLen),
		lagHistory:     make([]float64, 0, historyLen),
	}

	v.gauge = widgets.NewGauge()
	frame(&v.gauge.Block, "Trace Progress")
	v.gauge.BarColor = ui.ColorBlue
	v.gauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	v.failures = widgets.NewList()
	frame(&v.failures.Block, "Failures")
	v.failures.Rows = formatStatusListRows(nil)
	v.failures.TextStyle = ui.NewStyle(ui.ColorYellow)
	return v
}

// layout places the widgets on a grid covering width x height cells.
func (v *view) layout(width, height int) *ui.Grid {
	g := ui.NewGrid()
	g.SetRect(0, 0, width, height)
	g.Set(
		ui.NewRow(0.14, ui.NewCol(1.0, v.header)),
		ui.NewRow(0.22, ui.NewCol(0.5, v.gauge), ui.NewCol(0.5, v.counters)),
		ui.NewRow(0.32, ui.NewCol(0.65, v.latency), ui.NewCol(0.35, v.quantile)),
		ui.NewRow(0.32, ui.NewCol(0.65, v.lag), ui.NewCol(0.35, v.failures)),
	)
	return g
}

// apply copies one stats snapshot into the widgets.
func (v *view) apply(cfg ReplayConfig, s metrics.Stats, elapsed time.Duration) {
	if s.Total > 0 {
		v.latencyHistory = pushHistory(v.latencyHistory, s.MeanLatencyMs)
		v.latency.Sparklines[0].Data = v.latencyHistory
		v.latency.Title = fmt.Sprintf("Latency | Current: %.2fms | Min: %.2fms | Max: %.2fms",
			s.MeanLatencyMs, s.MinLatencyMs, s.MaxLatencyMs)
	}
	if s.Dispatched > 0 {
		v.lagHistory = pushHistory(v.lagHistory, s.P99LagMs)
		v.lag.Sparklines[0].Data = v.lagHistory
		v.lag.Title = fmt.Sprintf("Schedule Lag | P50: %.2fms | P99: %.2fms | Max: %.2fms",
			s.P50LagMs, s.P99LagMs, s.MaxLagMs)
	}

	pct := int(s.Progress() * 100)
	v.gauge.Percent = pct
	v.gauge.Label = fmt.Sprintf("%d/%d dispatched (%d%%)", s.Dispatched, s.Planned, pct)

	var okRate float64
	if s.Total > 0 {
		okRate = 100 * float64(s.Successes) / float64(s.Total)
	}
	v.header.Text = fmt.Sprintf("Target: %s\n%s\nElapsed: %s of %s planned | Completed: %d | Success Rate: %.1f%%",
		cfg.TargetURL, cfg.summary(), elapsed.Round(time.Second), s.PlannedLength.Round(time.Second), s.Total, okRate)

	v.counters.Text = columns([][2]string{
		{"Dispatched:", fmt.Sprint(s.Dispatched)},
		{"In Flight:", fmt.Sprint(s.InFlight)},
		{"Completed:", fmt.Sprint(s.Total)},
		{"Failed:", fmt.Sprint(s.Failures)},
		{"Completed/sec:", fmt.Sprintf("%.2f", s.RequestsPerSec)},
		{"Dispatched/sec:", fmt.Sprintf("%.2f", s.DispatchRate)},
		{"Bytes Read:", fmt.Sprint(s.BytesRead)},
	})
	v.quantile.Text = latencyText(s)
	v.failures.Rows = formatStatusListRows(s.StatusBuckets)
}

func latencyText(s metrics.Stats) string {
	return fmt.Sprintf("Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		s.MinLatencyMs, s.MeanLatencyMs, s.P50LatencyMs, s.P90LatencyMs, s.P99LatencyMs)
}

func columns(rows [][2]string) string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%-18s %s", r[0], r[1])
	}
	return strings.Join(lines, "\n")
}

func pushHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if n := len(history); n > historyLen {
		history = history[n-historyLen:]
	}
	return history
}

func formatStatusListRows(buckets map[string]map[string]int) []string {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	rows = rows[:min(len(rows), maxStatusRows)]
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, fmt.Sprintf("[%s %s](fg:red) %d", strings.ToUpper(row.Class), row.Code, row.Count))
	}
	return out
}

// summary lists the replay parameters that differ from the defaults.
func (c ReplayConfig) summary() string {
	var parts []string
	add := func(cond bool, format string, arg any) {
		if cond {
			parts = append(parts, fmt.Sprintf(format, arg))
		}
	}
	add(c.Method != "" && c.Method != "POST", "Method: %s", c.Method)
	add(c.TraceFile != "", "Trace: %s", c.TraceFile)
	add(c.Requests > 0, "Requests: %d", c.Requests)
	add(c.DelayScale > 0 && c.DelayScale != 1, "Scale: %g", c.DelayScale)
	add(c.PlannedLength > 0, "Length: %s", c.PlannedLength.Round(time.Millisecond))
	add(c.Timeout > 0, "Timeout: %s", c.Timeout)
	add(c.ConfigFile != "", "Config: %s", c.ConfigFile)
	return strings.Join(parts, " | ")
}
