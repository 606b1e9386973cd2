package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/tracefire/internal/logging"
)

const (
	DefaultMethod      = "POST"
	DefaultGracePeriod = 5 * time.Second
	DefaultDelayScale  = 1.0
	DefaultLogLevel    = "info"
	DefaultOutputDir   = "."
	DefaultKServePort  = 80
	DefaultServiceName = "tracefire"
	DefaultMeasurement = "tracefire_requests"
	DefaultSampleRate  = 1.0
)

type Config struct {
	TargetURL    string            `mapstructure:"target"`
	Method       string            `mapstructure:"method"`
	Headers      map[string]string `mapstructure:"headers"`
	Body         string            `mapstructure:"body"`
	BodyFile     string            `mapstructure:"body_file"`
	TraceFile    string            `mapstructure:"trace_file"`
	DelayScale   float64           `mapstructure:"delay_scale"`
	TraceLimit   int               `mapstructure:"trace_limit"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	GracePeriod  time.Duration     `mapstructure:"grace_period"`
	DrainTimeout time.Duration     `mapstructure:"drain_timeout"`
	OutputDir    string            `mapstructure:"output_dir"`
	JSONOutput   bool              `mapstructure:"json_output"`
	Dashboard    bool              `mapstructure:"dashboard"`
	Progress     bool              `mapstructure:"progress"`
	LogErrors    bool              `mapstructure:"log_errors"`
	LogLevel     string            `mapstructure:"log_level"`
	Expect       []string          `mapstructure:"expect"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	Influx       InfluxConfig      `mapstructure:"influx"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	KServe       KServeConfig      `mapstructure:"kserve"`
	FailOnError  bool              `mapstructure:"fail_on_error"`
	ConfigFile   string            `mapstructure:"-"`
}

// TracingConfig configures OTLP span export for dispatched requests.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // nil means follow Enabled()
}

// Enabled reports whether an OTLP endpoint is configured either directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// InfluxConfig points the optional InfluxDB 3 sink at a database.
type InfluxConfig struct {
	Host        string `mapstructure:"host"`
	Token       string `mapstructure:"token"`
	Database    string `mapstructure:"database"`
	Measurement string `mapstructure:"measurement"`
}

func (i InfluxConfig) Enabled() bool {
	return strings.TrimSpace(i.Host) != ""
}

// KServeConfig describes a KServe v1 predict endpoint. When ModelName is set
// the target URL and Host header are derived from it, and Image (if set)
// becomes the request body.
type KServeConfig struct {
	IngressHost string `mapstructure:"ingress_host"`
	ServiceHost string `mapstructure:"service_host"`
	ModelName   string `mapstructure:"model_name"`
	Image       string `mapstructure:"image"`
	Port        int    `mapstructure:"port"`
}

func (k KServeConfig) Enabled() bool {
	return strings.TrimSpace(k.ModelName) != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.TargetURL) == "" && !c.KServe.Enabled() {
		issues = append(issues, "target is required unless kserve.model_name is set (use --help for usage information)")
	}
	if strings.TrimSpace(c.TraceFile) == "" {
		issues = append(issues, "trace file is required")
	}

	if c.DelayScale <= 0 {
		issues = append(issues, "delay scale must be > 0")
	}
	if c.TraceLimit < 0 {
		issues = append(issues, "trace limit must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.GracePeriod < 0 {
		issues = append(issues, "grace period must be >= 0")
	}
	if c.DrainTimeout < 0 {
		issues = append(issues, "drain timeout must be >= 0")
	}

	bodies := 0
	if c.Body != "" {
		bodies++
	}
	if strings.TrimSpace(c.BodyFile) != "" {
		bodies++
	}
	if strings.TrimSpace(c.KServe.Image) != "" {
		bodies++
	}
	if bodies > 1 {
		issues = append(issues, "body, bodyFile and kserve.image are mutually exclusive")
	}

	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)
	issues = append(issues, validateInfluxConfig(c.Influx)...)
	issues = append(issues, validateKServeConfig(c.KServe)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: unsupported protocol %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	if t.Insecure && t.Enabled() {
		fmt.Fprintln(os.Stderr, "WARNING: OTLP exporter TLS is DISABLED (insecure: true). Spans are sent in plaintext.")
	}
	return issues
}

func validateInfluxConfig(i InfluxConfig) []string {
	if !i.Enabled() {
		return nil
	}
	var issues []string
	if strings.TrimSpace(i.Database) == "" {
		issues = append(issues, "influx: database is required when host is set")
	}
	return issues
}

func validateKServeConfig(k KServeConfig) []string {
	var issues []string
	if k.Port < 0 || k.Port > 65535 {
		issues = append(issues, "kserve: port must be between 1 and 65535")
	}
	if !k.Enabled() {
		if strings.TrimSpace(k.Image) != "" {
			issues = append(issues, "kserve: image requires model_name")
		}
		return issues
	}
	if strings.TrimSpace(k.IngressHost) == "" {
		issues = append(issues, "kserve: ingress_host is required when model_name is set")
	}
	return issues
}
