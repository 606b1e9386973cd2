package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tracefire --trace FILE --target URL [flags]",
		Short:         "Replay an inter-arrival trace against an HTTP endpoint, open loop",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Request template
	flags.String("target", "", "Target URL to replay requests against")
	flags.String("method", DefaultMethod, "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")

	// Trace
	flags.String("trace", "", "Path to trace file with one inter-arrival delay (seconds) per line")
	flags.Float64("delay-scale", DefaultDelayScale, "Multiplier applied to every trace delay")
	flags.Int("trace-limit", 0, "Read at most this many delays from the trace (0 means all)")

	// Replay control
	flags.Duration("timeout", 0, "Per-request timeout (0 means none beyond the transport)")
	flags.Duration("grace-period", DefaultGracePeriod, "How long to wait for in-flight requests after an interrupt (0 means no wait)")
	flags.Duration("drain-timeout", 0, "Upper bound on waiting for in-flight requests after the last dispatch (0 derives one)")
	flags.StringSlice("expect", nil, "Response check that must hold for a 2xx response (repeatable, e.g. 'json:predictions', 'regex:ok')")
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'http_req_duration:p95 < 500')")
	flags.Bool("fail-on-error", false, "Exit non-zero when any request failed")

	// Output
	flags.String("output-dir", DefaultOutputDir, "Directory receiving actual_delays.txt, latencies.txt, results.jsonl and run.yaml")
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("progress", true, "Print a progress line every second")
	flags.Bool("log-errors", false, "Log failed requests to stderr")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the replay (e.g. :9090)")

	// KServe predict target
	flags.String("kserve-ingress-host", "", "KServe ingress host; derives the predict URL")
	flags.String("kserve-service-host", "", "Host header routed by the KServe ingress")
	flags.String("kserve-model", "", "KServe model name")
	flags.String("kserve-image", "", "Image encoded as the predict request instances")
	flags.Int("kserve-port", DefaultKServePort, "KServe ingress port")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint for request spans (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", DefaultServiceName, "Service name reported on spans")
	flags.Float64("tracing-sample-rate", DefaultSampleRate, "Span sample rate between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", true, "Inject W3C trace headers into requests")

	// InfluxDB sink
	flags.String("influx-host", "", "InfluxDB 3 host receiving one point per request")
	flags.String("influx-token", "", "InfluxDB 3 token")
	flags.String("influx-database", "", "InfluxDB 3 database")
	flags.String("influx-measurement", DefaultMeasurement, "InfluxDB measurement name")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// changed copies a flag into dst only when the user set it explicitly.
func changed[T any](fs *pflag.FlagSet, name string, get func(string) (T, error), dst *T) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := get(name)
	if err != nil {
		return fmt.Errorf("flag --%s: %w", name, err)
	}
	*dst = val
	return nil
}

// applyFlagOverrides lets explicitly set flags win over config file values.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	trimmed := func(name string) (string, error) {
		v, err := fs.GetString(name)
		return strings.TrimSpace(v), err
	}
	var propagate bool
	steps := []func() error{
		func() error { return changed(fs, "target", trimmed, &cfg.TargetURL) },
		func() error { return changed(fs, "method", trimmed, &cfg.Method) },
		func() error { return changed(fs, "trace", trimmed, &cfg.TraceFile) },
		func() error { return changed(fs, "output-dir", trimmed, &cfg.OutputDir) },
		func() error { return changed(fs, "log-level", trimmed, &cfg.LogLevel) },
		func() error { return changed(fs, "metrics-addr", trimmed, &cfg.MetricsAddr) },
		func() error { return changed(fs, "kserve-ingress-host", trimmed, &cfg.KServe.IngressHost) },
		func() error { return changed(fs, "kserve-service-host", trimmed, &cfg.KServe.ServiceHost) },
		func() error { return changed(fs, "kserve-model", trimmed, &cfg.KServe.ModelName) },
		func() error { return changed(fs, "kserve-image", trimmed, &cfg.KServe.Image) },
		func() error { return changed(fs, "kserve-port", fs.GetInt, &cfg.KServe.Port) },
		func() error { return changed(fs, "tracing-endpoint", trimmed, &cfg.Tracing.Endpoint) },
		func() error { return changed(fs, "tracing-protocol", trimmed, &cfg.Tracing.Protocol) },
		func() error { return changed(fs, "tracing-service-name", trimmed, &cfg.Tracing.ServiceName) },
		func() error { return changed(fs, "tracing-sample-rate", fs.GetFloat64, &cfg.Tracing.SampleRate) },
		func() error { return changed(fs, "tracing-insecure", fs.GetBool, &cfg.Tracing.Insecure) },
		func() error { return changed(fs, "influx-host", trimmed, &cfg.Influx.Host) },
		func() error { return changed(fs, "influx-token", trimmed, &cfg.Influx.Token) },
		func() error { return changed(fs, "influx-database", trimmed, &cfg.Influx.Database) },
		func() error { return changed(fs, "influx-measurement", trimmed, &cfg.Influx.Measurement) },
		func() error { return changed(fs, "delay-scale", fs.GetFloat64, &cfg.DelayScale) },
		func() error { return changed(fs, "trace-limit", fs.GetInt, &cfg.TraceLimit) },
		func() error { return changed(fs, "timeout", fs.GetDuration, &cfg.Timeout) },
		func() error { return changed(fs, "grace-period", fs.GetDuration, &cfg.GracePeriod) },
		func() error { return changed(fs, "drain-timeout", fs.GetDuration, &cfg.DrainTimeout) },
		func() error { return changed(fs, "json-output", fs.GetBool, &cfg.JSONOutput) },
		func() error { return changed(fs, "dashboard", fs.GetBool, &cfg.Dashboard) },
		func() error { return changed(fs, "progress", fs.GetBool, &cfg.Progress) },
		func() error { return changed(fs, "log-errors", fs.GetBool, &cfg.LogErrors) },
		func() error { return changed(fs, "fail-on-error", fs.GetBool, &cfg.FailOnError) },
		func() error { return changed(fs, "expect", fs.GetStringSlice, &cfg.Expect) },
		func() error { return changed(fs, "threshold", fs.GetStringSlice, &cfg.Thresholds) },
		func() error {
			if !fs.Changed("tracing-propagate") {
				return nil
			}
			if err := changed(fs, "tracing-propagate", fs.GetBool, &propagate); err != nil {
				return err
			}
			cfg.Tracing.Propagate = &propagate
			return nil
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	// The body sources exclude each other; the flag given wins over the file.
	if fs.Changed("body") {
		cfg.BodyFile = ""
		if err := changed(fs, "body", fs.GetString, &cfg.Body); err != nil {
			return err
		}
	}
	if fs.Changed("body-file") {
		cfg.Body = ""
		if err := changed(fs, "body-file", trimmed, &cfg.BodyFile); err != nil {
			return err
		}
	}

	headers, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	for _, entry := range headers {
		name, value, ok := strings.Cut(entry, "=")
		name = http.CanonicalHeaderKey(strings.TrimSpace(name))
		if !ok {
			return fmt.Errorf("header must be in key=value format: %s", entry)
		}
		if name == "" {
			return fmt.Errorf("header key cannot be empty: %s", entry)
		}
		cfg.Headers[name] = strings.TrimSpace(value)
	}
	return nil
}
