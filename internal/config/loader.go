package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}
	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	cfg.TraceFile = strings.TrimSpace(cfg.TraceFile)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// Defaults returns a Config populated with the values used when neither a
// config file nor a flag sets a key.
func Defaults() *Config {
	return &Config{
		Method:      DefaultMethod,
		Headers:     map[string]string{},
		DelayScale:  DefaultDelayScale,
		GracePeriod: DefaultGracePeriod,
		OutputDir:   DefaultOutputDir,
		Progress:    true,
		LogLevel:    DefaultLogLevel,
		Tracing: TracingConfig{
			ServiceName: DefaultServiceName,
			SampleRate:  DefaultSampleRate,
		},
		Influx: InfluxConfig{Measurement: DefaultMeasurement},
		KServe: KServeConfig{Port: DefaultKServePort},
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	root, err := newSection("", settings)
	if err != nil {
		return err
	}

	root.str(&cfg.TargetURL, "target")
	root.str(&cfg.Method, "method")
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	root.headers(cfg.Headers, "headers")
	root.text(&cfg.Body, "body")
	root.str(&cfg.BodyFile, "body_file")

	root.str(&cfg.TraceFile, "trace_file", "trace")
	root.float(&cfg.DelayScale, "delay_scale")
	root.integer(&cfg.TraceLimit, "trace_limit", "num_trace_reads")

	root.duration(&cfg.Timeout, "timeout")
	root.duration(&cfg.GracePeriod, "grace_period")
	root.duration(&cfg.DrainTimeout, "drain_timeout")
	root.list(&cfg.Expect, "expect")
	root.list(&cfg.Thresholds, "thresholds")
	root.boolean(&cfg.FailOnError, "fail_on_error")

	root.str(&cfg.OutputDir, "output_dir")
	root.boolean(&cfg.JSONOutput, "json_output")
	root.boolean(&cfg.Dashboard, "dashboard")
	root.boolean(&cfg.Progress, "progress")
	root.boolean(&cfg.LogErrors, "log_errors")
	root.str(&cfg.LogLevel, "log_level")
	root.str(&cfg.MetricsAddr, "metrics_addr")

	if s, ok := root.child("tracing"); ok {
		applyTracingSettings(&cfg.Tracing, s)
		root.keep(s)
	}
	if s, ok := root.child("influx"); ok {
		s.str(&cfg.Influx.Host, "host")
		s.str(&cfg.Influx.Token, "token")
		s.str(&cfg.Influx.Database, "database")
		s.str(&cfg.Influx.Measurement, "measurement")
		root.keep(s)
	}
	if s, ok := root.child("kserve"); ok {
		s.str(&cfg.KServe.IngressHost, "ingress_host")
		s.str(&cfg.KServe.ServiceHost, "service_host")
		s.str(&cfg.KServe.ModelName, "model_name", "model")
		s.str(&cfg.KServe.Image, "image")
		s.integer(&cfg.KServe.Port, "port")
		root.keep(s)
	}

	return root.err()
}

func applyTracingSettings(tc *TracingConfig, s *section) {
	s.str(&tc.Endpoint, "endpoint")
	s.str(&tc.Protocol, "protocol")
	tc.Protocol = strings.ToLower(tc.Protocol)
	s.str(&tc.ServiceName, "service_name")
	s.float(&tc.SampleRate, "sample_rate")
	s.boolean(&tc.Insecure, "insecure")
	if _, _, ok := s.lookup("propagate"); ok {
		var propagate bool
		s.boolean(&propagate, "propagate")
		tc.Propagate = &propagate
	}
}
