package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vuload",
		Short:         "Closed-loop virtual-user load generator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Request
	flags.String("target", "", "Target URL to load test")
	flags.StringP("method", "X", DefaultMethod, "HTTP method to use")
	flags.StringArray("header", nil, "Additional request header in key=value form (repeatable)")
	flags.String("body", "", "Inline request body template")
	flags.String("body-file", "", "Path to file containing the request body template")

	// Load shape
	flags.IntP("vus", "u", DefaultVirtualUsers, "Number of virtual users")
	flags.DurationP("duration", "d", DefaultDuration, "How long to run the test (e.g. 30s, 1m)")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Duration("pacing", 0, "Minimum interval between iterations of one virtual user (0 = closed loop)")
	flags.String("arrival", string(ArrivalModelUniform), "Pacing model: 'uniform' or 'poisson'")
	flags.IntP("rate", "r", 0, "Global requests per second cap (0 means unlimited)")
	flags.Duration("grace-period", DefaultGracePeriod, "Max time to wait for in-flight requests after the test ends")

	// Protocol and checks
	flags.String("protocol", string(ProtocolHTTP), "Protocol mode: 'http' or 'websocket'")
	flags.String("expect-status", "", "Expected status for the default check (e.g. 201 or 2xx)")
	flags.StringArray("check", nil, "Named check in name=type:spec form (repeatable, e.g. 'ok=status:201')")

	// Feeder
	flags.String("feeder-path", "", "Path to CSV or JSON file providing template fields")
	flags.String("feeder-type", "", "Type of feeder file: 'csv' or 'json'")

	// Output
	flags.StringSlice("threshold", nil, "Pass/fail threshold (repeatable, e.g. 'req_duration:p95 < 500')")
	flags.StringP("output", "o", string(OutputText), "Report format: 'text', 'json' or 'yaml'")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log encoding: 'console' or 'json'")
	flags.Bool("log-errors", false, "Log each failed request at warn level")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1, "Fraction of requests to trace (0.0-1.0)")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context headers into requests")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name string
		set  func(string)
	}{
		{"target", func(v string) { cfg.TargetURL = strings.TrimSpace(v) }},
		{"method", func(v string) { cfg.Method = v }},
		{"body", func(v string) { cfg.Body, cfg.BodyFile = v, "" }},
		{"body-file", func(v string) { cfg.BodyFile, cfg.Body = v, "" }},
		{"arrival", func(v string) { cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(v))) }},
		{"protocol", func(v string) { cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(v))) }},
		{"expect-status", func(v string) { cfg.ExpectStatus = strings.TrimSpace(v) }},
		{"feeder-path", func(v string) { cfg.Feeder.Path = strings.TrimSpace(v) }},
		{"feeder-type", func(v string) { cfg.Feeder.Type = strings.ToLower(strings.TrimSpace(v)) }},
		{"output", func(v string) { cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(v))) }},
		{"log-level", func(v string) { cfg.LogLevel = strings.TrimSpace(v) }},
		{"log-format", func(v string) { cfg.LogFormat = strings.ToLower(strings.TrimSpace(v)) }},
		{"metrics-addr", func(v string) { cfg.MetricsAddr = strings.TrimSpace(v) }},
		{"tracing-endpoint", func(v string) { cfg.Tracing.Endpoint = strings.TrimSpace(v) }},
		{"tracing-protocol", func(v string) { cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(v)) }},
		{"tracing-service-name", func(v string) { cfg.Tracing.ServiceName = strings.TrimSpace(v) }},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		f.set(val)
	}

	if fs.Changed("vus") {
		val, err := fs.GetInt("vus")
		if err != nil {
			return err
		}
		cfg.VirtualUsers = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}

	durationFlags := []struct {
		name string
		dst  *time.Duration
	}{
		{"duration", &cfg.Duration},
		{"timeout", &cfg.Timeout},
		{"pacing", &cfg.Pacing},
		{"grace-period", &cfg.GracePeriod},
	}
	for _, f := range durationFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetDuration(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"log-errors", &cfg.LogErrors},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
	}
	for _, f := range boolFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	vals, err := fs.GetStringArray("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("check") {
		entries, err := fs.GetStringArray("check")
		if err != nil {
			return err
		}
		checks := make([]CheckConfig, 0, len(entries))
		for _, entry := range entries {
			chk, err := ParseCheckFlag(entry)
			if err != nil {
				return err
			}
			checks = append(checks, chk)
		}
		cfg.Checks = checks
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	return nil
}
