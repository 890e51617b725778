package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "websocket"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Check types understood by the check package.
const (
	CheckStatus       = "status"
	CheckBodyContains = "body_contains"
	CheckBodyRegex    = "body_regex"
	CheckJSONPath     = "json_path"
	CheckHeader       = "header"
	CheckMaxLatency   = "max_latency"
)

// Config is the immutable description of one load test. It is built once by the Loader
// (or by hand in tests) and shared read-only by every virtual user.
type Config struct {
	TargetURL    string            `mapstructure:"target"`
	Method       string            `mapstructure:"method"`
	Headers      map[string]string `mapstructure:"headers"`
	Body         string            `mapstructure:"body"`
	BodyFile     string            `mapstructure:"body_file"`
	VirtualUsers int               `mapstructure:"vus"`
	Duration     time.Duration     `mapstructure:"duration"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Pacing       time.Duration     `mapstructure:"pacing"`
	Arrival      ArrivalModel      `mapstructure:"arrival"`
	Rate         int               `mapstructure:"rate"`
	GracePeriod  time.Duration     `mapstructure:"grace_period"`
	Protocol     Protocol          `mapstructure:"protocol"`
	ExpectStatus string            `mapstructure:"expect_status"`
	Checks       []CheckConfig     `mapstructure:"checks"`
	Feeder       FeederConfig      `mapstructure:"feeder"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Output       OutputFormat      `mapstructure:"output"`
	LogLevel     string            `mapstructure:"log_level"`
	LogFormat    string            `mapstructure:"log_format"`
	LogErrors    bool              `mapstructure:"log_errors"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	ConfigFile   string            `mapstructure:"-"`
}

// CheckConfig declares one named response check.
// Target is the JSON path or header name for json_path and header checks.
// Value is the expected status, substring, pattern, value or latency bound.
type CheckConfig struct {
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"`
	Target string `mapstructure:"target"`
	Value  string `mapstructure:"value"`
}

type FeederConfig struct {
	Path string `mapstructure:"path"`
	Type string `mapstructure:"type"` // "csv" or "json"
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   bool    `mapstructure:"propagate"`
}

// ErrInvalidConfig is matched by every ValidationError via errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

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

func (e ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// ValidateLoad checks only the fields that shape the run itself: virtual users,
// duration, timeout, pacing, rate and grace period. The scheduler calls it before
// spawning anything.
func (c Config) ValidateLoad() error {
	if issues := c.loadIssues(); len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Validate checks the whole configuration and reports every issue at once.
func (c Config) Validate() error {
	issues := c.loadIssues()
	issues = append(issues, c.requestIssues()...)
	issues = append(issues, validateChecks(c.Checks)...)
	issues = append(issues, validateFeederConfig(c.Feeder)...)

	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be text, json or yaml, got %q", c.Output))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be console or json, got %q", c.LogFormat))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c Config) loadIssues() []string {
	var issues []string
	if c.VirtualUsers < 1 {
		issues = append(issues, "vus must be >= 1")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.Pacing < 0 {
		issues = append(issues, "pacing must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.GracePeriod < 0 {
		issues = append(issues, "grace_period must be >= 0")
	}
	switch c.Arrival {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", c.Arrival))
	}
	if c.Arrival == ArrivalModelPoisson && c.Pacing == 0 {
		issues = append(issues, "poisson arrival requires pacing > 0 (mean gap between iterations)")
	}
	return issues
}

func (c Config) requestIssues() []string {
	var issues []string

	protocol := c.Protocol
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	if protocol != ProtocolHTTP && protocol != ProtocolWebSocket {
		issues = append(issues, fmt.Sprintf("protocol must be 'http' or 'websocket', got %q", c.Protocol))
	}

	target := strings.TrimSpace(c.TargetURL)
	if target == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(target); err != nil || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target %q is not an absolute URL", target))
	} else if !schemeMatches(protocol, u.Scheme) {
		issues = append(issues, fmt.Sprintf("target scheme %q does not match protocol %s", u.Scheme, protocol))
	}

	if protocol == ProtocolHTTP && strings.TrimSpace(c.Method) == "" {
		issues = append(issues, "method is required")
	}
	if c.Body != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and body_file are mutually exclusive")
	}
	return issues
}

func schemeMatches(protocol Protocol, scheme string) bool {
	switch protocol {
	case ProtocolWebSocket:
		return scheme == "ws" || scheme == "wss"
	default:
		return scheme == "http" || scheme == "https"
	}
}

func validateChecks(checks []CheckConfig) []string {
	var issues []string
	seen := map[string]int{}
	for idx, chk := range checks {
		name := strings.TrimSpace(chk.Name)
		if name == "" {
			issues = append(issues, fmt.Sprintf("checks[%d]: name is required", idx))
		} else if prev, ok := seen[name]; ok {
			issues = append(issues, fmt.Sprintf("checks[%d]: duplicate name also defined at index %d", idx, prev))
		} else {
			seen[name] = idx
		}

		switch chk.Type {
		case CheckStatus, CheckBodyContains, CheckBodyRegex, CheckMaxLatency:
			if strings.TrimSpace(chk.Value) == "" {
				issues = append(issues, fmt.Sprintf("checks[%d]: value is required for %s", idx, chk.Type))
			}
		case CheckJSONPath, CheckHeader:
			if strings.TrimSpace(chk.Target) == "" {
				issues = append(issues, fmt.Sprintf("checks[%d]: target is required for %s", idx, chk.Type))
			}
		default:
			issues = append(issues, fmt.Sprintf("checks[%d]: unsupported type %q", idx, chk.Type))
		}
	}
	return issues
}

func validateFeederConfig(feeder FeederConfig) []string {
	if strings.TrimSpace(feeder.Path) == "" {
		return nil
	}
	switch feeder.Type {
	case "":
		return []string{"feeder: type is required when path is specified"}
	case "csv", "json":
		return nil
	default:
		return []string{fmt.Sprintf("feeder: type must be 'csv' or 'json', got %q", feeder.Type)}
	}
}
