package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultVirtualUsers = 1
	DefaultDuration     = 10 * time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultGracePeriod  = 5 * time.Second
	DefaultMethod       = http.MethodPost
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns a Config holding every documented default value.
func Defaults() Config {
	return Config{
		Method:       DefaultMethod,
		Headers:      map[string]string{},
		VirtualUsers: DefaultVirtualUsers,
		Duration:     DefaultDuration,
		Timeout:      DefaultTimeout,
		GracePeriod:  DefaultGracePeriod,
		Arrival:      ArrivalModelUniform,
		Protocol:     ProtocolHTTP,
		Output:       OutputText,
		LogLevel:     "info",
		LogFormat:    "console",
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1},
	}
}

// Load parses command-line arguments and an optional configuration file into a Config.
// File values are applied first; flags explicitly set on the command line win.
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

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if (cfg.Body != "" || cfg.BodyFile != "") && cfg.Headers["Content-Type"] == "" {
		cfg.Headers["Content-Type"] = "application/json"
	}
	if len(cfg.Checks) == 0 {
		cfg.Checks = []CheckConfig{cfg.DefaultCheck()}
	}

	return &cfg, nil
}

// DefaultCheck is the status check used when no checks are configured.
// Without expect_status a POST must answer 201 and anything else must answer 2xx.
func (c Config) DefaultCheck() CheckConfig {
	expect := strings.TrimSpace(c.ExpectStatus)
	if expect == "" {
		if strings.EqualFold(c.Method, http.MethodPost) {
			expect = strconv.Itoa(http.StatusCreated)
		} else {
			expect = "2xx"
		}
	}
	name := "status is " + expect
	if expect == strconv.Itoa(http.StatusCreated) {
		name = "Order placed successfully"
	}
	return CheckConfig{Name: name, Type: CheckStatus, Value: expect}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if val != "" {
			cfg.Method = val
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
		}
	}

	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asBody(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		cfg.Body = val
	}

	if raw, ok := lookupSetting(settings, "bodyfile", "body_file", "body-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("body_file: %w", err)
		}
		cfg.BodyFile = val
	}

	if raw, ok := lookupSetting(settings, "vus", "virtual_users", "virtualusers", "virtual-users"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("vus: %w", err)
		}
		cfg.VirtualUsers = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "pacing"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("pacing: %w", err)
		}
		cfg.Pacing = dur
	}

	if raw, ok := lookupSetting(settings, "arrival", "arrival_model", "arrivalmodel", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "grace_period", "graceperiod", "grace-period"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("grace_period: %w", err)
		}
		cfg.GracePeriod = dur
	}

	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "expect_status", "expectstatus", "expect-status"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("expect_status: %w", err)
		}
		cfg.ExpectStatus = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "checks"); ok {
		checks, err := parseChecks(raw)
		if err != nil {
			return fmt.Errorf("checks: %w", err)
		}
		cfg.Checks = checks
	}

	if raw, ok := lookupSetting(settings, "feeder"); ok {
		feeder, err := parseFeeder(raw)
		if err != nil {
			return fmt.Errorf("feeder: %w", err)
		}
		cfg.Feeder = feeder
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "log_level", "loglevel", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "log_format", "logformat", "log-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "metrics_addr", "metricsaddr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

// asBody accepts either a literal string or a structured document, which is
// re-encoded as JSON so YAML files can declare the payload inline.
func asBody(value interface{}) (string, error) {
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}, []interface{}:
		return marshalJSON(value)
	default:
		return asString(value)
	}
}

func parseArrival(value interface{}) (ArrivalModel, error) {
	if value == nil {
		return "", nil
	}
	if s, ok := value.(string); ok {
		return ArrivalModel(strings.ToLower(strings.TrimSpace(s))), nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return "", err
	}
	raw, ok := lookupSetting(entry, "model")
	if !ok {
		return "", fmt.Errorf("model field is required")
	}
	val, err := asString(raw)
	if err != nil {
		return "", fmt.Errorf("model: %w", err)
	}
	return ArrivalModel(strings.ToLower(strings.TrimSpace(val))), nil
}

func parseChecks(value interface{}) ([]CheckConfig, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	checks := make([]CheckConfig, 0, len(items))
	for idx, item := range items {
		if s, ok := item.(string); ok {
			chk, err := ParseCheckFlag(s)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", idx, err)
			}
			checks = append(checks, chk)
			continue
		}
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		chk, err := buildCheckConfig(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		checks = append(checks, chk)
	}
	return checks, nil
}

func buildCheckConfig(settings map[string]interface{}) (CheckConfig, error) {
	var chk CheckConfig
	fields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"name"}, &chk.Name},
		{[]string{"type"}, &chk.Type},
		{[]string{"target", "path", "header"}, &chk.Target},
		{[]string{"value", "expect", "equals"}, &chk.Value},
	}
	for _, f := range fields {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return CheckConfig{}, fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = strings.TrimSpace(val)
	}
	chk.Type = strings.ToLower(chk.Type)
	return chk, nil
}

// ParseCheckFlag parses the --check form "name=type:spec".
func ParseCheckFlag(entry string) (CheckConfig, error) {
	parts := strings.SplitN(entry, "=", 2)
	if len(parts) != 2 {
		return CheckConfig{}, fmt.Errorf("check must be in name=type:spec format: %s", entry)
	}
	return ParseCheckSpec(parts[0], parts[1])
}

// ParseCheckSpec parses "type:spec" for the named check. For json_path and header
// the check spec is "target" or "target==value"; for every other type it is the value.
func ParseCheckSpec(name, spec string) (CheckConfig, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CheckConfig{}, fmt.Errorf("check name cannot be empty")
	}
	typ, rest, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok {
		return CheckConfig{}, fmt.Errorf("check %q: spec must be type:value, got %q", name, spec)
	}
	chk := CheckConfig{Name: name, Type: strings.ToLower(strings.TrimSpace(typ))}
	switch chk.Type {
	case CheckJSONPath, CheckHeader:
		target, value, _ := strings.Cut(rest, "==")
		chk.Target = strings.TrimSpace(target)
		chk.Value = strings.TrimSpace(value)
	default:
		chk.Value = strings.TrimSpace(rest)
	}
	return chk, nil
}

func parseFeeder(value interface{}) (FeederConfig, error) {
	if value == nil {
		return FeederConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return FeederConfig{}, err
	}
	var feeder FeederConfig
	if raw, ok := lookupSetting(entry, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("path: %w", err)
		}
		feeder.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("type: %w", err)
		}
		feeder.Type = strings.ToLower(strings.TrimSpace(val))
	}
	return feeder, nil
}

func parseTracing(value interface{}) (TracingConfig, error) {
	if value == nil {
		return TracingConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := TracingConfig{SampleRate: 1}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = val
	}
	return tc, nil
}
