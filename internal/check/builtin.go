package check

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/vuload/internal/transport"
)

type funcCheck struct {
	name string
	fn   func(*transport.Response) bool
}

func (c funcCheck) Name() string { return c.name }

func (c funcCheck) Evaluate(resp *transport.Response) bool { return c.fn(resp) }

// Func builds a check from a predicate.
func Func(name string, fn func(*transport.Response) bool) Check {
	return funcCheck{name: name, fn: fn}
}

// Status passes when the status code equals spec ("201") or falls in its class ("2xx").
func Status(name, spec string) (Check, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if len(spec) == 3 && strings.HasSuffix(spec, "xx") && spec[0] >= '1' && spec[0] <= '5' {
		class := int(spec[0]-'0') * 100
		return Func(name, func(r *transport.Response) bool {
			return r.StatusCode >= class && r.StatusCode < class+100
		}), nil
	}
	code, err := strconv.Atoi(spec)
	if err != nil || code < 100 || code > 599 {
		return nil, fmt.Errorf("status must be a code or class like 2xx, got %q", spec)
	}
	return Func(name, func(r *transport.Response) bool { return r.StatusCode == code }), nil
}

// BodyContains passes when the body contains substr.
func BodyContains(name, substr string) (Check, error) {
	if substr == "" {
		return nil, fmt.Errorf("body_contains needs a value")
	}
	needle := []byte(substr)
	return Func(name, func(r *transport.Response) bool { return bytes.Contains(r.Body, needle) }), nil
}

// BodyRegex passes when the body matches pattern.
func BodyRegex(name, pattern string) (Check, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return Func(name, func(r *transport.Response) bool { return re.Match(r.Body) }), nil
}

// JSONPath passes when path exists in the JSON body, or equals want when want is set.
func JSONPath(name, path, want string) (Check, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("json_path needs a path")
	}
	return Func(name, func(r *transport.Response) bool {
		if !gjson.ValidBytes(r.Body) {
			return false
		}
		res := gjson.GetBytes(r.Body, path)
		if !res.Exists() {
			return false
		}
		return want == "" || res.String() == want
	}), nil
}

// Header passes when header is present, or equals want when want is set.
func Header(name, header, want string) (Check, error) {
	if strings.TrimSpace(header) == "" {
		return nil, fmt.Errorf("header needs a name")
	}
	return Func(name, func(r *transport.Response) bool {
		values := r.Header.Values(header)
		if len(values) == 0 {
			return false
		}
		if want == "" {
			return true
		}
		for _, v := range values {
			if v == want {
				return true
			}
		}
		return false
	}), nil
}

// MaxLatency passes when the response arrived within limit.
func MaxLatency(name, limit string) (Check, error) {
	d, err := time.ParseDuration(strings.TrimSpace(limit))
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("max_latency must be a positive duration, got %q", limit)
	}
	return Func(name, func(r *transport.Response) bool { return r.Latency <= d }), nil
}
