// Package check evaluates named predicates against transport responses.
package check

import (
	"errors"
	"fmt"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/transport"
)

// Check is a named predicate over a response.
type Check interface {
	Name() string
	Evaluate(resp *transport.Response) bool
}

// Result is the outcome of one named check for one request.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	// Kind is set when the request failed before a response arrived.
	Kind transport.ErrorKind `json:"kind,omitempty"`
}

// Set evaluates checks in declaration order.
type Set struct {
	checks []Check
}

// NewSet returns a Set over checks. Names must be unique.
func NewSet(checks ...Check) (*Set, error) {
	seen := make(map[string]struct{}, len(checks))
	for _, c := range checks {
		if _, dup := seen[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate check name %q", c.Name())
		}
		seen[c.Name()] = struct{}{}
	}
	return &Set{checks: checks}, nil
}

// Names returns the check names in declaration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.checks))
	for i, c := range s.checks {
		names[i] = c.Name()
	}
	return names
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.checks)
}

// Evaluate runs every check against resp. When err is non-nil no response exists and
// every result is false, tagged with the classified error kind.
func (s *Set) Evaluate(resp *transport.Response, err error) []Result {
	if s == nil || len(s.checks) == 0 {
		return nil
	}
	results := make([]Result, len(s.checks))
	if err != nil || resp == nil {
		kind := transport.Classify(err)
		if kind == "" {
			kind = transport.KindProtocol
		}
		for i, c := range s.checks {
			results[i] = Result{Name: c.Name(), Kind: kind}
		}
		return results
	}
	for i, c := range s.checks {
		results[i] = Result{Name: c.Name(), Passed: c.Evaluate(resp)}
	}
	return results
}

// FromConfig builds a Set from configured checks.
func FromConfig(cfgs []config.CheckConfig) (*Set, error) {
	checks := make([]Check, 0, len(cfgs))
	var errs []error
	for _, cc := range cfgs {
		c, err := New(cc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		checks = append(checks, c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return NewSet(checks...)
}

// New builds one check from its configuration.
func New(cc config.CheckConfig) (Check, error) {
	var (
		c   Check
		err error
	)
	switch cc.Type {
	case config.CheckStatus:
		c, err = Status(cc.Name, cc.Value)
	case config.CheckBodyContains:
		c, err = BodyContains(cc.Name, cc.Value)
	case config.CheckBodyRegex:
		c, err = BodyRegex(cc.Name, cc.Value)
	case config.CheckJSONPath:
		c, err = JSONPath(cc.Name, cc.Target, cc.Value)
	case config.CheckHeader:
		c, err = Header(cc.Name, cc.Target, cc.Value)
	case config.CheckMaxLatency:
		c, err = MaxLatency(cc.Name, cc.Value)
	default:
		err = fmt.Errorf("unsupported type %q", cc.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("check %q: %w", cc.Name, err)
	}
	return c, nil
}
