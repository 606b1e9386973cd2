// Package extractor evaluates response checks against HTTP response bodies.
//
// A check is written as "json:<path>", "json:<path>=<value>" or
// "regex:<pattern>". JSON paths follow gjson syntax and may carry a leading
// "$." prefix.
package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrCheckFailed is matched by every *CheckError.
var ErrCheckFailed = errors.New("response check failed")

// Kind selects how a check reads the body.
type Kind string

const (
	KindJSON  Kind = "json"
	KindRegex Kind = "regex"
)

// Check is a single parsed response expectation.
type Check struct {
	Kind  Kind
	Expr  string
	Want  string // optional exact value for json checks
	raw   string
	regex *regexp.Regexp
}

func (c Check) String() string {
	return c.raw
}

// CheckError reports which check rejected a response body.
type CheckError struct {
	Check  string
	Reason string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check %q failed: %s", e.Check, e.Reason)
}

func (e *CheckError) Is(target error) bool {
	return target == ErrCheckFailed
}

// Parse parses one check expression.
func Parse(expr string) (Check, error) {
	raw := strings.TrimSpace(expr)
	kind, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return Check{}, fmt.Errorf("check %q: expected json:<path> or regex:<pattern>", raw)
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Check{}, fmt.Errorf("check %q: empty expression", raw)
	}

	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindJSON:
		path, want, _ := strings.Cut(rest, "=")
		path = strings.TrimSpace(path)
		if path == "" {
			return Check{}, fmt.Errorf("check %q: empty json path", raw)
		}
		return Check{Kind: KindJSON, Expr: path, Want: strings.TrimSpace(want), raw: raw}, nil
	case KindRegex:
		re, err := regexp.Compile(rest)
		if err != nil {
			return Check{}, fmt.Errorf("check %q: %w", raw, err)
		}
		return Check{Kind: KindRegex, Expr: rest, raw: raw, regex: re}, nil
	default:
		return Check{}, fmt.Errorf("check %q: unknown kind %q", raw, kind)
	}
}

// ParseAll parses every expression, stopping at the first invalid one.
func ParseAll(exprs []string) ([]Check, error) {
	checks := make([]Check, 0, len(exprs))
	for _, expr := range exprs {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		c, err := Parse(expr)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// Evaluate runs checks in order and returns a *CheckError for the first one
// the body does not satisfy.
func Evaluate(body []byte, checks []Check) error {
	for _, c := range checks {
		if reason := c.evaluate(body); reason != "" {
			return &CheckError{Check: c.raw, Reason: reason}
		}
	}
	return nil
}

func (c Check) evaluate(body []byte) string {
	switch c.Kind {
	case KindJSON:
		got, ok := findJSONPath(body, c.Expr)
		if !ok {
			return "path not found"
		}
		if c.Want != "" && got != c.Want {
			return fmt.Sprintf("got %q, want %q", truncate(got, 64), c.Want)
		}
	case KindRegex:
		if _, ok := findRegex(body, c.regex); !ok {
			return "no match"
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
