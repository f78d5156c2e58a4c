package config

import (
	"fmt"
	"strings"
)

const (
	EnvPrefix = "QCALC_"
)

// FallbackPolicy decides which TCP failures let the "any" protocol retry on
// UDP.
type FallbackPolicy string

const (
	// FallbackTransport retries only when TCP could not be opened or the
	// TCP session ended in a transport error.
	FallbackTransport FallbackPolicy = "transport"
	// FallbackAnyFailure retries on every TCP outcome except acceptance.
	FallbackAnyFailure FallbackPolicy = "any-failure"
)

// Validate checks the policy is one of the known values.
func (p FallbackPolicy) Validate() error {
	switch p {
	case FallbackTransport, FallbackAnyFailure:
		return nil
	default:
		return fmt.Errorf("unknown fallback policy %q, expected %q or %q", string(p), FallbackTransport, FallbackAnyFailure)
	}
}

// OutputFormat selects how the final report is printed.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat parses "text" or "json", case-insensitive.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}
