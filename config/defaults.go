package config

import (
	"time"
)

// Default timeout and policy values
const (
	// DefaultReceiveTimeout is the deadline of every receive, on TCP and UDP alike
	DefaultReceiveTimeout = 10 * time.Second

	// DefaultConnectTimeout bounds name resolution plus TCP connect
	DefaultConnectTimeout = 10 * time.Second

	// DefaultFallback only falls back to UDP when TCP itself failed
	DefaultFallback = FallbackTransport

	// DefaultOutput prints human-readable lines
	DefaultOutput = OutputText
)

// ApplyDefaults fills zero fields with their defaults.
func (c *Client) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultReceiveTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Fallback == "" {
		c.Fallback = DefaultFallback
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
}
