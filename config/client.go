package config

import (
	"fmt"
	"time"
)

// Client is the calculation client configuration.
type Client struct {
	Timeout        time.Duration  `yaml:"timeout"`         // Receive deadline, default 10s
	ConnectTimeout time.Duration  `yaml:"connect_timeout"` // Resolve + connect deadline, default 10s
	Fallback       FallbackPolicy `yaml:"fallback"`        // transport | any-failure
	Output         OutputFormat   `yaml:"output"`          // text | json
}

// Default returns a configuration with every default applied.
func Default() *Client {
	cfg := &Client{}
	cfg.ApplyDefaults()
	return cfg
}

// Validate checks the configuration after defaults were applied.
func (c *Client) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative, got %v", c.ConnectTimeout)
	}
	if err := c.Fallback.Validate(); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	if _, err := ParseOutputFormat(string(c.Output)); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}
