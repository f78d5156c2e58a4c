package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultReceiveTimeout, cfg.Timeout)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, FallbackTransport, cfg.Fallback)
	assert.Equal(t, OutputText, cfg.Output)
	require.NoError(t, cfg.Validate())
}

func TestClientValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Client)
		wantErr string
	}{
		{"defaults", func(c *Client) {}, ""},
		{"negative timeout", func(c *Client) { c.Timeout = -time.Second }, "timeout must not be negative"},
		{"negative connect timeout", func(c *Client) { c.ConnectTimeout = -1 }, "connect_timeout must not be negative"},
		{"unknown fallback", func(c *Client) { c.Fallback = "sometimes" }, "fallback"},
		{"unknown output", func(c *Client) { c.Output = "xml" }, "output"},
		{"any-failure", func(c *Client) { c.Fallback = FallbackAnyFailure }, ""},
		{"json", func(c *Client) { c.Output = OutputJSON }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, OutputJSON, f)

	f, err = ParseOutputFormat("text")
	require.NoError(t, err)
	assert.Equal(t, OutputText, f)

	_, err = ParseOutputFormat("yaml")
	assert.Error(t, err)
}
