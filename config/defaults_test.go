package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_ZeroValues(t *testing.T) {
	cfg := &Client{}
	cfg.ApplyDefaults()

	if cfg.Timeout != DefaultReceiveTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultReceiveTimeout, cfg.Timeout)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("expected connect timeout %v, got %v", DefaultConnectTimeout, cfg.ConnectTimeout)
	}
	if cfg.Fallback != DefaultFallback {
		t.Errorf("expected fallback %q, got %q", DefaultFallback, cfg.Fallback)
	}
	if cfg.Output != DefaultOutput {
		t.Errorf("expected output %q, got %q", DefaultOutput, cfg.Output)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Client{
		Timeout:        time.Second,
		ConnectTimeout: 2 * time.Second,
		Fallback:       FallbackAnyFailure,
		Output:         OutputJSON,
	}
	want := *cfg
	cfg.ApplyDefaults()

	if *cfg != want {
		t.Errorf("explicit values changed: got %+v, want %+v", *cfg, want)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Client{Timeout: 3 * time.Second}
	cfg.ApplyDefaults()
	first := *cfg
	cfg.ApplyDefaults()

	if *cfg != first {
		t.Errorf("second ApplyDefaults changed config: got %+v, want %+v", *cfg, first)
	}
}
