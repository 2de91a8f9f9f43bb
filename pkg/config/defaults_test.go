package config

import "testing"

func TestApplyDefaults_Index(t *testing.T) {
	cfg := &Config{}
	cfg.Index.Dir = "/var/lib/mailidx"
	ApplyDefaults(cfg)

	if cfg.Index.Prefix != "dovecot.index" {
		t.Errorf("expected default prefix 'dovecot.index', got %q", cfg.Index.Prefix)
	}
	if cfg.Index.GrowthIncrement == 0 {
		t.Error("expected nonzero default growth increment")
	}
	if cfg.Index.HashDir != "/var/lib/mailidx" {
		t.Errorf("expected hash dir to default to index dir, got %q", cfg.Index.HashDir)
	}
}

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Telemetry(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("expected default endpoint 'localhost:4317', got %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("expected default sample rate 1.0, got %v", cfg.Telemetry.SampleRate)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Metrics.Port != 9090 {
		t.Errorf("expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Index.Prefix = "custom.index"
	cfg.Logging.Level = "debug"
	cfg.Metrics.Port = 9999

	ApplyDefaults(cfg)

	if cfg.Index.Prefix != "custom.index" {
		t.Errorf("expected prefix to stay 'custom.index', got %q", cfg.Index.Prefix)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected level to normalize to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Metrics.Port != 9999 {
		t.Errorf("expected metrics port to stay 9999, got %d", cfg.Metrics.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Index.Dir != "./data" {
		t.Errorf("expected default index dir './data', got %q", cfg.Index.Dir)
	}
	if cfg.Index.HashDir != "./data" {
		t.Errorf("expected default hash dir './data', got %q", cfg.Index.HashDir)
	}
}
