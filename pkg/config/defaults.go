package config

import "strings"

// DefaultConfig returns a fully populated configuration for a fresh
// installation: a local ./data directory, text logging at INFO, tracing
// and metrics disabled.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.Index.Dir = "./data"
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills in unset fields with sensible defaults. Zero values
// (0, "", false, nil) are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyIndexDefaults(&cfg.Index)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Prefix == "" {
		cfg.Prefix = "dovecot.index"
	}
	if cfg.GrowthIncrement == 0 {
		cfg.GrowthIncrement = 32 * 1024 // 32Ki, about 1365 24-byte records
	}
	if cfg.HashDir == "" {
		cfg.HashDir = cfg.Dir
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}
