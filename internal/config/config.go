// Package config loads runtime configuration from the environment and an
// optional config file. All settings carry the PSIFLOW_ prefix.
package config

import (
	"fmt"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string  `mapstructure:"ENV"`
	LogLevel        string  `mapstructure:"LOG_LEVEL"`
	Workers         int     `mapstructure:"WORKERS"`
	QueueSize       int     `mapstructure:"QUEUE_SIZE"`
	Debug           bool    `mapstructure:"DEBUG"`
	MetricsAddr     string  `mapstructure:"METRICS_ADDR"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`
}

// Load reads configuration from psiflow.env in the working directory when
// present, then overlays PSIFLOW_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile("psiflow.env")
	v.SetConfigType("env")
	v.SetEnvPrefix("PSIFLOW")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WORKERS", runtime.NumCPU())
	v.SetDefault("QUEUE_SIZE", 1024)
	v.SetDefault("DEBUG", false)
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("WORKERS")
	v.BindEnv("QUEUE_SIZE")
	v.BindEnv("DEBUG")
	v.BindEnv("METRICS_ADDR")
	v.BindEnv("TRACE_SAMPLE_RATE")

	// The config file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, nil
}
