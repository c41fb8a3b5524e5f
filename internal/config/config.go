// internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for a forecasting run and the service
// that reports on it.
type Config struct {
	// Sequence lengths
	PreSeqLength int `mapstructure:"pre_seq_length"`
	AftSeqLength int `mapstructure:"aft_seq_length"`

	// Training configuration
	BatchSize    int     `mapstructure:"batch_size"`
	ValBatchSize int     `mapstructure:"val_batch_size"`
	Epochs       int     `mapstructure:"epochs"`
	LR           float64 `mapstructure:"lr"`
	WeightDecay  float64 `mapstructure:"weight_decay"`
	Sched        string  `mapstructure:"sched"`
	Seed         int64   `mapstructure:"seed"`
	LogEvery     int     `mapstructure:"log_every"`
	Prefetch     int     `mapstructure:"prefetch"`

	// Synthetic dataset
	Channels     int `mapstructure:"channels"`
	Height       int `mapstructure:"height"`
	Width        int `mapstructure:"width"`
	TrainSamples int `mapstructure:"train_samples"`
	ValSamples   int `mapstructure:"val_samples"`
	TestSamples  int `mapstructure:"test_samples"`

	// Server configuration
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	Redis       string `mapstructure:"redis"`
	RunID       string `mapstructure:"run_id"`
	PlotDir     string `mapstructure:"plot_dir"`

	// Exported model
	Model       string `mapstructure:"model"`
	UseONNX     bool   `mapstructure:"use_onnx"`
	ONNXLibrary string `mapstructure:"onnx_library"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`
}

const envPrefix = "FORECAST_SERVICE"

var defaults = map[string]any{
	"pre_seq_length": 10,
	"aft_seq_length": 10,
	"batch_size":     16,
	"val_batch_size": 16,
	"epochs":         5,
	"lr":             1e-3,
	"weight_decay":   0.0,
	"sched":          "onecycle",
	"seed":           42,
	"log_every":      10,
	"prefetch":       2,
	"channels":       1,
	"height":         16,
	"width":          16,
	"train_samples":  256,
	"val_samples":    64,
	"test_samples":   64,
	"port":           50051,
	"metrics_port":   9100,
	"redis":          "",
	"run_id":         "",
	"plot_dir":       "plots",
	"model":          "",
	"use_onnx":       false,
	"onnx_library":   "",
	"otel_enabled":   false,
	"otel_endpoint":  "",
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set defaults
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	// Environment variable configuration
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind every key so Unmarshal sees env-only values
	for k := range defaults {
		_ = v.BindEnv(k)
	}
	// Also read OTEL standard env vars
	_ = v.BindEnv("otel_endpoint", envPrefix+"_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	return v
}

// Load loads configuration from environment variables and an optional config file.
// Priority (highest to lowest): env vars > config file > defaults.
// When configPath is empty the usual locations are searched for config.yaml.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/forecast-service/")
		v.AddConfigPath("$HOME/.forecast-service")

		// Read config file if present (ignore error if not found)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.OTELEndpoint != "" {
		cfg.OTELEnabled = true
	}

	return &cfg, nil
}

// LoadWithConfigFile loads configuration from a specific config file
func LoadWithConfigFile(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	return Load(configPath)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PreSeqLength <= 0 {
		return fmt.Errorf("invalid pre_seq_length: %d", c.PreSeqLength)
	}
	if c.AftSeqLength <= 0 {
		return fmt.Errorf("invalid aft_seq_length: %d", c.AftSeqLength)
	}
	if c.BatchSize <= 0 || c.ValBatchSize <= 0 {
		return fmt.Errorf("invalid batch sizes: %d/%d", c.BatchSize, c.ValBatchSize)
	}
	if c.Epochs < 0 {
		return fmt.Errorf("invalid epochs: %d", c.Epochs)
	}
	if c.LR <= 0 {
		return fmt.Errorf("invalid lr: %g", c.LR)
	}
	switch c.Sched {
	case "onecycle", "cosine", "constant":
	default:
		return fmt.Errorf("unknown sched %q", c.Sched)
	}
	if c.Channels <= 0 || c.Height <= 0 || c.Width <= 0 {
		return fmt.Errorf("invalid frame size %dx%dx%d", c.Channels, c.Height, c.Width)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics_port must be different")
	}
	if c.UseONNX && c.Model == "" {
		return fmt.Errorf("model path is required when use_onnx is set")
	}
	return nil
}
