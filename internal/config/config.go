package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Channel ChannelConfig `mapstructure:"channel" yaml:"channel"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig tunes the sequential executor.
type EngineConfig struct {
	// ProgressInterval is the tick period of the progress simulator attached
	// to the currently running pipeline.
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`

	// StageTimeout bounds each stage runner call when the query itself does
	// not carry a timeout. Zero leaves stage calls unbounded.
	StageTimeout time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
}

// ChannelConfig configures the realtime notification channel. An empty
// endpoint selects the no-op channel so the CLI works offline.
type ChannelConfig struct {
	Endpoint         string        `mapstructure:"endpoint" yaml:"endpoint"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// ReportConfig holds the default report settings; CLI flags override them.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "ferret-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.progress_interval", "500ms")
	v.SetDefault("engine.stage_timeout", "0s")

	// -- Channel --
	v.SetDefault("channel.endpoint", "")
	v.SetDefault("channel.handshake_timeout", "10s")

	// -- Report --
	v.SetDefault("report.format", "json")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with defaults only, but fail loudly rather than run
		// with a half-initialized config.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Engine.ProgressInterval <= 0 {
		return fmt.Errorf("engine.progress_interval must be a positive duration")
	}
	if c.Engine.StageTimeout < 0 {
		return fmt.Errorf("engine.stage_timeout must not be negative")
	}
	if c.Channel.Endpoint != "" && c.Channel.HandshakeTimeout <= 0 {
		return fmt.Errorf("channel.handshake_timeout must be a positive duration when an endpoint is set")
	}
	switch c.Report.Format {
	case "json", "text":
	default:
		return fmt.Errorf("report.format must be one of 'json', 'text'")
	}
	return nil
}
