// Package config loads injointd's runtime settings from a YAML file,
// environment variables, and command-line flags, in that increasing
// order of precedence. It follows dkeye-Voice's viper.Unmarshal pattern
// for the file/env layer and adwski-webrtc-playground's pflag.FlagSet
// pattern for CLI overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything injointd needs to start: where to listen, which
// path serves the websocket, how often to flush metrics, how verbosely to
// log, and how large the joint's intake buffer is. Ping and pong intervals
// are not configurable here; they are constants in the transports.
type Config struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	WSPath       string        `mapstructure:"ws_path"`
	LogLevel     string        `mapstructure:"log_level"`
	MetricsTick  time.Duration `mapstructure:"metrics_tick"`
	IntakeBuffer int           `mapstructure:"intake_buffer"`
}

// Load builds a viper instance seeded with defaults, optionally
// overlaid by a config file and INJOINT_-prefixed environment
// variables, then applies any flags the caller parsed into fs.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("injointd")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("injoint")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("ws_path", "/ws")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_tick", 30*time.Second)
	v.SetDefault("intake_buffer", 256)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		for key, flagName := range map[string]string{
			"listen_addr":   "listen-addr",
			"ws_path":       "ws-path",
			"log_level":     "log-level",
			"metrics_tick":  "metrics-tick",
			"intake_buffer": "intake-buffer",
		} {
			flag := fs.Lookup(flagName)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Flags registers injointd's CLI overrides on fs, ready to be parsed by
// the caller and handed to Load.
func Flags(fs *pflag.FlagSet) {
	fs.StringP("listen-addr", "a", ":8080", "websocket listen address")
	fs.String("ws-path", "/ws", "websocket endpoint path")
	fs.StringP("log-level", "l", "info", "log level (trace, debug, info, warn, error)")
	fs.Duration("metrics-tick", 30*time.Second, "metrics reporting interval")
	fs.Int("intake-buffer", 256, "joint intake channel buffer size")
}
