// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package config loads an26sim settings from defaults, an optional YAML file
// and AN26SIM_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/artemkorobko/an26sim/pkg/driver"
)

// EnvPrefix prefixes every environment variable, e.g. AN26SIM_DEVICE_PORT.
const EnvPrefix = "AN26SIM"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Device    DeviceConfig    `mapstructure:"device"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type DeviceConfig struct {
	Kind          string        `mapstructure:"kind"`
	Transport     string        `mapstructure:"transport"`
	Serial        string        `mapstructure:"serial"`
	Port          string        `mapstructure:"port"`
	Baud          int           `mapstructure:"baud"`
	URL           string        `mapstructure:"url"`
	Username      string        `mapstructure:"username"`
	NoSSLVerify   bool          `mapstructure:"no_ssl_verify"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type BridgeConfig struct {
	Listen   string `mapstructure:"listen"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SimulatorConfig struct {
	Profile    string `mapstructure:"profile"`
	LatchDepth int    `mapstructure:"latch_depth"`
	PipeDepth  int    `mapstructure:"pipe_depth"`
	Seed       uint64 `mapstructure:"seed"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Every key needs a default so Unmarshal sees its environment variable
	v.SetDefault("device.kind", "decoder")
	v.SetDefault("device.transport", "usb")
	v.SetDefault("device.serial", "")
	v.SetDefault("device.port", "")
	v.SetDefault("device.baud", driver.DefaultBaudRate)
	v.SetDefault("device.url", "")
	v.SetDefault("device.username", "")
	v.SetDefault("device.no_ssl_verify", false)
	v.SetDefault("device.timeout", "5s")
	v.SetDefault("device.retry_interval", "1s")

	v.SetDefault("bridge.listen", ":8026")
	v.SetDefault("bridge.username", "")
	v.SetDefault("bridge.password", "")

	v.SetDefault("simulator.profile", "")
	v.SetDefault("simulator.latch_depth", 0)
	v.SetDefault("simulator.pipe_depth", 0)
	v.SetDefault("simulator.seed", 1)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, or an26sim.yaml from the working
// directory or the user config directory when path is empty, and decodes
// the result. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		v.SetConfigName("an26sim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "an26sim"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (use console or json)", c.Log.Format)
	}
	if _, err := driver.ParseKind(c.Device.Kind); err != nil {
		return fmt.Errorf("device.kind: %w", err)
	}
	if _, err := driver.ParseTransport(c.Device.Transport); err != nil {
		return fmt.Errorf("device.transport: %w", err)
	}
	if c.Device.Timeout <= 0 {
		return fmt.Errorf("device.timeout must be positive, got %v", c.Device.Timeout)
	}
	return nil
}

// Options converts the device section into driver options. The websocket
// password is supplied separately.
func (d DeviceConfig) Options(password string) driver.Options {
	transport, _ := driver.ParseTransport(d.Transport)
	return driver.Options{
		Transport:     transport,
		Serial:        d.Serial,
		Port:          d.Port,
		BaudRate:      d.Baud,
		URL:           d.URL,
		Username:      d.Username,
		Password:      password,
		SkipSSLVerify: d.NoSSLVerify,
		Timeout:       d.Timeout,
	}
}

// Logger builds the process logger. Logs go to stderr so command output on
// stdout stays clean.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if l.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
