// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/config"
)

var (
	configFile string

	v      = config.New()
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "an26sim",
	Short: "SM2M decoder and emulator toolkit",
	Long: `an26sim - host tooling for SM2M bus devices.

Talks to SM2M decoder and emulator devices: reads parameter frames captured
from the instrument panel bus, configures the emulator's value generators,
records and replays frames, serves a device over websocket and runs both
devices in-process as a simulator.

Connection modes:
  USB:       [--transport usb] [--kind decoder|emulator]
  Serial:    --transport serial [--port /dev/ttyACM0]
  WebSocket: --transport websocket --url ws://host:8026/ [--username user]

For WebSocket authentication, the password is read from the AN26SIM_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Every flag can also be set in an26sim.yaml or through AN26SIM_ environment
variables, e.g. AN26SIM_DEVICE_PORT=/dev/ttyACM1.`,
	Version:      "0.1.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		l, err := cfg.Log.Logger()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		logger = l
		logger.Debug("configuration loaded", zap.String("file", v.ConfigFileUsed()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// bindFlag binds a flag to a config key so flags override file and
// environment values.
func bindFlag(flags *pflag.FlagSet, key, flag string) error {
	return v.BindPFlag(key, flags.Lookup(flag))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./an26sim.yaml)")

	// Device selection
	flags.StringP("kind", "k", "decoder", "Device kind (decoder, emulator)")
	flags.StringP("transport", "t", "usb", "Transport (usb, serial, websocket)")
	flags.String("serial", "", "USB serial string to match (default from kind)")
	flags.Duration("timeout", 0, "Device open timeout")

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")

	for key, flag := range map[string]string{
		"device.kind":          "kind",
		"device.transport":     "transport",
		"device.serial":        "serial",
		"device.timeout":       "timeout",
		"device.port":          "port",
		"device.baud":          "baud",
		"device.url":           "url",
		"device.username":      "username",
		"device.no_ssl_verify": "no-ssl-verify",
		"log.level":            "log-level",
		"log.format":           "log-format",
	} {
		if err := bindFlag(flags, key, flag); err != nil {
			panic(err)
		}
	}

}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
