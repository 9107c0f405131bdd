// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/bridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a local device over websocket",
	Long: `Open a locally attached device and serve it to remote clients over
websocket. Remote tools connect with --transport websocket --url ws://host:8026/.

Every binary websocket message is one control packet. Requests from any
client are forwarded to the device, and every packet the device sends is
delivered to all clients. GET /status reports the device and traffic counters
as JSON.

HTTP Basic auth is enabled when bridge.username and bridge.password are set,
e.g. through AN26SIM_BRIDGE_USERNAME and AN26SIM_BRIDGE_PASSWORD.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindListen(cmd)
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", ":8026", "Address to listen on")
}

// bindListen binds the command's --listen flag to bridge.listen. Serve and
// simulate share the key, so the binding happens once the command is known.
func bindListen(cmd *cobra.Command) error {
	if err := bindFlag(cmd.Flags(), "bridge.listen", "listen"); err != nil {
		return err
	}
	cfg.Bridge.Listen = v.GetString("bridge.listen")
	return nil
}

func bridgeConfig() bridge.Config {
	return bridge.Config{
		Username: cfg.Bridge.Username,
		Password: cfg.Bridge.Password,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	conn, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signalContext()
	defer stop()

	bcfg := bridgeConfig()
	if bcfg.Username == "" || bcfg.Password == "" {
		logger.Warn("bridge authentication disabled")
	}
	logger.Info("serving device",
		zap.String("device", conn.dev.String()),
		zap.String("listen", cfg.Bridge.Listen))

	b := bridge.New(conn.dev.Link(), bcfg, logger)
	return b.ListenAndServe(ctx, cfg.Bridge.Listen)
}
