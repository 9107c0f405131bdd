// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display control packets as the device sends them.

Each packet is printed with a timestamp and its decoded fields. Packets that
fail validation (empty PARAMS, bad indices, unknown opcodes) are followed by
the detected anomalies.

Supports USB, serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("an26sim - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", conn.describe())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signalContext()
	defer stop()

	link := conn.dev.Link()
	stats := conn.dev.Statistics()
	buf := make([]byte, control.MaxPacketSize)

	for {
		n, err := link.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Printf("\n%s\n", stats)
				return nil
			}
			// A closed link does not come back
			if errors.Is(err, control.ErrClosed) || errors.Is(err, driver.ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			logger.Warn("read error", zap.Error(err))
			continue
		}

		resp := control.DecodeResponse(buf[:n])
		stats.Response(resp)
		printPacket(time.Now(), resp)
	}
}

// printPacket prints one decoded packet followed by its anomalies.
func printPacket(ts time.Time, p control.Packet) {
	fmt.Printf("[%s] %s\n", ts.Format("15:04:05.000"), control.FormatPacket(p))
	for i, anomaly := range control.ValidatePacket(p) {
		fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, anomaly.Message)
	}
}
