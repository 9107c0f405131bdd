// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemkorobko/an26sim/pkg/control"
)

var (
	pingCount    int
	pingInterval time.Duration
	pingPayload  uint8
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping a device and measure the round trip",
	Long: `Send PING requests and wait for the matching PONG.

A device answers PING with a PONG echoing the 4-bit payload and carrying the
version byte plus one. Any other answer counts as a failure.

Exit codes:
  0 - Every ping answered
  1 - At least one ping failed
  2 - Connection error`,
	Run: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 4, "Number of pings to send")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", 500*time.Millisecond, "Delay between pings")
	pingCmd.Flags().Uint8Var(&pingPayload, "payload", 0x05, "Payload of the first ping (incremented per ping)")
}

func runPing(cmd *cobra.Command, args []string) {
	conn, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnectionError)
	}

	fmt.Printf("an26sim - Ping\n")
	fmt.Printf("Connection: %s\n\n", conn.describe())

	ctx, stop := signalContext()
	defer stop()

	failed := 0
	sent := 0
	var total time.Duration

	for i := 0; i < pingCount && ctx.Err() == nil; i++ {
		payload := pingPayload + uint8(i)
		sent++

		reqCtx, cancel := context.WithTimeout(ctx, cfg.Device.Timeout)
		start := time.Now()
		pong, err := conn.dev.Ping(reqCtx, payload)
		rtt := time.Since(start)
		cancel()

		if err != nil {
			failed++
			fmt.Printf("ping payload=%d: \033[1;31mFAILED\033[0m (%v)\n", payload, err)
		} else {
			total += rtt
			fmt.Printf("%s from %s: time=%v\n", control.FormatPacket(pong), conn.dev.Kind(), rtt.Round(time.Microsecond))
		}

		if i < pingCount-1 {
			select {
			case <-ctx.Done():
			case <-time.After(pingInterval):
			}
		}
	}
	conn.Close()

	fmt.Printf("\n--- Ping summary ---\n")
	fmt.Printf("Sent: %d, Answered: %d, Failed: %d\n", sent, sent-failed, failed)
	if answered := sent - failed; answered > 0 {
		fmt.Printf("Average round trip: %v\n", (total / time.Duration(answered)).Round(time.Microsecond))
	}

	if failed > 0 || sent == 0 {
		os.Exit(exitFailed)
	}
	os.Exit(exitOK)
}
