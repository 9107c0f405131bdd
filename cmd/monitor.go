// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor decoder frames and detect anomalies",
	Long: `Track the parameter frames reported by a decoder with statistics.

This command validates each packet and detects:
  - Empty or oversized PARAMS frames
  - ERROR responses (parameter overflow, invalid index)
  - Unknown or truncated packets
  - Statistics and trends (frame rate, per-parameter min, max and changes)

By default, only problems are listed in the event log. Use --show-all to log
every frame too.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds, text mode)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("invalid --stats-interval %d", statsInterval)
	}

	conn, err := openKind(driver.KindDecoder)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signalContext()
	defer stop()

	if useTUI {
		return runTUIMode(ctx, conn)
	}
	return runTextMode(ctx, conn)
}

// readPackets reads packets from the link until ctx ends or the link closes,
// handing each decoded and validated packet to emit.
func readPackets(ctx context.Context, link driver.Link, emit func(tea.Msg)) {
	buf := make([]byte, control.MaxPacketSize)
	for {
		n, err := link.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, control.ErrClosed) || errors.Is(err, driver.ErrConnectionClosed) {
				emit(linkClosedMsg{})
				return
			}
			emit(readErrMsg{err: err})
			continue
		}

		resp := control.DecodeResponse(buf[:n])
		emit(packetMsg{
			at:        time.Now(),
			packet:    resp,
			anomalies: control.ValidatePacket(resp),
		})
	}
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(ctx context.Context, conn *connection) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialMonitorModel(conn.describe(), showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	go readPackets(ctx, conn.dev.Link(), p.Send)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runTextMode runs the monitor in text mode
func runTextMode(ctx context.Context, conn *connection) error {
	fmt.Printf("an26sim - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", conn.describe())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := newFrameStats(time.Now())

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	msgs := make(chan tea.Msg, 16)
	go readPackets(ctx, conn.dev.Link(), func(msg tea.Msg) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
		}
	})

	for {
		select {
		case <-ctx.Done():
			stats.calculateRates(time.Now())
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case msg := <-msgs:
			switch msg := msg.(type) {
			case packetMsg:
				stats.update(msg.packet, msg.anomalies)
				if len(msg.anomalies) > 0 {
					printPacket(msg.at, msg.packet)
					continue
				}
				switch msg.packet.(type) {
				case control.Params:
					if showAll {
						printPacket(msg.at, msg.packet)
					}
				default:
					// Errors and stray responses are always of interest
					printPacket(msg.at, msg.packet)
				}
			case readErrMsg:
				logger.Warn("read error", zap.Error(msg.err))
			case linkClosedMsg:
				logger.Info("connection closed")
				fmt.Print(stats.String())
				return nil
			}

		case now := <-statsTicker.C:
			stats.calculateRates(now)
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
