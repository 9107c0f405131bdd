// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
	"github.com/artemkorobko/an26sim/pkg/recording"
)

var (
	replaySpeed      float64
	replayToEmulator bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Play back a frame recording",
	Long: `Play back a recording made with record.

Frames are printed with their recorded offset. With --to-emulator every
frame is written to the emulator parameter by parameter, so a decoder attached
to the emulator sees the recorded flight again. Stop any running generators
first or they will overwrite the replayed values.

--speed scales the recorded timing; 0 replays as fast as possible.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed multiplier (0 for no delay)")
	replayCmd.Flags().BoolVar(&replayToEmulator, "to-emulator", false, "Write frames to the emulator")
}

func runReplay(cmd *cobra.Command, args []string) error {
	reader, file, err := recording.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	header := reader.Header()
	fmt.Printf("an26sim - Replay\n")
	fmt.Printf("Recording: %s (session %s)\n", args[0], header.Session)
	fmt.Printf("Captured from %s at %s\n", header.Device, header.Started.Format(time.RFC3339))
	if header.Note != "" {
		fmt.Printf("Note: %s\n", header.Note)
	}

	var emulator *driver.Emulator
	if replayToEmulator {
		conn, err := openKind(driver.KindEmulator)
		if err != nil {
			return err
		}
		defer conn.Close()
		emulator = driver.NewEmulator(conn.dev)
		fmt.Printf("Target: %s\n", conn.describe())
	}
	fmt.Println()

	ctx, stop := signalContext()
	defer stop()

	frames := 0
	err = reader.Replay(ctx, replaySpeed, func(rec recording.Record) error {
		frames++
		fmt.Printf("[%10s] %s\n", rec.Offset.Round(time.Millisecond), control.FormatValues(rec.Values))
		if emulator == nil {
			return nil
		}
		return writeFrame(ctx, emulator, rec.Values)
	})

	fmt.Printf("\nReplayed %d frames\n", frames)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// writeFrame writes every value of a frame to the emulator.
func writeFrame(ctx context.Context, em *driver.Emulator, values []uint16) error {
	for i, v := range values {
		reqCtx, cancel := context.WithTimeout(ctx, cfg.Device.Timeout)
		err := em.SetParam(reqCtx, uint8(i), v)
		cancel()
		if err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}
	return nil
}
