// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
)

var (
	waitDuration time.Duration
	waitIndex    int
	waitValue    int
	waitQuiet    bool
)

var waitFrameCmd = &cobra.Command{
	Use:   "wait_frame",
	Short: "Wait for a parameter frame from the decoder",
	Long: `Wait until the decoder reports a PARAMS frame, then print it and exit.

With --index and --value the command keeps waiting until the parameter at
index holds the given value. Useful in scripts to check that the emulator to
decoder path is alive.

Exit codes:
  0 - Matching frame received
  1 - No matching frame within --wait
  2 - Connection error`,
	Run: runWaitFrame,
}

func init() {
	rootCmd.AddCommand(waitFrameCmd)
	waitFrameCmd.Flags().DurationVarP(&waitDuration, "wait", "w", 5*time.Second, "How long to wait for a frame")
	waitFrameCmd.Flags().IntVar(&waitIndex, "index", -1, "Parameter index to match")
	waitFrameCmd.Flags().IntVar(&waitValue, "value", -1, "Value the parameter at --index must hold")
	waitFrameCmd.Flags().BoolVarP(&waitQuiet, "quiet", "q", false, "Only set the exit code")
}

// frameMatches reports whether a frame satisfies the index/value filter.
func frameMatches(values []uint16, index, value int) bool {
	if index < 0 {
		return true
	}
	if index >= len(values) {
		return false
	}
	return value < 0 || int(values[index]) == value
}

func runWaitFrame(cmd *cobra.Command, args []string) {
	if waitIndex >= control.MaxParams {
		fmt.Fprintf(os.Stderr, "invalid --index %d (0-%d)\n", waitIndex, control.MaxParams-1)
		os.Exit(exitFailed)
	}

	conn, err := openKind(driver.KindDecoder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnectionError)
	}
	defer conn.Close()

	sig, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(sig, waitDuration)
	defer cancel()

	decoder := driver.NewDecoder(conn.dev)
	start := time.Now()
	frames := 0

	for {
		values, err := decoder.ReadParams(ctx)
		if err != nil {
			conn.Close()
			if errors.Is(err, driver.ErrTimeout) {
				if !waitQuiet {
					fmt.Printf("No matching frame after %v (%d frames seen)\n", waitDuration, frames)
				}
				os.Exit(exitFailed)
			}
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(exitConnectionError)
		}
		frames++

		if frameMatches(values, waitIndex, waitValue) {
			if !waitQuiet {
				fmt.Printf("Frame after %v: %s\n", time.Since(start).Round(time.Millisecond), control.FormatValues(values))
			}
			conn.Close()
			os.Exit(exitOK)
		}
	}
}
