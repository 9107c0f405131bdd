// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
	"github.com/artemkorobko/an26sim/pkg/recording"
)

var (
	recordOutput   string
	recordFrames   uint64
	recordDuration time.Duration
	recordNote     string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record decoder frames to a file",
	Long: `Capture the PARAMS frames reported by a decoder into a CBOR recording.

Recording stops on Ctrl+C, after --frames frames or after --duration,
whichever comes first. The recording can be played back with replay.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Recording file (required)")
	recordCmd.Flags().Uint64Var(&recordFrames, "frames", 0, "Stop after this many frames (0 for no limit)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 for no limit)")
	recordCmd.Flags().StringVar(&recordNote, "note", "", "Free text stored in the recording header")
	recordCmd.MarkFlagRequired("output")
}

func runRecord(cmd *cobra.Command, args []string) error {
	conn, err := openKind(driver.KindDecoder)
	if err != nil {
		return err
	}
	defer conn.Close()

	header := recording.NewHeader(conn.dev.String(), time.Now())
	header.Note = recordNote
	out, err := recording.Create(recordOutput, header)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	fmt.Printf("an26sim - Record\n")
	fmt.Printf("Connection: %s\n", conn.describe())
	fmt.Printf("Output: %s (session %s)\n", recordOutput, header.Session)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	decoder := driver.NewDecoder(conn.dev)
	progress := time.NewTicker(time.Second)
	defer progress.Stop()

	var recErr error
	for recordFrames == 0 || out.Count() < recordFrames {
		values, err := decoder.ReadParams(ctx)
		if err != nil {
			if ctx.Err() == nil {
				recErr = err
			}
			break
		}
		if err := out.Write(values); err != nil {
			recErr = err
			break
		}

		select {
		case <-progress.C:
			fmt.Printf("\r%d frames, last %s", out.Count(), control.FormatValues(values))
		default:
		}
	}

	if err := out.Close(); err != nil && recErr == nil {
		recErr = fmt.Errorf("failed to close recording: %w", err)
	}
	fmt.Printf("\nRecorded %d frames in %s\n", out.Count(), formatUptime(time.Since(header.Started)))
	logger.Info("recording finished",
		zap.String("file", recordOutput),
		zap.Uint64("frames", out.Count()),
		zap.Stringer("session", header.Session))
	return recErr
}
