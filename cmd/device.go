// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/artemkorobko/an26sim/pkg/control"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the firmware version of a device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := requestContext()
		defer cancel()

		version, err := conn.dev.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s firmware %s\n", conn.dev.Kind(), version)
		return nil
	},
}

var ledCmd = &cobra.Command{
	Use:       "led on|off",
	Short:     "Switch the device LED",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		switch args[0] {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("invalid LED state %q (use on or off)", args[0])
		}

		conn, err := OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := requestContext()
		defer cancel()

		if err := conn.dev.SetLED(ctx, on); err != nil {
			return err
		}
		fmt.Printf("LED %s\n", args[0])
		return nil
	},
}

var paramCmd = &cobra.Command{
	Use:   "param",
	Short: "Read or write a single parameter",
	Long: `Read or write one of the 12 parameters held by the device.

On the emulator a written value is sent with the next frame; a running
generator on the same index overwrites it on its next step.`,
}

var paramGetCmd = &cobra.Command{
	Use:   "get <index>",
	Short: "Read a parameter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}

		conn, err := OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := requestContext()
		defer cancel()

		value, err := conn.dev.GetParam(ctx, index)
		if err != nil {
			return err
		}
		fmt.Printf("param[%d] = %d (0x%04X)\n", index, value, value)
		return nil
	},
}

var paramSetCmd = &cobra.Command{
	Use:   "set <index> <value>",
	Short: "Write a parameter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		value, err := parseValue(args[1])
		if err != nil {
			return err
		}

		conn, err := OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := requestContext()
		defer cancel()

		if err := conn.dev.SetParam(ctx, index, value); err != nil {
			return err
		}
		fmt.Printf("param[%d] <- %d (0x%04X)\n", index, value, value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ledCmd)
	rootCmd.AddCommand(paramCmd)
	paramCmd.AddCommand(paramGetCmd)
	paramCmd.AddCommand(paramSetCmd)
}

// parseIndex parses a parameter index in [0, 12).
func parseIndex(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || n >= control.MaxParams {
		return 0, fmt.Errorf("invalid parameter index %q (0-%d)", s, control.MaxParams-1)
	}
	return uint8(n), nil
}

// parseValue parses a 16-bit value in decimal or 0x hex.
func parseValue(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q (0-65535)", s)
	}
	return uint16(n), nil
}
