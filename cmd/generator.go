// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/artemkorobko/an26sim/pkg/driver"
	"github.com/artemkorobko/an26sim/pkg/generator"
)

var (
	genValue  uint16
	genPeriod uint8
	genStep   uint16
	genBounce uint8
)

var generatorCmd = &cobra.Command{
	Use:   "generator",
	Short: "Configure the emulator's value generators",
	Long: `Configure the value generators of an emulator device.

Each of the 12 parameters can carry a generator. A generator with a zero step
holds its value; otherwise it moves by step every period frames and reverses
at the firmware bounds. A non-zero bounce replaces every bounce-th value with
a random one inside the bounds.

These commands always talk to the emulator, regardless of --kind.`,
}

var generatorEnableCmd = &cobra.Command{
	Use:   "enable <index>",
	Short: "Install a generator on a parameter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return withEmulator(func(em *driver.Emulator) error {
			ctx, cancel := requestContext()
			defer cancel()

			gc := generator.Config{Value: genValue, Period: genPeriod, Step: genStep, Bounce: genBounce}
			if err := em.EnableGenerator(ctx, index, gc); err != nil {
				return err
			}
			fmt.Printf("generator[%d] value=%d period=%d step=%d bounce=%d\n",
				index, gc.Value, gc.Period, gc.Step, gc.Bounce)
			return nil
		})
	},
}

var generatorDisableCmd = &cobra.Command{
	Use:   "disable <index>",
	Short: "Remove the generator from a parameter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return withEmulator(func(em *driver.Emulator) error {
			ctx, cancel := requestContext()
			defer cancel()

			if err := em.DisableGenerator(ctx, index); err != nil {
				return err
			}
			fmt.Printf("generator[%d] disabled\n", index)
			return nil
		})
	},
}

var generatorStartCmd = &cobra.Command{
	Use:   "start <fps>",
	Short: "Start frame emission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fps, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil || fps == 0 {
			return fmt.Errorf("invalid fps %q (1-255)", args[0])
		}
		return withEmulator(func(em *driver.Emulator) error {
			ctx, cancel := requestContext()
			defer cancel()

			if err := em.StartProducer(ctx, uint8(fps)); err != nil {
				return err
			}
			fmt.Printf("producer started at %d fps\n", fps)
			return nil
		})
	},
}

var generatorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop frame emission",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEmulator(func(em *driver.Emulator) error {
			ctx, cancel := requestContext()
			defer cancel()

			if err := em.StopProducer(ctx); err != nil {
				return err
			}
			fmt.Printf("producer stopped\n")
			return nil
		})
	},
}

var generatorApplyCmd = &cobra.Command{
	Use:   "apply <profile.yaml>",
	Short: "Apply a generator profile and start emission",
	Long: `Load a YAML generator profile, install each of its generators and start
emission at the profile rate. Min and max in the profile are only used by the
in-process simulator; the device keeps its own bounds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := generator.LoadProfile(args[0])
		if err != nil {
			return err
		}
		return withEmulator(func(em *driver.Emulator) error {
			ctx, cancel := requestContext()
			defer cancel()

			if err := em.ApplyProfile(ctx, profile); err != nil {
				return err
			}
			fmt.Printf("profile %q applied: %d generators at %d fps\n",
				profile.Name, len(profile.Generators), profile.FPS)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(generatorCmd)
	generatorCmd.AddCommand(generatorEnableCmd, generatorDisableCmd, generatorStartCmd,
		generatorStopCmd, generatorApplyCmd)

	flags := generatorEnableCmd.Flags()
	flags.Uint16Var(&genValue, "value", 0, "Initial value")
	flags.Uint8Var(&genPeriod, "period", 1, "Frames between steps")
	flags.Uint16Var(&genStep, "step", 0, "Increment per step (0 holds the value)")
	flags.Uint8Var(&genBounce, "bounce", 0, "Replace every n-th value with a random one (0 disables)")
}

// withEmulator opens the emulator and runs fn against it.
func withEmulator(fn func(em *driver.Emulator) error) error {
	conn, err := openKind(driver.KindEmulator)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(driver.NewEmulator(conn.dev))
}
