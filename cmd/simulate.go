// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/artemkorobko/an26sim/pkg/bridge"
	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
	"github.com/artemkorobko/an26sim/pkg/firmware"
	"github.com/artemkorobko/an26sim/pkg/generator"
)

var simulateServe bool

// defaultProfile keeps every parameter moving when no profile is configured.
const defaultProfile = `
name: default
fps: 25
generators:
  - {index: 0, value: 0, period: 1, step: 1}
  - {index: 1, value: 100, period: 2, step: 5, max: 2000}
  - {index: 2, value: 500, period: 1, step: 10, min: 500, max: 1500}
  - {index: 3, value: 4095}
  - {index: 4, value: 0, period: 5, step: 1, max: 360}
  - {index: 5, value: 1000, period: 1, step: 3, bounce: 50}
  - {index: 6, value: 0, period: 10, step: 100, max: 30000}
  - {index: 7, value: 21}
  - {index: 8, value: 800, period: 3, step: 2, min: 700, max: 900}
  - {index: 9, value: 0, period: 1, step: 64}
  - {index: 10, value: 12000, period: 4, step: 50, min: 10000, max: 14000}
  - {index: 11, value: 1}
`

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an emulator and a decoder in-process",
	Long: `Run the emulator and decoder firmware in-process, connected by an
in-memory SM2M bus.

The emulator starts with the generator profile from --profile (or
simulator.profile); without one a built-in profile drives all 12 parameters.
By default the frames received by the decoder are printed.

With --serve both simulated devices are exposed over websocket instead:
  ws://<listen>/decoder/   the decoder
  ws://<listen>/emulator/  the emulator
so every other command can talk to them with --transport websocket.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindListen(cmd); err != nil {
			return err
		}
		if err := bindFlag(cmd.Flags(), "simulator.profile", "profile"); err != nil {
			return err
		}
		if err := bindFlag(cmd.Flags(), "simulator.seed", "seed"); err != nil {
			return err
		}
		cfg.Simulator.Profile = v.GetString("simulator.profile")
		cfg.Simulator.Seed = v.GetUint64("simulator.seed")
		return nil
	},
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("profile", "", "Generator profile YAML")
	simulateCmd.Flags().Uint64("seed", 1, "Seed for generator bounces")
	simulateCmd.Flags().StringP("listen", "l", ":8026", "Address to listen on with --serve")
	simulateCmd.Flags().BoolVar(&simulateServe, "serve", false, "Serve both devices over websocket")
}

// simulatorProfile loads the configured profile or the built-in one.
func simulatorProfile(path string) (*generator.Profile, error) {
	if path != "" {
		return generator.LoadProfile(path)
	}
	return generator.ParseProfile([]byte(defaultProfile))
}

func runSimulate(cmd *cobra.Command, args []string) error {
	profile, err := simulatorProfile(cfg.Simulator.Profile)
	if err != nil {
		return err
	}

	seed := cfg.Simulator.Seed
	sim, err := firmware.NewSimulator(firmware.SimulatorConfig{
		Profile:    profile,
		LatchDepth: cfg.Simulator.LatchDepth,
		PipeDepth:  cfg.Simulator.PipeDepth,
		Rand:       rand.New(rand.NewPCG(seed, seed^0x5a5a5a5a)),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger.Info("simulator configured",
		zap.String("profile", profile.Name),
		zap.Uint8("fps", profile.FPS),
		zap.Int("generators", len(profile.Generators)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sim.Run(gctx)
	})
	if simulateServe {
		g.Go(func() error {
			return serveSimulator(gctx, sim, cfg.Bridge.Listen)
		})
	} else {
		g.Go(func() error {
			return printFrames(gctx, sim.DecoderLink())
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, control.ErrClosed) {
		return nil
	}
	return err
}

// printFrames prints every frame the simulated decoder reports.
func printFrames(ctx context.Context, link driver.Link) error {
	dev := driver.NewDevice(link, driver.KindDecoder, logger)
	decoder := driver.NewDecoder(dev)

	version, err := dev.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("an26sim - Simulator (firmware %s)\n", version)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		values, err := decoder.ReadParams(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Printf("\n%s\n", dev.Statistics())
				return nil
			}
			return err
		}
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), control.FormatValues(values))
	}
}

// serveSimulator exposes both simulated devices over websocket on one
// listener.
func serveSimulator(ctx context.Context, sim *firmware.Simulator, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	decoder := bridge.New(sim.DecoderLink(), bridgeConfig(), logger)
	emulator := bridge.New(sim.EmulatorLink(), bridgeConfig(), logger)

	mux := http.NewServeMux()
	mux.Handle("/decoder/", http.StripPrefix("/decoder", decoder.Handler()))
	mux.Handle("/emulator/", http.StripPrefix("/emulator", emulator.Handler()))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return decoder.Run(gctx) })
	g.Go(func() error { return emulator.Run(gctx) })
	g.Go(func() error {
		logger.Info("simulator listening",
			zap.String("decoder", fmt.Sprintf("ws://%s/decoder/", ln.Addr())),
			zap.String("emulator", fmt.Sprintf("ws://%s/emulator/", ln.Addr())))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
