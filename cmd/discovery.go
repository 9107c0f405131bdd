// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemkorobko/an26sim/pkg/driver"
)

var discoveryCheck bool

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List attached SM2M devices",
	Long: `Enumerate SM2M devices through libusb and the serial port enumerator.

Devices are matched by USB vendor 0x0483 and product 0x5740 and told apart by
their serial number string (SM2M-DECODER, SM2M-EMULATOR, SM2M-ENCODER).

With --check every serial port found is opened and pinged.

Exit codes:
  0 - At least one device found
  1 - No devices found
  2 - Enumeration error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().BoolVar(&discoveryCheck, "check", false, "Ping every device found over its serial port")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	drv := driver.New(logger)
	defer drv.Close()

	fmt.Printf("an26sim - Device Discovery\n\n")

	devices, err := drv.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration error: %v\n", err)
		os.Exit(exitConnectionError)
	}

	for _, info := range devices {
		fmt.Printf("Device found:\n")
		fmt.Printf("  Kind: %s\n", info.Kind)
		fmt.Printf("  Serial: %s\n", info.Serial)
		fmt.Printf("  Transport: %s\n", info.Transport)
		fmt.Printf("  Path: %s\n", info.Path)

		if discoveryCheck && info.Transport == driver.TransportSerial {
			fmt.Printf("  Check: %s\n", checkSerialDevice(info))
		}
		fmt.Println()
	}

	// Summary
	fmt.Printf("--- Discovery summary ---\n")
	fmt.Printf("Devices found: %d\n", len(devices))

	if len(devices) == 0 {
		fmt.Printf("No devices discovered. Check the USB cable and device power.\n")
		os.Exit(exitFailed)
	}
	return nil
}

func checkSerialDevice(info driver.DeviceInfo) string {
	link, err := driver.OpenSerial(info.Path, cfg.Device.Baud)
	if err != nil {
		return fmt.Sprintf("FAILED (%v)", err)
	}
	dev := driver.NewDevice(link, info.Kind, logger)
	defer dev.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := dev.Check(ctx); err != nil {
		return fmt.Sprintf("FAILED (%v)", err)
	}
	version, err := dev.Version(ctx)
	if err != nil {
		return fmt.Sprintf("FAILED (%v)", err)
	}
	return fmt.Sprintf("OK, firmware %s, %v round trip", version, time.Since(start).Round(time.Millisecond))
}
