// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko
//
// an26sim - SM2M decoder and emulator toolkit
//
// A CLI tool for talking to SM2M bus devices and running them in-process.

package main

import (
	"os"

	"github.com/artemkorobko/an26sim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
