// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// hbloader - HB Bootloader Flashing Driver
//
// Relays write-page and jump commands from a stream to a device running
// the HB bootloader, over a serial port or a WebSocket serial bridge.

package main

import (
	"os"

	"github.com/Thermoquad/hbloader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
