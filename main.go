// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// ecustat - ECU Telemetry Monitor
//
// A CLI tool for decoding engine control unit telemetry, classifying the
// engine condition and showing it on a dashboard.

package main

import (
	"os"

	"github.com/Thermoquad/ecustat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
