// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid telemetry frame or line",
	Long: `Wait for one valid telemetry frame or line on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any frame or
line that decodes and passes validation. Invalid bytes and rejected lines are
counted and skipped.

Exit codes:
  0 - Telemetry received before timeout
  1 - Timeout reached without valid telemetry
  2 - Connection error

Useful for checking wiring, baud rate and the CSV column order.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for telemetry")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := openLink(cfg.Connection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("ecustat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid telemetry...\n\n")

	decoder := speeduino.NewDecoder(nil)
	decoder.SetFieldOrder(pcfg.FieldOrder)
	snap := speeduino.DefaultSnapshot()

	dataChan, errChan := startReader(conn)
	timeout := time.After(time.Duration(frameTestTimeout) * time.Second)
	rejected := 0

	for {
		select {
		case chunk := <-dataChan:
			var found *speeduino.Event
			decoder.Decode(chunk, &snap, func(ev speeduino.Event) {
				if found != nil {
					return
				}
				switch ev.Kind {
				case speeduino.EventDecoded:
					found = &ev
				case speeduino.EventRejected:
					rejected++
				}
			})
			if found == nil {
				continue
			}
			if rejected > 0 {
				fmt.Printf("(skipped %d rejected frames or lines before sync)\n", rejected)
			}
			fmt.Printf("SUCCESS: Received valid telemetry\n")
			fmt.Printf("  Format: %s\n", found.Record.Format)
			fmt.Printf("  Fields: %s\n", found.Record.Fields)
			fmt.Printf("  Values: %s\n", speeduino.FormatRecord(&found.Record))
			if found.Dropped != 0 {
				fmt.Printf("  Dropped: %s\n", found.Dropped)
			}
			os.Exit(0)

		case err := <-errChan:
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)

		case <-timeout:
			c := decoder.Counters()
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid telemetry received within %d seconds\n", frameTestTimeout)
			fmt.Fprintf(os.Stderr, "  %d bytes read, %d frames or lines rejected\n", c.RawBytes, c.FramesErrored)
			os.Exit(1)
		}
	}
}
