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
	ecuPingTimeout int
	ecuPingCount   int
)

var ecuPingCmd = &cobra.Command{
	Use:   "ecu_ping",
	Short: "Test the ECU by sending the realtime request command",
	Long: `Send the realtime request command and wait for a binary poll response.

This command tests bidirectional communication with the ECU. Each ping writes
the configured request command (decoder.request.command, 'A' by default) and
waits for a format B response frame. Streaming telemetry arriving in between is
decoded but does not count as a response.

This is useful for verifying:
  - The connection is established in both directions
  - HTTP Basic authentication works (WebSocket)
  - The ECU answers poll requests
  - Round-trip latency

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runEcuPing,
}

func init() {
	rootCmd.AddCommand(ecuPingCmd)
	ecuPingCmd.Flags().IntVar(&ecuPingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	ecuPingCmd.Flags().IntVar(&ecuPingCount, "count", 3, "Number of pings to send")
}

func runEcuPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	command, err := speeduino.ParseRequestCommand(cfg.Decoder.Request.Command)
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

	timeout := time.Duration(ecuPingTimeout) * time.Second

	fmt.Printf("ecustat - ECU Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Command: 0x%02X\n", command)
	fmt.Printf("Timeout: %d seconds per ping\n", ecuPingTimeout)
	fmt.Printf("Count: %d pings\n\n", ecuPingCount)

	decoder := speeduino.NewDecoder(nil)
	decoder.ConfigureRequest(command, time.Millisecond, timeout)
	snap := speeduino.DefaultSnapshot()
	dataChan, errChan := startReader(conn)

	successCount := 0
	failCount := 0

	for i := 1; i <= ecuPingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, ecuPingCount)

		// Arms the decoder for the response window
		request, ok := decoder.PollRequest()
		if !ok {
			fmt.Printf("SKIPPED (previous response still pending)\n")
			failCount++
			continue
		}

		startTime := time.Now()
		if _, err := conn.Write([]byte{request}); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		result, err := awaitPollResponse(decoder, &snap, dataChan, errChan, timeout)
		switch {
		case err != nil:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount++
		case result == nil:
			fmt.Printf("TIMEOUT (no response in %ds)\n", ecuPingTimeout)
			failCount++
		default:
			rtt := time.Since(startTime)
			fmt.Printf("response %s, rtt=%v\n", speeduino.FormatRecord(result), rtt.Round(time.Millisecond))
			successCount++
		}

		// Small delay between pings
		if i < ecuPingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		ecuPingCount, successCount, float64(failCount)/float64(ecuPingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// awaitPollResponse decodes incoming data until a format B frame decodes.
// It returns nil without error on timeout.
func awaitPollResponse(d *speeduino.Decoder, snap *speeduino.Snapshot, dataChan <-chan []byte, errChan <-chan error, timeout time.Duration) (*speeduino.Record, error) {
	deadline := time.After(timeout)
	for {
		select {
		case chunk := <-dataChan:
			var rec *speeduino.Record
			d.Decode(chunk, snap, func(ev speeduino.Event) {
				if rec == nil && ev.Kind == speeduino.EventDecoded && ev.Record.Format == speeduino.FormatBinaryB {
					rec = &ev.Record
				}
			})
			if rec != nil {
				return rec, nil
			}
		case err := <-errChan:
			return nil, err
		case <-deadline:
			return nil, nil
		}
	}
}
