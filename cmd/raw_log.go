// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

var rawLogHex bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames and lines as they arrive",
	Long: `Continuously decode the ECU stream and print every frame or line.

Each decoded record is shown with its timestamp, wire format and the fields it
carried. Rejected frames and lines are shown with the validation failure, and
sync losses are flagged. No condition classification is done here; use the
monitor command for that.

With --request (or decoder.request.enabled in the config file) the ECU is
polled with the realtime request command.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print the raw bytes of every read")
	rawLogCmd.Flags().Bool("request", false, "Poll the ECU with the realtime request command")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("request") {
		cfg.Decoder.Request.Enabled, _ = cmd.Flags().GetBool("request")
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := openLink(cfg.Connection)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("ecustat - Raw Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("CSV order: %s\n", pcfg.FieldOrder)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := speeduino.NewDecoder(nil)
	decoder.SetFieldOrder(pcfg.FieldOrder)
	if pcfg.Request.Enabled {
		decoder.ConfigureRequest(pcfg.Request.Command, pcfg.Request.Period, pcfg.Request.Window)
	}
	snap := speeduino.DefaultSnapshot()

	dataChan, errChan := startReader(conn)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			return nil

		case err := <-errChan:
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)

		case chunk := <-dataChan:
			if rawLogHex {
				fmt.Printf("[%s] RX %s\n", time.Now().Format("15:04:05.000"), speeduino.FormatHex(chunk))
			}
			decoder.Decode(chunk, &snap, func(ev speeduino.Event) {
				fmt.Print(speeduino.FormatEvent(ev, time.Now()))
			})

		case <-ticker.C:
			if cmdByte, ok := decoder.PollRequest(); ok {
				if _, err := conn.Write([]byte{cmdByte}); err != nil {
					log.Printf("Request write failed: %v", err)
				}
			}
		}
	}
}
