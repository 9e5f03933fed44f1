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

	"github.com/Thermoquad/ecustat/pkg/simulator"
)

var (
	simFormat   string
	simScenario string
	simInterval int
	simDuration int
	simSeed     uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate an ECU sending telemetry",
	Long: `Generate ECU telemetry for bench testing without an engine.

The simulator writes to the connection given with --port or --url, or to
stdout when neither is set. Point the monitor at the other end of a serial
loopback or pty pair to exercise the whole pipeline.

Formats:
  a    binary realtime frames
  b    binary poll responses, only sent when a request byte arrives
  kv   key=value lines
  csv  CSV lines in the configured column order

Scenarios:
  normal    warm-up then cruise, all values in range
  overheat  coolant climbs past the warning limit
  lowbatt   charging voltage sags below the warning limit
  noise     garbage bursts long enough to lose sync
  dropout   silent for 3 seconds out of every 10`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simFormat, "format", "a", "Wire format: a, b, kv or csv")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "normal", "Scenario: normal, overheat, lowbatt, noise or dropout")
	simulateCmd.Flags().IntVar(&simInterval, "interval", 100, "Interval between frames in milliseconds")
	simulateCmd.Flags().IntVar(&simDuration, "duration", 0, "Stop after this many seconds (0 runs until interrupted)")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 1, "Seed for the noise generator")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := simulator.ParseFormat(simFormat)
	if err != nil {
		return err
	}
	scenario, err := simulator.ParseScenario(simScenario)
	if err != nil {
		return err
	}
	if simInterval <= 0 {
		return fmt.Errorf("interval must be positive, got %d", simInterval)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	var requests <-chan []byte
	var errChan <-chan error
	connInfo := "stdout"

	if cfg.Connection.Port != "" || cfg.Connection.URL != "" {
		conn, info, err := openLink(cfg.Connection)
		if err != nil {
			return err
		}
		defer conn.Close()
		out, connInfo = conn, info
		requests, errChan = startReader(conn)
	} else if format == simulator.FormatB {
		return fmt.Errorf("format b answers requests and needs --port or --url")
	}

	// Status goes to stderr so stdout carries only telemetry
	fmt.Fprintf(os.Stderr, "ecustat - ECU Simulator\n")
	fmt.Fprintf(os.Stderr, "Output: %s\n", connInfo)
	fmt.Fprintf(os.Stderr, "Format: %s  Scenario: %s  Interval: %dms\n\n", format, scenario, simInterval)

	sim := simulator.New(scenario, format, pcfg.FieldOrder, simSeed)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var deadline <-chan time.Time
	if simDuration > 0 {
		deadline = time.After(time.Duration(simDuration) * time.Second)
	}

	ticker := time.NewTicker(time.Duration(simInterval) * time.Millisecond)
	defer ticker.Stop()

	start := time.Now()
	sent := 0
	for {
		var data []byte
		select {
		case <-sigChan:
			fmt.Fprintf(os.Stderr, "\n%d writes sent\n", sent)
			return nil
		case <-deadline:
			fmt.Fprintf(os.Stderr, "%d writes sent\n", sent)
			return nil
		case err := <-errChan:
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		case req := <-requests:
			data, err = sim.Respond(req, time.Since(start))
		case <-ticker.C:
			data, err = sim.Emit(time.Since(start))
		}
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		sent++
	}
}
