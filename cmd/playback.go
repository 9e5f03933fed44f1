// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

var playbackCmd = &cobra.Command{
	Use:   "playback <file.cbor>",
	Short: "Print snapshots from a monitor recording",
	Long: `Print the snapshots saved by monitor --record, one line each.

Use --realtime to replay with the recorded spacing between samples.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlayback,
}

var playbackRealtime bool

func init() {
	rootCmd.AddCommand(playbackCmd)
	playbackCmd.Flags().BoolVar(&playbackRealtime, "realtime", false, "Replay with the recorded timing")
}

func runPlayback(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	return playback(os.Stdout, speeduino.NewPlayer(f), playbackRealtime)
}

// playback prints every sample. With realtime it sleeps between samples for
// the recorded gap.
func playback(w io.Writer, player *speeduino.Player, realtime bool) error {
	var prev time.Time
	count := 0
	for {
		sample, err := player.Next()
		if errors.Is(err, io.EOF) {
			fmt.Fprintf(w, "%d samples\n", count)
			return nil
		}
		if err != nil {
			return err
		}

		at := sample.Time()
		if realtime && !prev.IsZero() && at.After(prev) {
			time.Sleep(at.Sub(prev))
		}
		prev = at

		snap := sample.Snapshot()
		fmt.Fprintf(w, "[%s] %-9s %s", at.Format("15:04:05.000"), sample.State, speeduino.FormatSnapshot(&snap, at)+"\n")
		count++
	}
}
