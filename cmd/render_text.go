// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/pipeline"
	"github.com/Thermoquad/ecustat/pkg/redraw"
)

// textRenderer prints a region when the frame marks it dirty or its text
// changed since it was last printed. Unchanged regions cost nothing.
type textRenderer struct {
	w    io.Writer
	last map[redraw.Regions]string
}

func newTextRenderer(w io.Writer) *textRenderer {
	return &textRenderer{w: w, last: make(map[redraw.Regions]string)}
}

func (t *textRenderer) render(f pipeline.Frame) {
	timestamp := f.At.Format("15:04:05.000")
	redraw.AllRegions.Each(func(r redraw.Regions) {
		line, ok := textRegion(r, f)
		if !ok {
			delete(t.last, r)
			return
		}
		prev, seen := t.last[r]
		if f.Dirty&r == 0 && seen && prev == line {
			return
		}
		t.last[r] = line
		fmt.Fprintf(t.w, "[%s] %s\n", timestamp, line)
	})
}

// textRegion renders a single region. Regions with nothing to show return
// false.
func textRegion(r redraw.Regions, f pipeline.Frame) (string, bool) {
	s := &f.Snapshot

	switch r {
	case redraw.Header:
		if f.State == condition.Recovery {
			return fmt.Sprintf("== RECOVERY %3d%% ==", f.Progress/10*10), true
		}
		return fmt.Sprintf("== %s ==", f.State), true

	case redraw.PrimaryField:
		if !s.IsDataValid {
			return "RPM  -----", true
		}
		line := fmt.Sprintf("RPM  %5d", s.RPM)
		if f.Overspeed {
			line += "  OVERSPEED"
		}
		return line, true

	case redraw.CoreGroup:
		if !s.IsDataValid {
			return "CLT ---  AFR -----  BAT ----", true
		}
		return fmt.Sprintf("CLT %3dC  AFR %5.2f  BAT %4.1fV", s.CoolantC, s.AFR(), s.BatteryVolts()), true

	case redraw.SecondaryGroup:
		if !s.IsDataValid {
			return "MAP ---  TPS ---  IAT ---", true
		}
		return fmt.Sprintf("MAP %3dkPa  TPS %3d%%  IAT %3dC", s.MAPkPa, s.ThrottlePct, s.IntakeC), true

	case redraw.Footer:
		sync := "no"
		if s.IsSynced {
			sync = "yes"
		}
		return fmt.Sprintf("sync=%s losses=%d frames=%d errors=%d",
			sync, s.SyncLossCount, f.Counters.FramesReceived, f.Counters.FramesErrored), true

	case redraw.FullScreenOverride:
		if f.State != condition.SyncLoss {
			return "", false
		}
		if f.Phase.Visible() {
			return "!!!!!!!! SYNC LOSS !!!!!!!!", true
		}
		return "         sync loss         ", true
	}
	return "", false
}

// formatNotice formats a transition or sync-loss line for text mode
func formatNotice(at time.Time, msg string, isError bool) string {
	timestamp := at.Format("15:04:05.000")
	if isError {
		return fmt.Sprintf("[%s] \033[1;31m%s\033[0m\n", timestamp, msg)
	}
	return fmt.Sprintf("[%s] \033[1;33m%s\033[0m\n", timestamp, msg)
}
