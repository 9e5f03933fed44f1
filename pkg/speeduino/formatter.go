// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"fmt"
	"strings"
	"time"
)

// FormatEvent formats a decoder event into a human-readable line
func FormatEvent(ev Event, at time.Time) string {
	timestamp := at.Format("15:04:05.000")

	switch ev.Kind {
	case EventDecoded:
		result := fmt.Sprintf("[%s] %s %s", timestamp, ev.Record.Format, FormatRecord(&ev.Record))
		if ev.Dropped != 0 {
			result += fmt.Sprintf(" dropped=%s", ev.Dropped)
		}
		return result + "\n"

	case EventRejected:
		msg := "rejected"
		if ev.Err != nil {
			msg = fmt.Sprintf("%s (%s)", ev.Err.Message, ev.Err.Type)
		}
		result := fmt.Sprintf("[%s] ERROR %s", timestamp, msg)
		if ev.SyncLost {
			result += " SYNC LOST"
		}
		return result + "\n"

	case EventOverflow:
		return fmt.Sprintf("[%s] line overflow (>%d chars), discarding to end of line\n", timestamp, MaxLineLength)
	}
	return ""
}

// FormatRecord formats the fields present in a record
func FormatRecord(r *Record) string {
	parts := []string{}
	if r.Fields.Has(FieldRPM) {
		parts = append(parts, fmt.Sprintf("rpm=%d", r.RPM))
	}
	if r.Fields.Has(FieldMAP) {
		parts = append(parts, fmt.Sprintf("map=%dkPa", r.MAPkPa))
	}
	if r.Fields.Has(FieldThrottle) {
		parts = append(parts, fmt.Sprintf("tps=%d%%", r.ThrottlePct))
	}
	if r.Fields.Has(FieldCoolant) {
		parts = append(parts, fmt.Sprintf("clt=%dC", r.CoolantC))
	}
	if r.Fields.Has(FieldIntake) {
		parts = append(parts, fmt.Sprintf("iat=%dC", r.IntakeC))
	}
	if r.Fields.Has(FieldAFR) {
		parts = append(parts, fmt.Sprintf("afr=%.2f", float64(r.AFRx100)/100.0))
	}
	if r.Fields.Has(FieldBattery) {
		parts = append(parts, fmt.Sprintf("bat=%.1fV", float64(r.BatteryMV)/1000.0))
	}
	switch r.Sync {
	case SyncAsserted:
		parts = append(parts, "sync=yes")
	case SyncDenied:
		parts = append(parts, "sync=no")
	}
	return strings.Join(parts, " ")
}

// FormatSnapshot formats a snapshot as a single status line
func FormatSnapshot(s *Snapshot, now time.Time) string {
	if !s.IsDataValid {
		return "no data"
	}
	sync := "no"
	if s.IsSynced {
		sync = "yes"
	}
	return fmt.Sprintf("rpm=%d map=%dkPa tps=%d%% clt=%dC iat=%dC afr=%.2f bat=%.1fV sync=%s losses=%d age=%s",
		s.RPM, s.MAPkPa, s.ThrottlePct, s.CoolantC, s.IntakeC, s.AFR(), s.BatteryVolts(),
		sync, s.SyncLossCount, formatAge(s.Age(now)))
}

// FormatCounters formats the decoder counters for the debug dump
func FormatCounters(c Counters, now time.Time) string {
	lastRx := "never"
	if !c.LastRx.IsZero() {
		lastRx = formatAge(now.Sub(c.LastRx)) + " ago"
	}
	result := fmt.Sprintf("Frames OK:       %8d\n", c.FramesReceived)
	result += fmt.Sprintf("Frames Errored:  %8d\n", c.FramesErrored)
	result += fmt.Sprintf("Consecutive Err: %8d\n", c.ConsecutiveErrors)
	result += fmt.Sprintf("Raw Bytes:       %8d\n", c.RawBytes)
	result += fmt.Sprintf("Line Overflows:  %8d\n", c.LineOverflows)
	result += fmt.Sprintf("Dropped Fields:  %8d\n", c.DroppedFields)
	if c.PayloadLines > 0 {
		result += fmt.Sprintf("Payload Lines:   %8d\n", c.PayloadLines)
	}
	if c.Requests > 0 {
		result += fmt.Sprintf("Requests:        %8d\n", c.Requests)
		result += fmt.Sprintf("Resp. Timeouts:  %8d\n", c.ResponseTimeouts)
	}
	result += fmt.Sprintf("Last RX:         %s\n", lastRx)
	return result
}

// FormatHex formats bytes as space-separated hex
func FormatHex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// formatAge renders a duration at millisecond resolution
func formatAge(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(100 * time.Millisecond).String()
}
