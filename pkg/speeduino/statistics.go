// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"fmt"
	"time"
)

// Statistics tracks decode outcomes and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames   uint64
	ValidFrames   uint64
	BinaryA       uint64
	BinaryB       uint64
	KeyValueLines uint64
	CSVLines      uint64
	Rejected      uint64
	HighRPM       uint64
	BatteryRange  uint64
	TooFewFields  uint64
	NoFields      uint64
	FieldRange    uint64
	DroppedFields uint64
	LineOverflows uint64
	SyncLosses    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics from a decoder event
func (s *Statistics) Update(ev Event) {
	switch ev.Kind {
	case EventNone:
		return
	case EventOverflow:
		s.LineOverflows++
		return
	}

	s.TotalFrames++
	s.DroppedFields += uint64(ev.Dropped.Count())

	if ev.Kind == EventRejected {
		s.Rejected++
		if ev.Err != nil {
			switch ev.Err.Type {
			case AnomalyHighRPM:
				s.HighRPM++
			case AnomalyBatteryRange:
				s.BatteryRange++
			case AnomalyTooFewFields:
				s.TooFewFields++
			case AnomalyNoFields:
				s.NoFields++
			case AnomalyFieldRange:
				s.FieldRange++
			}
		}
		if ev.SyncLost {
			s.SyncLosses++
		}
		return
	}

	s.ValidFrames++
	switch ev.Record.Format {
	case FormatBinaryA:
		s.BinaryA++
	case FormatBinaryB:
		s.BinaryB++
	case FormatKeyValue:
		s.KeyValueLines++
	case FormatCSV:
		s.CSVLines++
	}

	// Update timestamp for rate calculation
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Rejected) / elapsed
	}
}

// ValidPercent returns the share of completed frames that decoded.
func (s *Statistics) ValidPercent() float64 {
	if s.TotalFrames == 0 {
		return 0
	}
	return float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var rejectedPercent float64
	if s.TotalFrames > 0 {
		rejectedPercent = float64(s.Rejected) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, s.ValidPercent())

	if s.BinaryA > 0 {
		result += fmt.Sprintf("  Binary A:         %5d\n", s.BinaryA)
	}
	if s.BinaryB > 0 {
		result += fmt.Sprintf("  Binary B:         %5d\n", s.BinaryB)
	}
	if s.KeyValueLines > 0 {
		result += fmt.Sprintf("  Key=Value:        %5d\n", s.KeyValueLines)
	}
	if s.CSVLines > 0 {
		result += fmt.Sprintf("  CSV:              %5d\n", s.CSVLines)
	}

	if s.Rejected > 0 {
		result += fmt.Sprintf("Rejected:        %8d (%.1f%%)\n", s.Rejected, rejectedPercent)
		if s.HighRPM > 0 {
			result += fmt.Sprintf("  High RPM (>%d): %5d\n", MaxFrameRPM, s.HighRPM)
		}
		if s.BatteryRange > 0 {
			result += fmt.Sprintf("  Battery Range:    %5d\n", s.BatteryRange)
		}
		if s.TooFewFields > 0 {
			result += fmt.Sprintf("  Too Few Fields:   %5d\n", s.TooFewFields)
		}
		if s.NoFields > 0 {
			result += fmt.Sprintf("  No Usable Fields: %5d\n", s.NoFields)
		}
		if s.FieldRange > 0 {
			result += fmt.Sprintf("  Out Of Range:     %5d\n", s.FieldRange)
		}
	}
	if s.DroppedFields > 0 {
		result += fmt.Sprintf("Dropped Fields:  %8d\n", s.DroppedFields)
	}
	if s.LineOverflows > 0 {
		result += fmt.Sprintf("Line Overflows:  %8d\n", s.LineOverflows)
	}
	if s.SyncLosses > 0 {
		result += fmt.Sprintf("Sync Losses:     %8d\n", s.SyncLosses)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	*s = Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
