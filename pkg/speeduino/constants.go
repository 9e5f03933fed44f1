// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package speeduino decodes the telemetry stream of a Speeduino-class engine
// control unit.
//
// The ECU may emit fixed-layout binary realtime frames (the 128-byte "A"
// frame or the 74-byte legacy response) or human-readable text lines
// (key=value or positional CSV), interleaved on the same byte stream. The
// Decoder runs a binary frame state machine and a text line state machine
// side by side over every byte and commits successful decodes into a
// Snapshot.
package speeduino

import "time"

// Binary frame framing
const (
	FrameSentinel = 0xAA

	FrameSizeA = 128
	FrameSizeB = 74

	MaxFrameSize = FrameSizeA
)

// Format A field offsets (little-endian), counted from the byte after the
// sentinel
const (
	offARPM      = 0 // u16
	offACoolant  = 2 // i8, degC
	offAAFR      = 4 // u16, AFR x100
	offAMAP      = 6 // u8, kPa
	offAThrottle = 10
	offAIntake   = 14 // i8, degC
	offABattery  = 20 // u8, 0.1 V
	offAStatus   = 31 // bit 0 = sync
)

// Format B field offsets (little-endian)
const (
	offBMAP      = 4 // u16, high byte kept
	offBIntake   = 6
	offBCoolant  = 7
	offBBattery  = 9  // u8, 0.1 V
	offBAFR      = 10 // u8, AFR x10
	offBRPM      = 14 // u16
	offBThrottle = 24
)

// StatusSyncBit is the sync flag in the format A status byte.
const StatusSyncBit = 0x01

// Binary frame plausibility bounds
const (
	MaxFrameRPM        = 15000
	MaxFrameBatteryRaw = 160 // 16.0 V
)

// Text line limits
const (
	LineBufferSize = 160
	MaxLineLength  = LineBufferSize - 1
	MinCSVFields   = 6
	maxKeyLength   = 11
)

// Text field plausibility bounds
const (
	MaxTextRPM       = 18000
	MaxTextMAP       = 255
	MaxTextThrottle  = 100
	MinAFRx100       = 800
	MaxAFRx100       = 2500
	MaxBatteryMV     = 20000
	maxDecimalAFR    = 5000  // AFR below 50.00 is taken as a ratio
	maxDecimalVolts  = 30000 // battery below 30 V is taken as volts
	maxTenthsBattery = 160
)

// Confidence bookkeeping
const (
	// SyncLossThreshold is the number of consecutive failed decodes that
	// raise a sync-loss event.
	SyncLossThreshold = 10

	// SyncDebounce is the number of consecutive plausible decodes needed
	// to promote IsSynced when the format does not assert it.
	SyncDebounce = 3
)

// Request (poll) mode defaults
const (
	DefaultRequestPeriod  = 50 * time.Millisecond
	DefaultResponseWindow = 150 * time.Millisecond
)

// Snapshot defaults
const (
	DefaultAFRx100   = 1400
	DefaultBatteryMV = 12000
)

// recentBytesSize is the size of the raw byte history kept for debug dumps.
const recentBytesSize = 32

// maxHeldLines bounds the text lines that can complete inside one frame.
// Every line needs a printable byte and a terminator.
const maxHeldLines = FrameSizeA / 2
