// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"encoding/binary"
	"time"
)

// Binary frame decoder states
const (
	frameIdle = iota
	frameHeaderFound
	frameCollecting
	frameReady
)

// frameDecoder assembles fixed-size binary frames.
type frameDecoder struct {
	state    int
	format   Format
	expected int
	buffer   [MaxFrameSize]byte
	index    int

	// Poll mode: a response is only accepted before the deadline.
	awaiting bool
	deadline time.Time
}

func (f *frameDecoder) reset() {
	f.state = frameIdle
	f.format = FormatNone
	f.expected = 0
	f.index = 0
}

// collecting reports whether a frame is partially assembled.
func (f *frameDecoder) collecting() bool {
	return f.state != frameIdle
}

// expect opens a response window after a poll request.
func (f *frameDecoder) expect(deadline time.Time) {
	f.awaiting = true
	f.deadline = deadline
}

// expire drops an unfinished response once its window has closed.
// Returns true if a partial frame was discarded.
func (f *frameDecoder) expire(now time.Time) bool {
	if !f.awaiting || !now.After(f.deadline) {
		return false
	}
	f.awaiting = false
	if f.format == FormatBinaryB && f.collecting() {
		f.reset()
		return true
	}
	return false
}

// feed pushes one byte. It returns true once a full frame sits in the buffer.
func (f *frameDecoder) feed(b byte) bool {
	switch f.state {
	case frameIdle:
		switch {
		case b == FrameSentinel:
			f.format = FormatBinaryA
			f.expected = FrameSizeA
		case f.awaiting:
			f.format = FormatBinaryB
			f.expected = FrameSizeB
		default:
			return false
		}
		f.buffer[0] = b
		f.index = 1
		f.state = frameHeaderFound
		return false

	case frameHeaderFound, frameCollecting:
		f.buffer[f.index] = b
		f.index++
		f.state = frameCollecting
		if f.index >= f.expected {
			f.state = frameReady
			f.awaiting = false
			return true
		}
		return false

	default:
		f.reset()
		return false
	}
}

// decode extracts a record from the completed frame and resets the machine.
func (f *frameDecoder) decode(r *Record) *ValidationError {
	format := f.format
	frame := f.buffer[:f.expected]
	defer f.reset()

	var batteryRaw uint8
	switch format {
	case FormatBinaryA:
		*r = decodeFormatA(frame)
		batteryRaw = frame[1+offABattery]
	case FormatBinaryB:
		*r = decodeFormatB(frame)
		batteryRaw = frame[offBBattery]
	}

	if errs := ValidateFrame(format, r.RPM, batteryRaw); len(errs) > 0 {
		return &errs[0]
	}
	return nil
}

func decodeFormatA(frame []byte) Record {
	// Offsets are relative to the byte after the sentinel.
	frame = frame[1:]
	r := Record{
		Format:      FormatBinaryA,
		Fields:      AllFields,
		RPM:         binary.LittleEndian.Uint16(frame[offARPM:]),
		CoolantC:    int16(int8(frame[offACoolant])),
		AFRx100:     binary.LittleEndian.Uint16(frame[offAAFR:]),
		MAPkPa:      frame[offAMAP],
		ThrottlePct: frame[offAThrottle],
		IntakeC:     int16(int8(frame[offAIntake])),
		BatteryMV:   uint16(frame[offABattery]) * 100,
		Sync:        SyncDenied,
	}
	if frame[offAStatus]&StatusSyncBit != 0 {
		r.Sync = SyncAsserted
	}
	return r
}

func decodeFormatB(frame []byte) Record {
	return Record{
		Format:      FormatBinaryB,
		Fields:      AllFields,
		MAPkPa:      uint8(binary.LittleEndian.Uint16(frame[offBMAP:]) >> 8),
		IntakeC:     int16(int8(frame[offBIntake])),
		CoolantC:    int16(int8(frame[offBCoolant])),
		BatteryMV:   uint16(frame[offBBattery]) * 100,
		AFRx100:     uint16(frame[offBAFR]) * 10,
		RPM:         binary.LittleEndian.Uint16(frame[offBRPM:]),
		ThrottlePct: frame[offBThrottle],
		Sync:        SyncAsserted,
	}
}
