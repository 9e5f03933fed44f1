// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Encoders build wire data from a Record. They back the simulator and the
// decoder tests. Every field is written regardless of r.Fields.

// EncodeFormatA builds a 128-byte realtime frame.
func EncodeFormatA(r *Record, synced bool) ([]byte, error) {
	if err := checkFrameRanges(r); err != nil {
		return nil, err
	}

	frame := make([]byte, FrameSizeA)
	frame[0] = FrameSentinel
	payload := frame[1:]
	binary.LittleEndian.PutUint16(payload[offARPM:], r.RPM)
	payload[offACoolant] = byte(int8(r.CoolantC))
	binary.LittleEndian.PutUint16(payload[offAAFR:], r.AFRx100)
	payload[offAMAP] = r.MAPkPa
	payload[offAThrottle] = r.ThrottlePct
	payload[offAIntake] = byte(int8(r.IntakeC))
	payload[offABattery] = byte(r.BatteryMV / 100)
	if synced {
		payload[offAStatus] |= StatusSyncBit
	}
	return frame, nil
}

// EncodeFormatB builds a 74-byte poll response. AFR is truncated to 0.1
// resolution.
func EncodeFormatB(r *Record) ([]byte, error) {
	if err := checkFrameRanges(r); err != nil {
		return nil, err
	}
	if r.AFRx100/10 > 255 {
		return nil, fmt.Errorf("AFR %d does not fit a format B byte", r.AFRx100)
	}

	frame := make([]byte, FrameSizeB)
	// Byte 0 must never look like the format A sentinel.
	frame[0] = 'A'
	binary.LittleEndian.PutUint16(frame[offBMAP:], uint16(r.MAPkPa)<<8)
	frame[offBIntake] = byte(int8(r.IntakeC))
	frame[offBCoolant] = byte(int8(r.CoolantC))
	frame[offBBattery] = byte(r.BatteryMV / 100)
	frame[offBAFR] = byte(r.AFRx100 / 10)
	binary.LittleEndian.PutUint16(frame[offBRPM:], r.RPM)
	frame[offBThrottle] = r.ThrottlePct
	return frame, nil
}

func checkFrameRanges(r *Record) error {
	if r.CoolantC < -128 || r.CoolantC > 127 {
		return fmt.Errorf("coolant %d C does not fit a signed byte", r.CoolantC)
	}
	if r.IntakeC < -128 || r.IntakeC > 127 {
		return fmt.Errorf("intake %d C does not fit a signed byte", r.IntakeC)
	}
	if r.BatteryMV/100 > 255 {
		return fmt.Errorf("battery %d mV does not fit a frame byte", r.BatteryMV)
	}
	return nil
}

// EncodeKeyValue builds a "KEY=value,..." line terminated by CRLF.
// AFR and battery are written as decimals.
func EncodeKeyValue(r *Record) []byte {
	parts := []string{
		"RPM=" + strconv.Itoa(int(r.RPM)),
		"MAP=" + strconv.Itoa(int(r.MAPkPa)),
		"TPS=" + strconv.Itoa(int(r.ThrottlePct)),
		"CLT=" + strconv.Itoa(int(r.CoolantC)),
		"IAT=" + strconv.Itoa(int(r.IntakeC)),
		"AFR=" + formatFixed(int(r.AFRx100), 2),
		"BAT=" + formatFixed(int(r.BatteryMV), 3),
	}
	return []byte(strings.Join(parts, ",") + "\r\n")
}

// EncodeCSV builds a positional CSV line in the given column order,
// terminated by LF. AFR is written as a ratio and battery in millivolts.
func EncodeCSV(r *Record, order FieldOrder) []byte {
	cols := make([]string, 0, len(order))
	for _, f := range order {
		switch f {
		case FieldRPM:
			cols = append(cols, strconv.Itoa(int(r.RPM)))
		case FieldMAP:
			cols = append(cols, strconv.Itoa(int(r.MAPkPa)))
		case FieldThrottle:
			cols = append(cols, strconv.Itoa(int(r.ThrottlePct)))
		case FieldCoolant:
			cols = append(cols, strconv.Itoa(int(r.CoolantC)))
		case FieldIntake:
			cols = append(cols, strconv.Itoa(int(r.IntakeC)))
		case FieldAFR:
			cols = append(cols, formatFixed(int(r.AFRx100), 2))
		case FieldBattery:
			cols = append(cols, strconv.Itoa(int(r.BatteryMV)))
		default:
			cols = append(cols, "0")
		}
	}
	return []byte(strings.Join(cols, ",") + "\n")
}

// formatFixed renders v / 10^places with exactly places decimals.
func formatFixed(v int, places int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	scale := 1
	for i := 0; i < places; i++ {
		scale *= 10
	}
	s := fmt.Sprintf("%d.%0*d", v/scale, places, v%scale)
	if neg {
		s = "-" + s
	}
	return s
}
