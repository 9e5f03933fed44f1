// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import "strings"

// Format identifies which wire format produced a record.
type Format uint8

const (
	FormatNone Format = iota
	FormatBinaryA
	FormatBinaryB
	FormatKeyValue
	FormatCSV
)

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatBinaryA:
		return "BINARY_A"
	case FormatBinaryB:
		return "BINARY_B"
	case FormatKeyValue:
		return "KEY_VALUE"
	case FormatCSV:
		return "CSV"
	default:
		return "NONE"
	}
}

// IsBinary reports whether the format is a fixed-layout frame.
func (f Format) IsBinary() bool {
	return f == FormatBinaryA || f == FormatBinaryB
}

// Fields is a set of telemetry fields carried by a record.
type Fields uint8

const (
	FieldRPM Fields = 1 << iota
	FieldMAP
	FieldThrottle
	FieldCoolant
	FieldIntake
	FieldAFR
	FieldBattery

	AllFields = FieldRPM | FieldMAP | FieldThrottle | FieldCoolant | FieldIntake | FieldAFR | FieldBattery
)

var fieldNames = []struct {
	field Fields
	name  string
}{
	{FieldRPM, "RPM"},
	{FieldMAP, "MAP"},
	{FieldThrottle, "TPS"},
	{FieldCoolant, "CLT"},
	{FieldIntake, "IAT"},
	{FieldAFR, "AFR"},
	{FieldBattery, "BAT"},
}

// Has reports whether every field in f2 is present.
func (f Fields) Has(f2 Fields) bool {
	return f&f2 == f2
}

// Count returns the number of fields in the set.
func (f Fields) Count() int {
	n := 0
	for _, fn := range fieldNames {
		if f&fn.field != 0 {
			n++
		}
	}
	return n
}

// String returns the field names joined with '|'
func (f Fields) String() string {
	if f == 0 {
		return "-"
	}
	names := make([]string, 0, len(fieldNames))
	for _, fn := range fieldNames {
		if f&fn.field != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseField maps a field name (case-insensitive) to its bit. Battery accepts
// the BAT, VBAT and BATTERY spellings.
func ParseField(name string) (Fields, bool) {
	switch strings.ToUpper(name) {
	case "RPM":
		return FieldRPM, true
	case "MAP":
		return FieldMAP, true
	case "TPS":
		return FieldThrottle, true
	case "CLT":
		return FieldCoolant, true
	case "IAT":
		return FieldIntake, true
	case "AFR":
		return FieldAFR, true
	case "BAT", "VBAT", "BATTERY":
		return FieldBattery, true
	}
	return 0, false
}

// SyncAssertion is what a record says about engine sync.
type SyncAssertion uint8

const (
	// SyncUnasserted means the format carries no sync information.
	SyncUnasserted SyncAssertion = iota
	// SyncAsserted means the ECU reported sync.
	SyncAsserted
	// SyncDenied means the ECU reported no sync.
	SyncDenied
)

// Record holds the values decoded from one frame or line. Only fields in
// Fields are meaningful.
type Record struct {
	Format Format
	Fields Fields
	Sync   SyncAssertion

	RPM         uint16
	MAPkPa      uint8
	ThrottlePct uint8
	CoolantC    int16
	IntakeC     int16
	AFRx100     uint16
	BatteryMV   uint16
}
