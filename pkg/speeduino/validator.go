// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import "fmt"

// AnomalyType represents different kinds of decode failures and field anomalies
type AnomalyType int

const (
	AnomalyHighRPM AnomalyType = iota
	AnomalyBatteryRange
	AnomalyFieldRange
	AnomalyTooFewFields
	AnomalyNoFields
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyHighRPM:
		return "HIGH_RPM"
	case AnomalyBatteryRange:
		return "BATTERY_RANGE"
	case AnomalyFieldRange:
		return "FIELD_RANGE"
	case AnomalyTooFewFields:
		return "TOO_FEW_FIELDS"
	case AnomalyNoFields:
		return "NO_FIELDS"
	default:
		return fmt.Sprintf("ANOMALY_%d", int(a))
	}
}

// ValidationError represents a frame or line that failed validation
type ValidationError struct {
	Type    AnomalyType
	Format  Format
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks decoded binary values against the plausibility
// bounds. Returns a slice of validation errors (empty if the frame is valid).
func ValidateFrame(f Format, rpm uint16, batteryRaw uint8) []ValidationError {
	errors := []ValidationError{}

	if rpm > MaxFrameRPM {
		errors = append(errors, ValidationError{
			Type:    AnomalyHighRPM,
			Format:  f,
			Message: fmt.Sprintf("%s: RPM %d exceeds %d", f, rpm, MaxFrameRPM),
			Details: map[string]interface{}{"rpm": rpm, "max": MaxFrameRPM},
		})
	}

	if batteryRaw > MaxFrameBatteryRaw {
		errors = append(errors, ValidationError{
			Type:    AnomalyBatteryRange,
			Format:  f,
			Message: fmt.Sprintf("%s: battery %.1f V exceeds %.1f V", f, float64(batteryRaw)/10, float64(MaxFrameBatteryRaw)/10),
			Details: map[string]interface{}{"battery_raw": batteryRaw, "max": MaxFrameBatteryRaw},
		})
	}

	return errors
}

func lineError(f Format, typ AnomalyType, msg string, details map[string]interface{}) *ValidationError {
	return &ValidationError{
		Type:    typ,
		Format:  f,
		Message: fmt.Sprintf("%s: %s", f, msg),
		Details: details,
	}
}
