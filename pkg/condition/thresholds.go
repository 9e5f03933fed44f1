// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package condition

import (
	"fmt"
	"time"
)

// Thresholds configures threshold scoring and the timing windows.
// AFR values are x100 and battery values are millivolts.
type Thresholds struct {
	RPMMax uint16

	CoolantMin    int16
	CoolantMax    int16
	CoolantMargin int16

	AFRMin    uint16
	AFRMax    uint16
	AFRMargin uint16

	BatteryMin    uint16
	BatteryMargin uint16

	DataTimeout   time.Duration
	RecoveryDelay time.Duration
}

// DefaultThresholds returns limits tuned for a road engine.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RPMMax:        8000,
		CoolantMin:    10,
		CoolantMax:    110,
		CoolantMargin: 5,
		AFRMin:        1200,
		AFRMax:        1700,
		AFRMargin:     100,
		BatteryMin:    11000,
		BatteryMargin: 500,
		DataTimeout:   500 * time.Millisecond,
		RecoveryDelay: 2 * time.Second,
	}
}

// Validate checks that the limits are ordered and the windows positive.
func (t Thresholds) Validate() error {
	if t.CoolantMin >= t.CoolantMax {
		return fmt.Errorf("coolant_min (%d) must be below coolant_max (%d)", t.CoolantMin, t.CoolantMax)
	}
	if t.AFRMin >= t.AFRMax {
		return fmt.Errorf("afr_min (%d) must be below afr_max (%d)", t.AFRMin, t.AFRMax)
	}
	if t.CoolantMargin < 0 {
		return fmt.Errorf("coolant_margin must not be negative")
	}
	if t.DataTimeout <= 0 {
		return fmt.Errorf("data_timeout must be positive")
	}
	if t.RecoveryDelay < 0 {
		return fmt.Errorf("recovery_delay must not be negative")
	}
	return nil
}

// Score counts warning and caution hits across coolant, AFR and battery.
func (t Thresholds) Score(coolant int16, afr, battery uint16) (warnings, cautions int) {
	switch {
	case coolant < t.CoolantMin || coolant > t.CoolantMax:
		warnings++
	case int(coolant) < int(t.CoolantMin)+int(t.CoolantMargin) || int(coolant) > int(t.CoolantMax)-int(t.CoolantMargin):
		cautions++
	}

	switch {
	case afr < t.AFRMin || afr > t.AFRMax:
		warnings++
	case int(afr) < int(t.AFRMin)+int(t.AFRMargin) || int(afr) > int(t.AFRMax)-int(t.AFRMargin):
		cautions++
	}

	switch {
	case battery < t.BatteryMin:
		warnings++
	case int(battery) < int(t.BatteryMin)+int(t.BatteryMargin):
		cautions++
	}

	return warnings, cautions
}

// Combine maps hit counts to a state. One warning or two cautions already
// escalate to Warning.
func Combine(warnings, cautions int) State {
	switch {
	case warnings >= 1:
		return Warning
	case cautions >= 2:
		return Warning
	case cautions >= 1:
		return Caution
	default:
		return Normal
	}
}
