// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import "time"

// Snapshot is the latest telemetry known about the engine.
//
// A Snapshot is owned by one goroutine. Other goroutines receive copies, which
// keeps readers from ever observing a half-applied decode.
type Snapshot struct {
	RPM         uint16
	CoolantC    int16
	AFRx100     uint16
	MAPkPa      uint8
	ThrottlePct uint8
	IntakeC     int16
	BatteryMV   uint16

	SyncLossCount uint32
	IsSynced      bool
	LastUpdate    time.Time
	IsDataValid   bool
}

// DefaultSnapshot returns a snapshot holding power-on defaults.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		AFRx100:   DefaultAFRx100,
		BatteryMV: DefaultBatteryMV,
	}
}

// Reset restores power-on defaults. It is the only way SyncLossCount goes
// down.
func (s *Snapshot) Reset() {
	*s = DefaultSnapshot()
}

// Apply commits every field present in r and stamps the update time.
// LastUpdate never moves backwards.
func (s *Snapshot) Apply(r *Record, now time.Time) {
	if r.Fields.Has(FieldRPM) {
		s.RPM = r.RPM
	}
	if r.Fields.Has(FieldMAP) {
		s.MAPkPa = r.MAPkPa
	}
	if r.Fields.Has(FieldThrottle) {
		s.ThrottlePct = r.ThrottlePct
	}
	if r.Fields.Has(FieldCoolant) {
		s.CoolantC = r.CoolantC
	}
	if r.Fields.Has(FieldIntake) {
		s.IntakeC = r.IntakeC
	}
	if r.Fields.Has(FieldAFR) {
		s.AFRx100 = r.AFRx100
	}
	if r.Fields.Has(FieldBattery) {
		s.BatteryMV = r.BatteryMV
	}
	if now.After(s.LastUpdate) {
		s.LastUpdate = now
	}
	s.IsDataValid = true
}

// Age returns how long ago the snapshot was last updated. A snapshot that
// never received data reports a negative age.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if !s.IsDataValid {
		return -1
	}
	return now.Sub(s.LastUpdate)
}

// IsStale reports whether no decode has committed within timeout.
func (s *Snapshot) IsStale(now time.Time, timeout time.Duration) bool {
	if !s.IsDataValid {
		return true
	}
	return now.Sub(s.LastUpdate) > timeout
}

// AFR returns the air-fuel ratio as a float for display.
func (s *Snapshot) AFR() float64 {
	return float64(s.AFRx100) / 100.0
}

// BatteryVolts returns the battery voltage as a float for display.
func (s *Snapshot) BatteryVolts() float64 {
	return float64(s.BatteryMV) / 1000.0
}
