// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	tests := []struct {
		name   string
		mutate func(*Thresholds)
		want   string
	}{
		{"coolant inverted", func(th *Thresholds) { th.CoolantMin = 120 }, "coolant_min"},
		{"afr inverted", func(th *Thresholds) { th.AFRMax = th.AFRMin }, "afr_min"},
		{"negative margin", func(th *Thresholds) { th.CoolantMargin = -1 }, "coolant_margin"},
		{"zero timeout", func(th *Thresholds) { th.DataTimeout = 0 }, "data_timeout"},
		{"negative delay", func(th *Thresholds) { th.RecoveryDelay = -1 }, "recovery_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			err := th.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestCombine(t *testing.T) {
	assert.Equal(t, Normal, Combine(0, 0))
	assert.Equal(t, Caution, Combine(0, 1))
	assert.Equal(t, Warning, Combine(0, 2))
	assert.Equal(t, Warning, Combine(1, 0))
	assert.Equal(t, Warning, Combine(3, 3))
}

func TestState_String(t *testing.T) {
	want := []string{"NO_DATA", "NORMAL", "CAUTION", "WARNING", "SYNC_LOSS", "RECOVERY"}
	for i, s := range States {
		assert.Equal(t, want[i], s.String())
		assert.True(t, s.Valid())
	}
	assert.Equal(t, "UNKNOWN", State(99).String())
	assert.True(t, Warning.IsAlarm())
	assert.True(t, SyncLoss.IsAlarm())
	assert.False(t, Caution.IsAlarm())
}
