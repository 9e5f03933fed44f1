// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

func decodeAll(t *testing.T, d *speeduino.Decoder, data []byte) []speeduino.Event {
	t.Helper()
	snap := speeduino.DefaultSnapshot()
	var events []speeduino.Event
	d.Decode(data, &snap, func(ev speeduino.Event) {
		events = append(events, ev)
	})
	return events
}

func TestParse(t *testing.T) {
	sc, err := ParseScenario("Overheat")
	require.NoError(t, err)
	assert.Equal(t, Overheat, sc)
	_, err = ParseScenario("meltdown")
	assert.Error(t, err)

	f, err := ParseFormat("KV")
	require.NoError(t, err)
	assert.Equal(t, FormatKeyValue, f)
	_, err = ParseFormat("json")
	assert.Error(t, err)
}

func TestStreamingFormatsDecode(t *testing.T) {
	at := 5 * time.Second
	for _, format := range []Format{FormatA, FormatKeyValue, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			sim := New(Normal, format, speeduino.FieldOrder{}, 1)
			require.True(t, sim.Streams())

			data, err := sim.Emit(at)
			require.NoError(t, err)

			events := decodeAll(t, speeduino.NewDecoder(nil), data)
			require.Len(t, events, 1)
			require.Equal(t, speeduino.EventDecoded, events[0].Kind)

			want := sim.Record(at)
			assert.Equal(t, want.RPM, events[0].Record.RPM)
			assert.Equal(t, want.CoolantC, events[0].Record.CoolantC)
		})
	}
}

func TestFormatB_AnswersRequests(t *testing.T) {
	sim := New(Normal, FormatB, speeduino.FieldOrder{}, 1)
	assert.False(t, sim.Streams())

	data, err := sim.Emit(time.Second)
	require.NoError(t, err)
	assert.Nil(t, data, "format B is never sent unprompted")

	data, err = sim.Respond([]byte("x"), time.Second)
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = sim.Respond([]byte{speeduino.CmdRealtime}, time.Second)
	require.NoError(t, err)
	assert.Len(t, data, speeduino.FrameSizeB)

	d := speeduino.NewDecoder(nil)
	d.ConfigureRequest(speeduino.CmdRealtime, time.Millisecond, time.Second)
	_, ok := d.PollRequest()
	require.True(t, ok)

	events := decodeAll(t, d, data)
	require.Len(t, events, 1)
	assert.Equal(t, speeduino.EventDecoded, events[0].Kind)
	assert.Equal(t, speeduino.FormatBinaryB, events[0].Record.Format)
	assert.Equal(t, sim.Record(time.Second).RPM, events[0].Record.RPM)
}

func TestNormalStaysInLimits(t *testing.T) {
	th := condition.DefaultThresholds()
	sim := New(Normal, FormatA, speeduino.FieldOrder{}, 1)

	for t0 := time.Duration(0); t0 < 2*time.Minute; t0 += 250 * time.Millisecond {
		rec := sim.Record(t0)
		warnings, cautions := th.Score(rec.CoolantC, rec.AFRx100, rec.BatteryMV)
		assert.Zero(t, warnings, "at %v", t0)
		assert.Zero(t, cautions, "at %v", t0)
		assert.LessOrEqual(t, rec.RPM, th.RPMMax)
	}
}

func TestFaultScenarios(t *testing.T) {
	th := condition.DefaultThresholds()

	hot := New(Overheat, FormatA, speeduino.FieldOrder{}, 1).Record(40 * time.Second)
	assert.Greater(t, hot.CoolantC, th.CoolantMax)
	warnings, _ := th.Score(hot.CoolantC, hot.AFRx100, hot.BatteryMV)
	assert.Equal(t, 1, warnings)

	flat := New(LowBattery, FormatA, speeduino.FieldOrder{}, 1).Record(time.Minute)
	assert.Equal(t, uint16(10500), flat.BatteryMV)
	warnings, _ = th.Score(flat.CoolantC, flat.AFRx100, flat.BatteryMV)
	assert.Equal(t, 1, warnings)
}

func TestDropout(t *testing.T) {
	sim := New(Dropout, FormatKeyValue, speeduino.FieldOrder{}, 1)

	data, err := sim.Emit(time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	data, err = sim.Emit(8 * time.Second)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = sim.Emit(11 * time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "cycle restarts")
}

func TestNoiseLosesSync(t *testing.T) {
	sim := New(Noise, FormatCSV, speeduino.FieldOrder{}, 7)
	d := speeduino.NewDecoder(nil)
	snap := speeduino.DefaultSnapshot()

	syncLost := false
	rejected := 0
	for t0 := time.Duration(0); t0 < noiseCycle; t0 += 100 * time.Millisecond {
		data, err := sim.Emit(t0)
		require.NoError(t, err)
		d.Decode(data, &snap, func(ev speeduino.Event) {
			if ev.Kind == speeduino.EventRejected {
				rejected++
			}
			if ev.SyncLost {
				syncLost = true
			}
		})
	}
	assert.Equal(t, int(noiseBurst/(100*time.Millisecond)), rejected)
	assert.True(t, syncLost)
	assert.True(t, snap.IsDataValid, "good lines decoded before the burst")
}
