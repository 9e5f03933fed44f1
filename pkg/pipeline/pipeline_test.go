// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pipeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ecustat/internal/monitoring"
	"github.com/Thermoquad/ecustat/pkg/clock"
	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/redraw"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func cruise() speeduino.Record {
	return speeduino.Record{
		RPM:         3000,
		CoolantC:    85,
		AFRx100:     1470,
		MAPkPa:      95,
		ThrottlePct: 20,
		IntakeC:     30,
		BatteryMV:   13800,
	}
}

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *clock.Mock) {
	t.Helper()
	c := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	p, err := New(DefaultConfig(), c, opts...)
	require.NoError(t, err)
	return p, c
}

func frameA(t *testing.T, r speeduino.Record) []byte {
	t.Helper()
	b, err := speeduino.EncodeFormatA(&r, true)
	require.NoError(t, err)
	return b
}

func TestNew_RejectsBadThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.DataTimeout = 0
	_, err := New(cfg, nil)
	assert.ErrorContains(t, err, "invalid thresholds")
}

func TestStep_DecodeToNormal(t *testing.T) {
	var transitions []Transition
	p, c := newTestPipeline(t, WithTransitionHandler(func(tr Transition) {
		transitions = append(transitions, tr)
	}))

	it := p.Step(nil)
	assert.Equal(t, condition.NoData, it.State)
	assert.Equal(t, redraw.AllRegions, p.Frame().Dirty, "first observation paints everything")
	p.ConsumeRegions(redraw.AllRegions)

	c.Advance(10 * time.Millisecond)
	it = p.Step(frameA(t, cruise()))
	assert.Equal(t, 1, it.Decoded)
	assert.Equal(t, condition.Recovery, it.State)
	assert.True(t, it.Changed)

	for i := 0; i < 45; i++ {
		c.Advance(50 * time.Millisecond)
		it = p.Step(frameA(t, cruise()))
	}
	assert.Equal(t, condition.Normal, it.State)

	require.Len(t, transitions, 2)
	assert.Equal(t, condition.NoData, transitions[0].From)
	assert.Equal(t, condition.Recovery, transitions[0].To)
	assert.Equal(t, condition.Normal, transitions[1].To)
	assert.Equal(t, uint16(3000), transitions[1].Snapshot.RPM)

	f := p.Frame()
	assert.True(t, f.Snapshot.IsSynced)
	assert.Equal(t, uint16(3000), f.Snapshot.RPM)
	assert.False(t, f.Overspeed)
}

func TestStep_SyncLossAndBlink(t *testing.T) {
	var events []speeduino.Event
	p, c := newTestPipeline(t, WithEventHandler(func(ev speeduino.Event) {
		events = append(events, ev)
	}))
	c.Advance(10 * time.Millisecond)
	p.Step(frameA(t, cruise()))

	noise := bytes.Repeat([]byte("noise\n"), speeduino.SyncLossThreshold)
	it := p.Step(noise)
	assert.Equal(t, speeduino.SyncLossThreshold, it.Rejected)
	assert.True(t, it.SyncLost)
	assert.Equal(t, condition.SyncLoss, it.State)
	assert.True(t, events[len(events)-1].SyncLost)

	f := p.Frame()
	assert.Equal(t, redraw.BlinkOn, f.Phase)
	assert.Equal(t, uint32(1), f.Snapshot.SyncLossCount)
	assert.False(t, f.Snapshot.IsSynced)
	p.ConsumeRegions(redraw.AllRegions)

	c.Advance(250 * time.Millisecond)
	p.Step(nil)
	assert.Equal(t, redraw.None, p.Frame().Dirty)

	c.Advance(250 * time.Millisecond)
	p.Step(nil)
	f = p.Frame()
	assert.Equal(t, redraw.FullScreenOverride, f.Dirty)
	assert.Equal(t, redraw.BlinkBlinking, f.Phase)
}

func TestStep_StrayMarkerKeepsLines(t *testing.T) {
	var seen []speeduino.EventKind
	p, _ := newTestPipeline(t, WithEventHandler(func(ev speeduino.Event) {
		seen = append(seen, ev.Kind)
	}))

	chunk := append([]byte{speeduino.FrameSentinel}, bytes.Repeat([]byte("RPM=1234,CLT=85\n"), 10)...)
	it := p.Step(chunk)

	assert.Equal(t, 10, it.Decoded)
	assert.Equal(t, 1, it.Rejected)
	assert.Len(t, seen, 11)
	assert.Equal(t, uint16(1234), p.Frame().Snapshot.RPM)
}

func TestStep_StaleDataFallsBackToNoData(t *testing.T) {
	p, c := newTestPipeline(t)
	c.Advance(10 * time.Millisecond)
	p.Step(frameA(t, cruise()))

	c.Advance(501 * time.Millisecond)
	assert.Equal(t, condition.NoData, p.Step(nil).State)
}

func TestRenderDue(t *testing.T) {
	p, c := newTestPipeline(t)

	assert.True(t, p.RenderDue())
	assert.False(t, p.RenderDue())
	c.Advance(49 * time.Millisecond)
	assert.False(t, p.RenderDue())
	c.Advance(time.Millisecond)
	assert.True(t, p.RenderDue())
}

func TestFrame_IsACopy(t *testing.T) {
	p, c := newTestPipeline(t)
	c.Advance(10 * time.Millisecond)
	p.Step(frameA(t, cruise()))
	f := p.Frame()

	r := cruise()
	r.RPM = 4500
	p.Step(frameA(t, r))

	assert.Equal(t, uint16(3000), f.Snapshot.RPM)
	assert.Equal(t, uint16(4500), p.Frame().Snapshot.RPM)
}

func TestCommands(t *testing.T) {
	var transitions []Transition
	p, c := newTestPipeline(t, WithTransitionHandler(func(tr Transition) {
		transitions = append(transitions, tr)
	}))
	c.Advance(10 * time.Millisecond)
	p.Step(frameA(t, cruise()))
	p.ConsumeRegions(redraw.AllRegions)

	p.ClearDisplay()
	assert.Equal(t, redraw.AllRegions, p.Frame().Dirty)
	p.ConsumeRegions(redraw.AllRegions)

	p.ForceSyncLoss()
	assert.Equal(t, condition.SyncLoss, p.Frame().State)
	require.NotEmpty(t, transitions)
	assert.Equal(t, condition.SyncLoss, transitions[len(transitions)-1].To)

	p.Step(nil)
	assert.Equal(t, redraw.AllRegions, p.Frame().Dirty)

	p.ResetTelemetry()
	f := p.Frame()
	assert.Equal(t, condition.NoData, f.State)
	assert.False(t, f.Snapshot.IsDataValid)
	assert.Equal(t, uint64(0), f.Counters.FramesReceived)
	assert.Equal(t, condition.NoData, transitions[len(transitions)-1].To)

	dump := p.DebugDump()
	assert.Contains(t, dump, "NO_DATA")
	assert.Contains(t, dump, "no data")
	assert.Contains(t, dump, "Frames OK:")
}

func TestPendingRequest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Request = Request{Enabled: true, Command: speeduino.CmdRealtime, Period: 100 * time.Millisecond, Window: 150 * time.Millisecond}
	c := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	p, err := New(cfg, c)
	require.NoError(t, err)

	req, ok := p.PendingRequest()
	require.True(t, ok)
	assert.Equal(t, []byte{'A'}, req)

	_, ok = p.PendingRequest()
	assert.False(t, ok, "response still pending")

	r := cruise()
	resp, err := speeduino.EncodeFormatB(&r)
	require.NoError(t, err)
	c.Advance(20 * time.Millisecond)
	it := p.Step(resp)
	assert.Equal(t, 1, it.Decoded)

	_, ok = p.PendingRequest()
	assert.False(t, ok, "period not elapsed")
	c.Advance(100 * time.Millisecond)
	_, ok = p.PendingRequest()
	assert.True(t, ok)
}

func TestPendingRequest_StreamingMode(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, ok := p.PendingRequest()
	assert.False(t, ok)
}
