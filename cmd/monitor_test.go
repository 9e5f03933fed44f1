// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ecustat/internal/config"
	"github.com/Thermoquad/ecustat/internal/eventlog"
	"github.com/Thermoquad/ecustat/internal/monitoring"
	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/pipeline"
	"github.com/Thermoquad/ecustat/pkg/redraw"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func cruiseFrame() pipeline.Frame {
	snap := speeduino.DefaultSnapshot()
	snap.RPM = 3000
	snap.CoolantC = 85
	snap.AFRx100 = 1470
	snap.BatteryMV = 13800
	snap.MAPkPa = 95
	snap.ThrottlePct = 20
	snap.IntakeC = 30
	snap.IsDataValid = true
	snap.IsSynced = true
	return pipeline.Frame{
		At:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Snapshot: snap,
		State:    condition.Normal,
		Dirty:    redraw.AllRegions,
	}
}

func TestTextRegion(t *testing.T) {
	f := cruiseFrame()

	line, ok := textRegion(redraw.Header, f)
	assert.True(t, ok)
	assert.Equal(t, "== NORMAL ==", line)

	line, _ = textRegion(redraw.PrimaryField, f)
	assert.Equal(t, "RPM   3000", line)

	line, _ = textRegion(redraw.CoreGroup, f)
	assert.Equal(t, "CLT  85C  AFR 14.70  BAT 13.8V", line)

	line, _ = textRegion(redraw.SecondaryGroup, f)
	assert.Equal(t, "MAP  95kPa  TPS  20%  IAT  30C", line)

	_, ok = textRegion(redraw.FullScreenOverride, f)
	assert.False(t, ok, "no overlay outside sync loss")

	f.Overspeed = true
	line, _ = textRegion(redraw.PrimaryField, f)
	assert.Contains(t, line, "OVERSPEED")

	f.State = condition.Recovery
	f.Progress = 47
	line, _ = textRegion(redraw.Header, f)
	assert.Equal(t, "== RECOVERY  40% ==", line)

	f.State = condition.SyncLoss
	f.Phase = redraw.BlinkOn
	line, ok = textRegion(redraw.FullScreenOverride, f)
	assert.True(t, ok)
	assert.Contains(t, line, "SYNC LOSS")
	f.Phase = redraw.BlinkBlinking
	line, _ = textRegion(redraw.FullScreenOverride, f)
	assert.NotContains(t, line, "SYNC LOSS")

	f.Snapshot.IsDataValid = false
	line, _ = textRegion(redraw.PrimaryField, f)
	assert.Equal(t, "RPM  -----", line)
}

func TestTextRenderer_OnlyChangedOrDirty(t *testing.T) {
	var out bytes.Buffer
	r := newTextRenderer(&out)

	f := cruiseFrame()
	r.render(f)
	assert.Equal(t, 5, strings.Count(out.String(), "\n"), "first frame paints every visible region")

	out.Reset()
	f.Dirty = redraw.None
	r.render(f)
	assert.Empty(t, out.String())

	f.Snapshot.RPM = 3500
	r.render(f)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "RPM   3500")

	out.Reset()
	f.Dirty = redraw.Footer
	r.render(f)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"), "dirty forces a repaint of unchanged text")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Recording.File = filepath.Join(dir, "run.cbor")
	cfg.Recording.EventDB = filepath.Join(dir, "events.db")
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestMonitorSession_RecordsAndLogs(t *testing.T) {
	cfg := testConfig(t)
	var requests bytes.Buffer

	s, err := newMonitorSession(cfg, &requests, "test")
	require.NoError(t, err)

	var notices []string
	s.notify = func(msg string, _ bool) { notices = append(notices, msg) }

	rec := speeduino.Record{RPM: 3000, CoolantC: 85, AFRx100: 1470, MAPkPa: 95, ThrottlePct: 20, IntakeC: 30, BatteryMV: 13800}
	frame, err := speeduino.EncodeFormatA(&rec, true)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	it := s.step(frame)
	assert.Equal(t, 1, it.Decoded)
	assert.Equal(t, condition.Recovery, it.State)

	it = s.step(bytes.Repeat([]byte("junk\n"), speeduino.SyncLossThreshold))
	assert.True(t, it.SyncLost)
	assert.Equal(t, condition.SyncLoss, it.State)
	assert.Equal(t, uint64(1), s.stats.SyncLosses)
	assert.Empty(t, requests.Bytes(), "streaming mode never writes")

	assert.Contains(t, notices, "NO_DATA -> RECOVERY")
	assert.Contains(t, notices, "Sync lost (1 total)")

	sessionID := s.events.Session()
	s.close()

	// Recording
	f, err := os.Open(cfg.Recording.File)
	require.NoError(t, err)
	defer f.Close()
	player := speeduino.NewPlayer(f)
	sample, err := player.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(3000), sample.RPM)
	assert.Equal(t, "RECOVERY", sample.State)
	_, err = player.Next()
	assert.True(t, errors.Is(err, io.EOF))

	// Event log
	log, err := eventlog.Open(cfg.Recording.EventDB, "verify", time.Now())
	require.NoError(t, err)
	defer log.Close(time.Now())

	transitions, err := log.Transitions(sessionID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, condition.Recovery, transitions[0].To)
	assert.Equal(t, condition.SyncLoss, transitions[1].To)

	losses, err := log.SyncLosses(sessionID)
	require.NoError(t, err)
	require.Len(t, losses, 1)
	assert.Equal(t, uint32(1), losses[0].Count)
	assert.NotEmpty(t, losses[0].RecentBytes)
}

func TestMonitorSession_PollRequests(t *testing.T) {
	cfg := config.Default()
	cfg.Decoder.Request.Enabled = true
	var requests bytes.Buffer

	s, err := newMonitorSession(cfg, &requests, "test")
	require.NoError(t, err)
	defer s.close()

	s.step(nil)
	assert.Equal(t, []byte{'A'}, requests.Bytes())

	s.step(nil)
	assert.Equal(t, []byte{'A'}, requests.Bytes(), "no second request while waiting")
}

func TestMonitorSession_HandleKey(t *testing.T) {
	s, err := newMonitorSession(config.Default(), nil, "test")
	require.NoError(t, err)
	defer s.close()

	out, quit := s.handleKey('d')
	assert.False(t, quit)
	assert.Contains(t, out, "Frames OK:")

	out, _ = s.handleKey('s')
	assert.Equal(t, "Sync loss forced", out)
	assert.Equal(t, condition.SyncLoss, s.pipe.Frame().State)

	out, _ = s.handleKey('r')
	assert.Equal(t, "Telemetry reset", out)
	assert.Equal(t, condition.NoData, s.pipe.Frame().State)

	s.pipe.ConsumeRegions(redraw.AllRegions)
	s.handleKey('c')
	assert.Equal(t, redraw.AllRegions, s.pipe.Frame().Dirty)

	out, _ = s.handleKey('?')
	assert.Equal(t, consoleHelp, out)

	_, quit = s.handleKey('q')
	assert.True(t, quit)
	_, quit = s.handleKey('x')
	assert.False(t, quit)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3_720_000, "1 hour and 2 minutes"},
		{90_061_000, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.ms))
	}
}

func TestCRLFWriter(t *testing.T) {
	var out bytes.Buffer
	n, err := crlfWriter{w: &out}.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", out.String())
}

func TestPlayback(t *testing.T) {
	var rec bytes.Buffer
	r := speeduino.NewRecorder(&rec)
	snap := cruiseFrame().Snapshot
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Write(speeduino.NewSample(&snap, at, "NORMAL")))
	require.NoError(t, r.Write(speeduino.NewSample(&snap, at.Add(100*time.Millisecond), "CAUTION")))

	var out bytes.Buffer
	require.NoError(t, playback(&out, speeduino.NewPlayer(&rec), false))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NORMAL")
	assert.Contains(t, lines[0], "rpm=3000")
	assert.Contains(t, lines[1], "CAUTION")
	assert.Equal(t, "2 samples", lines[2])
}
