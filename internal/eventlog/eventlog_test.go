// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/pipeline"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

var t0 = time.UnixMilli(1748779200000)

func openTestLog(t *testing.T, path string) *Log {
	t.Helper()
	l, err := Open(path, "test", t0)
	require.NoError(t, err)
	return l
}

func TestLog_Transitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	l := openTestLog(t, path)

	_, err := uuid.Parse(l.Session())
	require.NoError(t, err)

	snap := speeduino.DefaultSnapshot()
	snap.RPM = 3000
	snap.CoolantC = 112
	snap.AFRx100 = 1470
	snap.BatteryMV = 13800

	require.NoError(t, l.RecordTransition(pipeline.Transition{
		From: condition.NoData, To: condition.Recovery, At: t0.Add(time.Second), Snapshot: snap,
	}))
	require.NoError(t, l.RecordTransition(pipeline.Transition{
		From: condition.Recovery, To: condition.Warning, At: t0.Add(3 * time.Second), Snapshot: snap,
	}))

	got, err := l.Transitions(l.Session())
	require.NoError(t, err)

	want := []Transition{
		{At: t0.Add(time.Second), From: condition.NoData, To: condition.Recovery,
			RPM: 3000, CoolantC: 112, AFRx100: 1470, BatteryMV: 13800},
		{At: t0.Add(3 * time.Second), From: condition.Recovery, To: condition.Warning,
			RPM: 3000, CoolantC: 112, AFRx100: 1470, BatteryMV: 13800},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, l.Close(t0.Add(5*time.Second)))
}

func TestLog_SyncLosses(t *testing.T) {
	l := openTestLog(t, filepath.Join(t.TempDir(), "events.db"))
	defer l.Close(t0)

	require.NoError(t, l.RecordSyncLoss(t0, 1, []byte{0xAA, 0x00, 0x0A}))
	require.NoError(t, l.RecordSyncLoss(t0.Add(time.Second), 2, nil))

	got, err := l.SyncLosses(l.Session())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Count)
	assert.Equal(t, []byte{0xAA, 0x00, 0x0A}, got[0].RecentBytes)
	assert.Equal(t, uint32(2), got[1].Count)
	assert.True(t, got[1].At.Equal(t0.Add(time.Second)))
}

func TestLog_SessionsPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	first := openTestLog(t, path)
	require.NoError(t, first.Close(t0.Add(time.Minute)))

	second, err := Open(path, "test", t0.Add(2*time.Minute))
	require.NoError(t, err)
	defer second.Close(t0.Add(3 * time.Minute))

	sessions, err := second.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{first.Session(), second.Session()}, sessions)

	got, err := second.Transitions(first.Session())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "events.db"), "test", t0)
	assert.Error(t, err)
}
