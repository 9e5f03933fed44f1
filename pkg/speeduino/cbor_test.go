// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
)

func TestRecorder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	snap := DefaultSnapshot()
	r := cruiseRecord()
	r.Fields = AllFields
	snap.Apply(&r, testEpoch)
	snap.IsSynced = true

	want := []Sample{
		NewSample(&snap, testEpoch, "NORMAL"),
		NewSample(&snap, testEpoch.Add(50*time.Millisecond), "CAUTION"),
	}
	snap.SyncLossCount = 2
	want = append(want, NewSample(&snap, testEpoch.Add(time.Second), "SYNC_LOSS"))

	for _, s := range want {
		if err := rec.Write(s); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if rec.Count() != len(want) {
		t.Errorf("Count = %d, want %d", rec.Count(), len(want))
	}

	player := NewPlayer(&buf)
	var got []Sample
	for {
		s, err := player.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, s)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}

	restored := got[2].Snapshot()
	if restored.RPM != 3000 || restored.SyncLossCount != 2 || !restored.IsSynced {
		t.Errorf("restored snapshot = %+v", restored)
	}
	if !restored.LastUpdate.Equal(testEpoch.Add(time.Second)) {
		t.Errorf("LastUpdate = %v", restored.LastUpdate)
	}
}

func TestSample_IntegerKeys(t *testing.T) {
	snap := DefaultSnapshot()
	data, err := cbor.Marshal(NewSample(&snap, testEpoch, ""))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[int]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal into int-keyed map: %v", err)
	}
	if _, ok := m[1]; ok {
		t.Error("empty state should be omitted")
	}
	if v, ok := m[4].(uint64); !ok || v != DefaultAFRx100 {
		t.Errorf("key 4 (AFR) = %v", m[4])
	}
}

func TestPlayer_Corrupt(t *testing.T) {
	player := NewPlayer(bytes.NewReader([]byte{0xFF, 0x00}))
	if _, err := player.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected a decode error, got %v", err)
	}
}
