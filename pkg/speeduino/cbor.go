// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Sample is one recorded snapshot. Recordings are a stream of CBOR maps with
// integer keys.
type Sample struct {
	UnixMilli     int64  `cbor:"0,keyasint"`
	State         string `cbor:"1,keyasint,omitempty"`
	RPM           uint16 `cbor:"2,keyasint"`
	CoolantC      int16  `cbor:"3,keyasint"`
	AFRx100       uint16 `cbor:"4,keyasint"`
	MAPkPa        uint8  `cbor:"5,keyasint"`
	ThrottlePct   uint8  `cbor:"6,keyasint"`
	IntakeC       int16  `cbor:"7,keyasint"`
	BatteryMV     uint16 `cbor:"8,keyasint"`
	SyncLossCount uint32 `cbor:"9,keyasint"`
	IsSynced      bool   `cbor:"10,keyasint"`
	IsDataValid   bool   `cbor:"11,keyasint"`
}

// NewSample captures a snapshot at wall-clock time at. state is the
// condition name at capture time.
func NewSample(s *Snapshot, at time.Time, state string) Sample {
	return Sample{
		UnixMilli:     at.UnixMilli(),
		State:         state,
		RPM:           s.RPM,
		CoolantC:      s.CoolantC,
		AFRx100:       s.AFRx100,
		MAPkPa:        s.MAPkPa,
		ThrottlePct:   s.ThrottlePct,
		IntakeC:       s.IntakeC,
		BatteryMV:     s.BatteryMV,
		SyncLossCount: s.SyncLossCount,
		IsSynced:      s.IsSynced,
		IsDataValid:   s.IsDataValid,
	}
}

// Time returns the capture time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.UnixMilli)
}

// Snapshot rebuilds the snapshot. LastUpdate is the capture time.
func (s Sample) Snapshot() Snapshot {
	return Snapshot{
		RPM:           s.RPM,
		CoolantC:      s.CoolantC,
		AFRx100:       s.AFRx100,
		MAPkPa:        s.MAPkPa,
		ThrottlePct:   s.ThrottlePct,
		IntakeC:       s.IntakeC,
		BatteryMV:     s.BatteryMV,
		SyncLossCount: s.SyncLossCount,
		IsSynced:      s.IsSynced,
		LastUpdate:    s.Time(),
		IsDataValid:   s.IsDataValid,
	}
}

// Recorder writes samples as a CBOR stream.
type Recorder struct {
	enc   *cbor.Encoder
	count int
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: cbor.NewEncoder(w)}
}

// Write appends one sample.
func (r *Recorder) Write(s Sample) error {
	if err := r.enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}
	r.count++
	return nil
}

// Count returns the number of samples written.
func (r *Recorder) Count() int {
	return r.count
}

// Player reads samples back from a CBOR stream.
type Player struct {
	dec *cbor.Decoder
}

// NewPlayer creates a player reading from r.
func NewPlayer(r io.Reader) *Player {
	return &Player{dec: cbor.NewDecoder(r)}
}

// Next returns the next sample, or io.EOF at the end of the recording.
func (p *Player) Next() (Sample, error) {
	var s Sample
	if err := p.dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Sample{}, io.EOF
		}
		return Sample{}, fmt.Errorf("failed to decode sample: %w", err)
	}
	return s, nil
}
