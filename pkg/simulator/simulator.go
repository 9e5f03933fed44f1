// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator generates ECU telemetry for bench testing without an
// engine. Values are a pure function of elapsed time so runs are repeatable.
package simulator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

// Scenario selects the engine behaviour being simulated.
type Scenario string

const (
	// Normal warms up and cruises with every value in range.
	Normal Scenario = "normal"
	// Overheat cruises while coolant climbs past the warning limit.
	Overheat Scenario = "overheat"
	// LowBattery cruises while the charging voltage sags.
	LowBattery Scenario = "lowbatt"
	// Noise interleaves bursts of garbage lines long enough to lose sync.
	Noise Scenario = "noise"
	// Dropout goes silent for part of every cycle.
	Dropout Scenario = "dropout"
)

// Scenarios lists every scenario in help order.
var Scenarios = []Scenario{Normal, Overheat, LowBattery, Noise, Dropout}

// ParseScenario parses a scenario name.
func ParseScenario(s string) (Scenario, error) {
	for _, sc := range Scenarios {
		if strings.EqualFold(s, string(sc)) {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown scenario %q", s)
}

// Format selects the wire encoding.
type Format string

const (
	FormatA        Format = "a"
	FormatB        Format = "b"
	FormatKeyValue Format = "kv"
	FormatCSV      Format = "csv"
)

// ParseFormat parses a wire format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatA, FormatB, FormatKeyValue, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (use a, b, kv or csv)", s)
}

const (
	noiseCycle   = 6 * time.Second
	noiseBurst   = 2 * time.Second
	dropoutCycle = 10 * time.Second
	dropoutGap   = 3 * time.Second
)

// Simulator produces wire data for one scenario and format.
type Simulator struct {
	scenario Scenario
	format   Format
	order    speeduino.FieldOrder
	rng      *rand.Rand
}

// New creates a simulator. order is only used for CSV output.
func New(scenario Scenario, format Format, order speeduino.FieldOrder, seed uint64) *Simulator {
	if order == (speeduino.FieldOrder{}) {
		order = speeduino.DefaultFieldOrder
	}
	return &Simulator{
		scenario: scenario,
		format:   format,
		order:    order,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Streams reports whether the format is sent unprompted. Format B is only
// sent in answer to a request.
func (s *Simulator) Streams() bool {
	return s.format != FormatB
}

// Record returns the engine values at elapsed time t.
func (s *Simulator) Record(t time.Duration) speeduino.Record {
	sec := t.Seconds()

	rpm := 2500 + 800*math.Sin(2*math.Pi*sec/8)
	coolant := 60 + 28*math.Min(sec/30, 1)
	battery := 13800.0

	switch s.scenario {
	case Overheat:
		coolant = math.Min(85+sec, 125)
	case LowBattery:
		battery = math.Max(13800-100*sec, 10500)
	}

	return speeduino.Record{
		Fields:      speeduino.AllFields,
		RPM:         uint16(rpm),
		MAPkPa:      uint8(40 + (rpm-1700)/30),
		ThrottlePct: uint8(15 + 10*math.Sin(2*math.Pi*sec/8)),
		CoolantC:    int16(coolant),
		IntakeC:     30,
		AFRx100:     uint16(1470 + 30*math.Sin(sec/3)),
		BatteryMV:   uint16(battery),
	}
}

// silent reports whether a dropout is in progress at t.
func (s *Simulator) silent(t time.Duration) bool {
	return s.scenario == Dropout && t%dropoutCycle >= dropoutCycle-dropoutGap
}

// noisy reports whether a garbage burst is in progress at t.
func (s *Simulator) noisy(t time.Duration) bool {
	return s.scenario == Noise && t%noiseCycle >= noiseCycle-noiseBurst
}

// Emit returns the bytes to send unprompted at t. It returns nil when
// nothing is due.
func (s *Simulator) Emit(t time.Duration) ([]byte, error) {
	if !s.Streams() || s.silent(t) {
		return nil, nil
	}
	if s.noisy(t) {
		return s.garbage(), nil
	}
	return s.encode(t)
}

// Respond answers request bytes at t. Every realtime request byte is
// answered with one format B frame.
func (s *Simulator) Respond(req []byte, t time.Duration) ([]byte, error) {
	if s.format != FormatB || s.silent(t) {
		return nil, nil
	}
	var out []byte
	for _, b := range req {
		if !speeduino.IsRequestCommand(b) {
			continue
		}
		if s.noisy(t) {
			out = append(out, s.garbage()...)
			continue
		}
		frame, err := s.encode(t)
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)
	}
	return out, nil
}

func (s *Simulator) encode(t time.Duration) ([]byte, error) {
	rec := s.Record(t)
	switch s.format {
	case FormatA:
		return speeduino.EncodeFormatA(&rec, true)
	case FormatB:
		return speeduino.EncodeFormatB(&rec)
	case FormatKeyValue:
		return speeduino.EncodeKeyValue(&rec), nil
	case FormatCSV:
		return speeduino.EncodeCSV(&rec, s.order), nil
	}
	return nil, fmt.Errorf("unknown format %q", s.format)
}

// garbage returns a printable line no text format accepts. It never holds
// a frame sentinel.
func (s *Simulator) garbage() []byte {
	const alphabet = "#%&*+/:;<>?@^_|~qxzj"
	n := 8 + s.rng.IntN(24)
	line := make([]byte, n, n+1)
	for i := range line {
		line[i] = alphabet[s.rng.IntN(len(alphabet))]
	}
	return append(line, '\n')
}
