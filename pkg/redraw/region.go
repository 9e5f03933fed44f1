// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package redraw decides which display regions need repainting and drives
// the sync-loss alarm blink.
package redraw

import "strings"

// Regions is a bitmap of display regions.
type Regions uint8

const (
	Header Regions = 1 << iota
	PrimaryField
	CoreGroup
	SecondaryGroup
	Footer
	FullScreenOverride

	AllRegions = Header | PrimaryField | CoreGroup | SecondaryGroup | Footer | FullScreenOverride
	None       Regions = 0
)

var regionNames = []struct {
	r    Regions
	name string
}{
	{Header, "HEADER"},
	{PrimaryField, "PRIMARY"},
	{CoreGroup, "CORE"},
	{SecondaryGroup, "SECONDARY"},
	{Footer, "FOOTER"},
	{FullScreenOverride, "OVERRIDE"},
}

// Has reports whether every region in r2 is set.
func (r Regions) Has(r2 Regions) bool {
	return r2 != 0 && r&r2 == r2
}

// Each calls fn for every set region in display order.
func (r Regions) Each(fn func(Regions)) {
	for _, rn := range regionNames {
		if r&rn.r != 0 {
			fn(rn.r)
		}
	}
}

func (r Regions) String() string {
	if r == 0 {
		return "NONE"
	}
	var parts []string
	for _, rn := range regionNames {
		if r&rn.r != 0 {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}

// BlinkPhase is the alarm blink phase.
type BlinkPhase uint8

const (
	// BlinkOff means blinking is inactive.
	BlinkOff BlinkPhase = iota
	// BlinkOn is the visible half-period of an active blink.
	BlinkOn
	// BlinkBlinking is the dark half-period of an active blink.
	BlinkBlinking
)

func (p BlinkPhase) String() string {
	switch p {
	case BlinkOff:
		return "OFF"
	case BlinkOn:
		return "ON"
	case BlinkBlinking:
		return "BLINKING"
	default:
		return "UNKNOWN"
	}
}

// Visible reports whether the alarm overlay should be drawn.
func (p BlinkPhase) Visible() bool {
	return p == BlinkOn
}
