// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package redraw

import (
	"time"

	"github.com/Thermoquad/ecustat/pkg/clock"
	"github.com/Thermoquad/ecustat/pkg/condition"
)

// DefaultBlinkPeriod is the half-period of the sync-loss blink.
const DefaultBlinkPeriod = 500 * time.Millisecond

// Orchestrator tracks dirty regions and the blink phase. Marks accumulate
// until the renderer clears them; Observe never clears anything.
type Orchestrator struct {
	clock  clock.Clock
	period time.Duration

	regions  Regions
	phase    BlinkPhase
	observed bool
	last     condition.State

	blinkStart time.Time
	toggles    int64
}

// NewOrchestrator creates an orchestrator. A non-positive period uses
// DefaultBlinkPeriod and a nil clock uses the real one.
func NewOrchestrator(c clock.Clock, period time.Duration) *Orchestrator {
	if c == nil {
		c = clock.Real{}
	}
	if period <= 0 {
		period = DefaultBlinkPeriod
	}
	return &Orchestrator{clock: c, period: period}
}

// Observe reacts to the classifier state for this iteration.
func (o *Orchestrator) Observe(state condition.State) {
	now := o.clock.Now()

	if !o.observed || state != o.last {
		o.observed = true
		o.last = state
		o.regions |= AllRegions

		if state == condition.SyncLoss {
			o.blinkStart = now
			o.toggles = 0
			o.phase = BlinkOn
		} else {
			o.phase = BlinkOff
		}
		return
	}

	if state != condition.SyncLoss {
		return
	}

	n := int64(now.Sub(o.blinkStart) / o.period)
	if n <= o.toggles {
		return
	}
	o.toggles = n
	o.regions |= FullScreenOverride
	if n%2 == 0 {
		o.phase = BlinkOn
	} else {
		o.phase = BlinkBlinking
	}
}

// MarkAll flags every region for repaint.
func (o *Orchestrator) MarkAll() {
	o.regions |= AllRegions
}

// IsDirty reports whether any region in r needs repainting.
func (o *Orchestrator) IsDirty(r Regions) bool {
	return o.regions&r != 0
}

// Clear drops the dirty marks in r.
func (o *Orchestrator) Clear(r Regions) {
	o.regions &^= r
}

// Dirty returns the current dirty bitmap.
func (o *Orchestrator) Dirty() Regions {
	return o.regions
}

// Phase returns the blink phase.
func (o *Orchestrator) Phase() BlinkPhase {
	return o.phase
}

// Period returns the blink half-period.
func (o *Orchestrator) Period() time.Duration {
	return o.period
}

// Reset forgets the last observation so the next Observe repaints.
func (o *Orchestrator) Reset() {
	o.observed = false
	o.phase = BlinkOff
	o.toggles = 0
}
