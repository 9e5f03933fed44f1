// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package condition

import (
	"time"

	"github.com/Thermoquad/ecustat/pkg/clock"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

// Classifier turns snapshots into a State. It is not safe for concurrent
// use; the owner of the snapshot calls Evaluate once per iteration.
type Classifier struct {
	clock      clock.Clock
	thresholds Thresholds

	current   State
	previous  State
	enteredAt time.Time
	changed   bool
	progress  uint8

	observedLosses uint32
}

// NewClassifier creates a classifier in NoData. A nil clock uses the real one.
func NewClassifier(c clock.Clock, t Thresholds) *Classifier {
	if c == nil {
		c = clock.Real{}
	}
	return &Classifier{
		clock:      c,
		thresholds: t,
		current:    NoData,
		previous:   NoData,
		enteredAt:  c.Now(),
	}
}

// SetThresholds replaces the thresholds. Takes effect on the next Evaluate.
func (c *Classifier) SetThresholds(t Thresholds) {
	c.thresholds = t
}

// Thresholds returns the active thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Evaluate classifies the snapshot and returns the current state.
//
// Staleness wins over everything. A sync-loss counter that advanced since
// the last call latches SyncLoss. Leaving SyncLoss or NoData goes through
// Recovery, which holds for RecoveryDelay before scoring resumes.
func (c *Classifier) Evaluate(snap speeduino.Snapshot) State {
	now := c.clock.Now()
	c.changed = false
	c.transition(c.decide(&snap, now), now)

	if c.current == Recovery {
		if p := c.recoveryProgress(now); p > c.progress {
			c.progress = p
		}
	}
	return c.current
}

func (c *Classifier) decide(snap *speeduino.Snapshot, now time.Time) State {
	// A counter that went down was reset; resync without an event.
	advanced := snap.SyncLossCount > c.observedLosses
	c.observedLosses = snap.SyncLossCount

	if snap.IsStale(now, c.thresholds.DataTimeout) {
		return NoData
	}
	if advanced {
		return SyncLoss
	}

	switch c.current {
	case NoData, SyncLoss:
		if snap.LastUpdate.After(c.enteredAt) {
			return Recovery
		}
		return c.current
	case Recovery:
		if now.Sub(c.enteredAt) < c.thresholds.RecoveryDelay {
			return Recovery
		}
	}

	return Combine(c.thresholds.Score(snap.CoolantC, snap.AFRx100, snap.BatteryMV))
}

func (c *Classifier) transition(next State, now time.Time) {
	if next == c.current {
		return
	}
	if !CanTransition(c.current, next) {
		return
	}
	c.previous = c.current
	c.current = next
	c.enteredAt = now
	c.changed = true
	c.progress = 0
}

// ForceSyncLoss moves to SyncLoss immediately, for failures detected outside
// frame counting.
func (c *Classifier) ForceSyncLoss() {
	c.transition(SyncLoss, c.clock.Now())
}

// State returns the current state.
func (c *Classifier) State() State {
	return c.current
}

// Previous returns the state before the most recent transition.
func (c *Classifier) Previous() State {
	return c.previous
}

// Changed reports whether the last Evaluate or ForceSyncLoss changed state.
func (c *Classifier) Changed() bool {
	return c.changed
}

// EnteredAt returns when the current state was entered.
func (c *Classifier) EnteredAt() time.Time {
	return c.enteredAt
}

// Elapsed returns the time spent in the current state.
func (c *Classifier) Elapsed() time.Duration {
	return c.clock.Since(c.enteredAt)
}

// RecoveryProgress returns 0-100 while in Recovery and 0 otherwise.
func (c *Classifier) RecoveryProgress() uint8 {
	if c.current != Recovery {
		return 0
	}
	if p := c.recoveryProgress(c.clock.Now()); p > c.progress {
		return p
	}
	return c.progress
}

func (c *Classifier) recoveryProgress(now time.Time) uint8 {
	delay := c.thresholds.RecoveryDelay
	if delay <= 0 {
		return 100
	}
	elapsed := now.Sub(c.enteredAt)
	if elapsed <= 0 {
		return 0
	}
	p := int64(elapsed) * 100 / int64(delay)
	if p > 100 {
		p = 100
	}
	return uint8(p)
}

// Overspeed reports whether RPM is above RPMMax. It does not affect the
// classification.
func (c *Classifier) Overspeed(snap speeduino.Snapshot) bool {
	return c.thresholds.RPMMax > 0 && snap.RPM > c.thresholds.RPMMax
}

// Reset returns to NoData and forgets the observed sync-loss count.
func (c *Classifier) Reset() {
	now := c.clock.Now()
	c.changed = c.current != NoData
	if c.changed {
		c.previous = c.current
	}
	c.current = NoData
	c.enteredAt = now
	c.progress = 0
	c.observedLosses = 0
}
