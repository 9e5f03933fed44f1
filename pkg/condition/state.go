// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package condition classifies engine telemetry into a display condition
// with hysteresis on recovery from link failures.
package condition

// State is the classified engine condition.
type State uint8

const (
	NoData State = iota
	Normal
	Caution
	Warning
	SyncLoss
	Recovery

	numStates
)

// States lists every state in declaration order.
var States = []State{NoData, Normal, Caution, Warning, SyncLoss, Recovery}

// String returns the state name
func (s State) String() string {
	switch s {
	case NoData:
		return "NO_DATA"
	case Normal:
		return "NORMAL"
	case Caution:
		return "CAUTION"
	case Warning:
		return "WARNING"
	case SyncLoss:
		return "SYNC_LOSS"
	case Recovery:
		return "RECOVERY"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is a declared state.
func (s State) Valid() bool {
	return s < numStates
}

// IsAlarm reports whether the state needs the operator's attention.
func (s State) IsAlarm() bool {
	return s == Warning || s == SyncLoss
}

// Transitions is the legal transition table. A link failure is always
// reachable, and leaving a link failure always passes through Recovery.
var Transitions = map[State][]State{
	NoData:   {Recovery, SyncLoss},
	Normal:   {Caution, Warning, NoData, SyncLoss},
	Caution:  {Normal, Warning, NoData, SyncLoss},
	Warning:  {Normal, Caution, NoData, SyncLoss},
	SyncLoss: {Recovery, NoData},
	Recovery: {Normal, Caution, Warning, NoData, SyncLoss},
}

// CanTransition reports whether from -> to is legal. Staying put is always
// legal.
func CanTransition(from, to State) bool {
	if from == to {
		return from.Valid()
	}
	for _, s := range Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
