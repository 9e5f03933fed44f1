// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"time"

	"github.com/Thermoquad/ecustat/pkg/clock"
)

// EventKind classifies the outcome of feeding one byte.
type EventKind uint8

const (
	// EventNone means the byte was absorbed without completing anything.
	EventNone EventKind = iota
	// EventDecoded means a frame or line was committed to the snapshot.
	EventDecoded
	// EventRejected means a completed frame or line failed validation.
	EventRejected
	// EventOverflow means the line buffer filled and was reset.
	EventOverflow
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventDecoded:
		return "DECODED"
	case EventRejected:
		return "REJECTED"
	case EventOverflow:
		return "OVERFLOW"
	default:
		return "NONE"
	}
}

// Event is the outcome of DecodeByte.
type Event struct {
	Kind EventKind

	// Record holds the decoded values. For rejected lines it carries the
	// format and whatever parsed before validation failed.
	Record Record

	// Dropped lists text fields that were recognised but out of range.
	Dropped Fields

	// Err is set for EventRejected.
	Err *ValidationError

	// SyncLost is set when this failure raised a sync-loss event.
	SyncLost bool

	// Released holds outcomes of text lines that completed while a binary
	// frame was collecting. They are committed once the frame turns out to
	// be garbage and are reported before this event. The slice is reused
	// by the next DecodeByte call.
	Released []Event
}

// Counters holds the decoder's bookkeeping.
type Counters struct {
	FramesReceived    uint64
	FramesErrored     uint64
	ConsecutiveErrors int
	RawBytes          uint64
	LineOverflows     uint64
	DroppedFields     uint64
	ResponseTimeouts  uint64
	Requests          uint64
	PayloadLines      uint64 // lines that turned out to be frame payload
	LastRx            time.Time
}

// Decoder implements the ECU stream decoder. A binary frame state machine
// and a text line state machine both see every byte.
type Decoder struct {
	clock    clock.Clock
	frame    frameDecoder
	line     lineDecoder
	counters Counters

	syncStreak int

	// Lines completed under a collecting frame wait here until the frame
	// either validates (they were payload) or fails (they were real).
	held      [maxHeldLines]heldLine
	heldCount int
	released  [maxHeldLines]Event

	recent      [recentBytesSize]byte
	recentIndex int
	recentCount int

	requestEnabled bool
	requestCommand byte
	requestPeriod  time.Duration
	responseWindow time.Duration
	lastRequest    time.Time
}

// NewDecoder creates a new stream decoder using the given clock. A nil clock
// uses the real one.
func NewDecoder(c clock.Clock) *Decoder {
	if c == nil {
		c = clock.Real{}
	}
	d := &Decoder{clock: c}
	d.line.order = DefaultFieldOrder
	return d
}

// SetFieldOrder swaps the CSV column mapping.
func (d *Decoder) SetFieldOrder(order FieldOrder) {
	d.line.order = order
}

// FieldOrder returns the active CSV column mapping.
func (d *Decoder) FieldOrder() FieldOrder {
	return d.line.order
}

// ConfigureRequest enables poll mode. cmd is written every period and a
// response must complete within window.
func (d *Decoder) ConfigureRequest(cmd byte, period, window time.Duration) {
	if period <= 0 {
		period = DefaultRequestPeriod
	}
	if window <= 0 {
		window = DefaultResponseWindow
	}
	d.requestEnabled = true
	d.requestCommand = cmd
	d.requestPeriod = period
	d.responseWindow = window
	d.lastRequest = time.Time{}
}

// DisableRequest returns the decoder to pure streaming mode.
func (d *Decoder) DisableRequest() {
	d.requestEnabled = false
	d.frame.awaiting = false
}

// RequestEnabled reports whether poll mode is active.
func (d *Decoder) RequestEnabled() bool {
	return d.requestEnabled
}

// PollRequest reports whether the request command should be written now.
// When it returns true the decoder starts waiting for the response.
func (d *Decoder) PollRequest() (byte, bool) {
	if !d.requestEnabled {
		return 0, false
	}
	now := d.clock.Now()
	if d.frame.expire(now) {
		d.counters.ResponseTimeouts++
	}
	if d.frame.awaiting {
		return 0, false
	}
	if !d.lastRequest.IsZero() && now.Sub(d.lastRequest) < d.requestPeriod {
		return 0, false
	}
	d.lastRequest = now
	d.frame.expect(now.Add(d.responseWindow))
	d.counters.Requests++
	return d.requestCommand, true
}

// Reset returns both state machines to idle and clears all counters.
func (d *Decoder) Reset() {
	d.frame.reset()
	d.frame.awaiting = false
	d.line.reset()
	d.line.discarding = false
	d.counters = Counters{}
	d.syncStreak = 0
	d.recentIndex = 0
	d.recentCount = 0
	d.lastRequest = time.Time{}
	d.heldCount = 0
}

// Counters returns a copy of the decoder counters.
func (d *Decoder) Counters() Counters {
	return d.counters
}

// RecentBytes returns the last raw bytes seen, oldest first.
func (d *Decoder) RecentBytes() []byte {
	out := make([]byte, 0, d.recentCount)
	start := d.recentIndex - d.recentCount
	if start < 0 {
		start += recentBytesSize
	}
	for i := 0; i < d.recentCount; i++ {
		out = append(out, d.recent[(start+i)%recentBytesSize])
	}
	return out
}

// Decode feeds a chunk of bytes and calls fn for every event other than
// EventNone, released line outcomes included, in commit order. Events
// passed to fn never carry Released. fn may be nil.
func (d *Decoder) Decode(p []byte, snap *Snapshot, fn func(Event)) {
	for _, b := range p {
		ev := d.DecodeByte(b, snap)
		if fn == nil {
			continue
		}
		for _, r := range ev.Released {
			fn(r)
		}
		if ev.Kind != EventNone {
			ev.Released = nil
			fn(ev)
		}
	}
}

// DecodeByte processes a single byte through both state machines.
// The snapshot is only modified by a successful decode or a sync-loss event.
func (d *Decoder) DecodeByte(b byte, snap *Snapshot) Event {
	now := d.clock.Now()
	d.counters.RawBytes++
	d.counters.LastRx = now
	d.recent[d.recentIndex] = b
	d.recentIndex = (d.recentIndex + 1) % recentBytesSize
	if d.recentCount < recentBytesSize {
		d.recentCount++
	}

	released := 0
	if d.frame.expire(now) {
		d.counters.ResponseTimeouts++
	}
	if !d.frame.collecting() {
		released = d.release(released, snap, now)
	}

	frameDone := d.frame.feed(b)
	lineDone, overflow := d.line.feed(b)

	if frameDone {
		var rec Record
		if err := d.frame.decode(&rec); err != nil {
			// Not a frame after all: the lines it overlapped are real.
			released = d.release(released, snap, now)
			return d.withReleased(d.fail(Event{Record: rec, Err: err}, snap), released)
		}
		// Text collected alongside a valid frame is frame payload.
		d.counters.PayloadLines += uint64(d.heldCount)
		d.heldCount = 0
		d.line.reset()
		return d.withReleased(d.succeed(rec, 0, snap, now), released)
	}

	var ev Event
	switch {
	case overflow:
		d.counters.LineOverflows++
		ev = Event{Kind: EventOverflow}
	case lineDone && d.frame.collecting():
		d.hold()
	case lineDone:
		var rec Record
		dropped, err := d.line.decode(&rec)
		ev = d.commitLine(rec, dropped, err, snap, now)
	}
	return d.withReleased(ev, released)
}

func (d *Decoder) withReleased(ev Event, n int) Event {
	if n > 0 {
		ev.Released = d.released[:n]
	}
	return ev
}

// heldLine is a decoded but uncommitted text line.
type heldLine struct {
	rec     Record
	dropped Fields
	err     *ValidationError
}

// hold parses the completed line and parks it until the frame resolves.
func (d *Decoder) hold() {
	var h heldLine
	h.dropped, h.err = d.line.decode(&h.rec)
	if d.heldCount == len(d.held) {
		d.counters.PayloadLines++
		return
	}
	d.held[d.heldCount] = h
	d.heldCount++
}

// release commits held lines in arrival order, appending their outcomes to
// the released buffer from index n. It returns the new length.
func (d *Decoder) release(n int, snap *Snapshot, now time.Time) int {
	for i := 0; i < d.heldCount; i++ {
		h := &d.held[i]
		d.released[n] = d.commitLine(h.rec, h.dropped, h.err, snap, now)
		n++
	}
	d.heldCount = 0
	return n
}

func (d *Decoder) commitLine(rec Record, dropped Fields, err *ValidationError, snap *Snapshot, now time.Time) Event {
	d.counters.DroppedFields += uint64(dropped.Count())
	if err != nil {
		return d.fail(Event{Record: rec, Dropped: dropped, Err: err}, snap)
	}
	return d.succeed(rec, dropped, snap, now)
}

func (d *Decoder) succeed(rec Record, dropped Fields, snap *Snapshot, now time.Time) Event {
	snap.Apply(&rec, now)

	d.counters.FramesReceived++
	d.counters.ConsecutiveErrors = 0

	// Success only ever promotes IsSynced. A sync-loss event is the one
	// thing that clears it.
	switch {
	case rec.Sync == SyncAsserted:
		snap.IsSynced = true
		d.syncStreak = 0
	case snap.RPM > 0:
		if d.syncStreak < SyncDebounce {
			d.syncStreak++
		}
		if d.syncStreak >= SyncDebounce {
			snap.IsSynced = true
		}
	default:
		d.syncStreak = 0
	}

	return Event{Kind: EventDecoded, Record: rec, Dropped: dropped}
}

func (d *Decoder) fail(ev Event, snap *Snapshot) Event {
	ev.Kind = EventRejected

	d.counters.FramesErrored++
	d.counters.ConsecutiveErrors++
	d.syncStreak = 0

	if d.counters.ConsecutiveErrors >= SyncLossThreshold {
		snap.SyncLossCount++
		snap.IsSynced = false
		d.counters.ConsecutiveErrors = 0
		ev.SyncLost = true
	}
	return ev
}
