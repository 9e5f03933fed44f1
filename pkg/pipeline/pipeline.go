// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pipeline runs one decode, classify and redraw iteration over a
// shared telemetry snapshot.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/ecustat/internal/monitoring"
	"github.com/Thermoquad/ecustat/pkg/clock"
	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/redraw"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

// DefaultRenderInterval is the render throttle.
const DefaultRenderInterval = 50 * time.Millisecond

// Request configures poll mode.
type Request struct {
	Enabled bool
	Command byte
	Period  time.Duration
	Window  time.Duration
}

// Config holds the pipeline settings.
type Config struct {
	Thresholds     condition.Thresholds
	BlinkPeriod    time.Duration
	RenderInterval time.Duration
	FieldOrder     speeduino.FieldOrder
	Request        Request
}

// DefaultConfig returns the stock settings in streaming mode.
func DefaultConfig() Config {
	return Config{
		Thresholds:     condition.DefaultThresholds(),
		BlinkPeriod:    redraw.DefaultBlinkPeriod,
		RenderInterval: DefaultRenderInterval,
		FieldOrder:     speeduino.DefaultFieldOrder,
	}
}

// Transition describes a classifier state change.
type Transition struct {
	From     condition.State
	To       condition.State
	At       time.Time
	Snapshot speeduino.Snapshot
}

// Frame is a value copy of everything a renderer needs.
type Frame struct {
	At        time.Time
	Snapshot  speeduino.Snapshot
	State     condition.State
	Previous  condition.State
	Progress  uint8
	Elapsed   time.Duration
	Dirty     redraw.Regions
	Phase     redraw.BlinkPhase
	Overspeed bool
	Counters  speeduino.Counters
}

// Iteration summarises one Step.
type Iteration struct {
	Decoded  int
	Rejected int
	Overflow int
	SyncLost bool
	State    condition.State
	Changed  bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEventHandler registers a callback for every decoder event.
func WithEventHandler(fn func(speeduino.Event)) Option {
	return func(p *Pipeline) {
		p.onEvent = append(p.onEvent, fn)
	}
}

// WithTransitionHandler registers a callback for classifier state changes.
func WithTransitionHandler(fn func(Transition)) Option {
	return func(p *Pipeline) {
		p.onTransition = append(p.onTransition, fn)
	}
}

// Pipeline owns the snapshot and the three state machines. It is not safe
// for concurrent use; hand Frame copies to other goroutines.
type Pipeline struct {
	clock clock.Clock
	cfg   Config

	snap         speeduino.Snapshot
	decoder      *speeduino.Decoder
	classifier   *condition.Classifier
	orchestrator *redraw.Orchestrator

	lastRender   time.Time
	onEvent      []func(speeduino.Event)
	onTransition []func(Transition)
}

// New builds a pipeline. A nil clock uses the real one.
func New(cfg Config, c clock.Clock, opts ...Option) (*Pipeline, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	if c == nil {
		c = clock.Real{}
	}
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = DefaultRenderInterval
	}
	if cfg.FieldOrder == (speeduino.FieldOrder{}) {
		cfg.FieldOrder = speeduino.DefaultFieldOrder
	}

	p := &Pipeline{
		clock:        c,
		cfg:          cfg,
		snap:         speeduino.DefaultSnapshot(),
		decoder:      speeduino.NewDecoder(c),
		classifier:   condition.NewClassifier(c, cfg.Thresholds),
		orchestrator: redraw.NewOrchestrator(c, cfg.BlinkPeriod),
	}
	p.decoder.SetFieldOrder(cfg.FieldOrder)
	if cfg.Request.Enabled {
		p.decoder.ConfigureRequest(cfg.Request.Command, cfg.Request.Period, cfg.Request.Window)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Step decodes a chunk, then classifies and observes once. An empty chunk
// still advances staleness and blink timing.
func (p *Pipeline) Step(chunk []byte) Iteration {
	var it Iteration

	p.decoder.Decode(chunk, &p.snap, func(ev speeduino.Event) {
		switch ev.Kind {
		case speeduino.EventDecoded:
			it.Decoded++
		case speeduino.EventRejected:
			it.Rejected++
		case speeduino.EventOverflow:
			it.Overflow++
		}
		if ev.SyncLost {
			it.SyncLost = true
			monitoring.Logf("sync lost (count=%d)", p.snap.SyncLossCount)
		}
		for _, fn := range p.onEvent {
			fn(ev)
		}
	})

	before := p.classifier.State()
	it.State = p.classifier.Evaluate(p.snap)
	it.Changed = p.classifier.Changed()
	if it.Changed {
		p.notify(before, it.State)
	}
	p.orchestrator.Observe(it.State)
	return it
}

func (p *Pipeline) notify(from, to condition.State) {
	monitoring.Logf("condition %s -> %s", from, to)
	t := Transition{From: from, To: to, At: p.clock.Now(), Snapshot: p.snap}
	for _, fn := range p.onTransition {
		fn(t)
	}
}

// RenderDue reports whether a render is due and, if so, starts the next
// render interval.
func (p *Pipeline) RenderDue() bool {
	now := p.clock.Now()
	if !p.lastRender.IsZero() && now.Sub(p.lastRender) < p.cfg.RenderInterval {
		return false
	}
	p.lastRender = now
	return true
}

// Frame returns a copy of the current render state.
func (p *Pipeline) Frame() Frame {
	return Frame{
		At:        p.clock.Now(),
		Snapshot:  p.snap,
		State:     p.classifier.State(),
		Previous:  p.classifier.Previous(),
		Progress:  p.classifier.RecoveryProgress(),
		Elapsed:   p.classifier.Elapsed(),
		Dirty:     p.orchestrator.Dirty(),
		Phase:     p.orchestrator.Phase(),
		Overspeed: p.classifier.Overspeed(p.snap),
		Counters:  p.decoder.Counters(),
	}
}

// ConsumeRegions clears dirty marks the renderer has drawn.
func (p *Pipeline) ConsumeRegions(r redraw.Regions) {
	p.orchestrator.Clear(r)
}

// PendingRequest returns the request bytes to write, if one is due.
func (p *Pipeline) PendingRequest() ([]byte, bool) {
	cmd, ok := p.decoder.PollRequest()
	if !ok {
		return nil, false
	}
	return []byte{cmd}, true
}

// ResetTelemetry restores the snapshot defaults and clears the decoder.
// The classifier falls back to NoData.
func (p *Pipeline) ResetTelemetry() {
	before := p.classifier.State()
	p.snap.Reset()
	p.decoder.Reset()
	p.classifier.Reset()
	p.orchestrator.MarkAll()
	if p.classifier.Changed() {
		p.notify(before, p.classifier.State())
	}
	monitoring.Logf("telemetry reset")
}

// ForceSyncLoss latches SyncLoss without waiting for decode failures.
func (p *Pipeline) ForceSyncLoss() {
	before := p.classifier.State()
	p.classifier.ForceSyncLoss()
	if p.classifier.Changed() {
		p.notify(before, p.classifier.State())
	}
}

// ClearDisplay marks every region for repaint.
func (p *Pipeline) ClearDisplay() {
	p.orchestrator.MarkAll()
}

// RecentBytes returns the last raw bytes the decoder saw.
func (p *Pipeline) RecentBytes() []byte {
	return p.decoder.RecentBytes()
}

// SetFieldOrder swaps the CSV column mapping.
func (p *Pipeline) SetFieldOrder(order speeduino.FieldOrder) {
	p.cfg.FieldOrder = order
	p.decoder.SetFieldOrder(order)
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// DebugDump returns a multi-line dump of the snapshot, counters and the
// last raw bytes.
func (p *Pipeline) DebugDump() string {
	now := p.clock.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "state:    %s (prev %s, %s)\n", p.classifier.State(), p.classifier.Previous(), p.classifier.Elapsed().Truncate(time.Millisecond))
	fmt.Fprintf(&b, "snapshot: %s\n", speeduino.FormatSnapshot(&p.snap, now))
	fmt.Fprintf(&b, "csv:      %s\n", p.decoder.FieldOrder())
	fmt.Fprintf(&b, "dirty:    %s blink=%s\n", p.orchestrator.Dirty(), p.orchestrator.Phase())
	fmt.Fprintf(&b, "recent:   %s\n", speeduino.FormatHex(p.decoder.RecentBytes()))
	b.WriteString(speeduino.FormatCounters(p.decoder.Counters(), now))
	return b.String()
}
