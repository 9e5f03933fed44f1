// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ---- connection ----

	if cfg.Connection.Port != "" && cfg.Connection.URL != "" {
		return fmt.Errorf("connection: port and url are mutually exclusive")
	}
	if cfg.Connection.Baud <= 0 {
		return fmt.Errorf("connection: baud must be positive, got %d", cfg.Connection.Baud)
	}
	if u := cfg.Connection.URL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return fmt.Errorf("connection: url %q must start with ws:// or wss://", u)
	}

	// ---- decoder ----

	if len(cfg.Decoder.FieldOrder) > 0 {
		if _, err := speeduino.ParseFieldOrder(cfg.Decoder.FieldOrder); err != nil {
			return fmt.Errorf("decoder: field_order: %w", err)
		}
	}

	req := cfg.Decoder.Request
	if req.Enabled {
		if _, err := speeduino.ParseRequestCommand(req.Command); err != nil {
			return fmt.Errorf("decoder: request: %w", err)
		}
		if req.PeriodMs <= 0 {
			return fmt.Errorf("decoder: request: period_ms must be positive")
		}
		if req.WindowMs <= 0 {
			return fmt.Errorf("decoder: request: window_ms must be positive")
		}
	}

	// ---- thresholds ----

	if err := cfg.ConditionThresholds().Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	// ---- display ----

	if cfg.Display.RenderIntervalMs <= 0 {
		return fmt.Errorf("display: render_interval_ms must be positive")
	}
	if cfg.Display.BlinkPeriodMs <= 0 {
		return fmt.Errorf("display: blink_period_ms must be positive")
	}
	if cfg.Display.StatsIntervalS < 0 {
		return fmt.Errorf("display: stats_interval_s must not be negative")
	}

	// ---- recording ----

	if cfg.Recording.File != "" && cfg.Recording.File == cfg.Recording.EventDB {
		return fmt.Errorf("recording: file and event_db must differ")
	}

	return nil
}
