// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the ecustat YAML configuration. Command-line flags
// override anything set here.
package config

import (
	"time"

	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/pipeline"
	"github.com/Thermoquad/ecustat/pkg/redraw"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Decoder    DecoderConfig    `yaml:"decoder"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Display    DisplayConfig    `yaml:"display"`
	Recording  RecordingConfig  `yaml:"recording"`
}

// ---- CONNECTION ----

type ConnectionConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// ---- DECODER ----

type DecoderConfig struct {
	FieldOrder []string      `yaml:"field_order"`
	Request    RequestConfig `yaml:"request"`
}

type RequestConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Command  string `yaml:"command"`
	PeriodMs int    `yaml:"period_ms"`
	WindowMs int    `yaml:"window_ms"`
}

// ---- THRESHOLDS ----

type ThresholdsConfig struct {
	RPMMax uint16 `yaml:"rpm_max"`

	CoolantMin    int16 `yaml:"coolant_min"`
	CoolantMax    int16 `yaml:"coolant_max"`
	CoolantMargin int16 `yaml:"coolant_margin"`

	AFRMin    uint16 `yaml:"afr_min"`
	AFRMax    uint16 `yaml:"afr_max"`
	AFRMargin uint16 `yaml:"afr_margin"`

	BatteryMin    uint16 `yaml:"battery_min"`
	BatteryMargin uint16 `yaml:"battery_margin"`

	DataTimeoutMs   int `yaml:"data_timeout_ms"`
	RecoveryDelayMs int `yaml:"recovery_delay_ms"`
}

// ---- DISPLAY ----

type DisplayConfig struct {
	RenderIntervalMs int `yaml:"render_interval_ms"`
	BlinkPeriodMs    int `yaml:"blink_period_ms"`
	StatsIntervalS   int `yaml:"stats_interval_s"`
}

// ---- RECORDING ----

type RecordingConfig struct {
	File    string `yaml:"file"`
	EventDB string `yaml:"event_db"`
}

// Default returns the built-in configuration.
func Default() *Config {
	t := condition.DefaultThresholds()
	return &Config{
		Connection: ConnectionConfig{
			Baud: 115200,
		},
		Decoder: DecoderConfig{
			Request: RequestConfig{
				Command:  "A",
				PeriodMs: int(speeduino.DefaultRequestPeriod / time.Millisecond),
				WindowMs: int(speeduino.DefaultResponseWindow / time.Millisecond),
			},
		},
		Thresholds: ThresholdsConfig{
			RPMMax:          t.RPMMax,
			CoolantMin:      t.CoolantMin,
			CoolantMax:      t.CoolantMax,
			CoolantMargin:   t.CoolantMargin,
			AFRMin:          t.AFRMin,
			AFRMax:          t.AFRMax,
			AFRMargin:       t.AFRMargin,
			BatteryMin:      t.BatteryMin,
			BatteryMargin:   t.BatteryMargin,
			DataTimeoutMs:   int(t.DataTimeout / time.Millisecond),
			RecoveryDelayMs: int(t.RecoveryDelay / time.Millisecond),
		},
		Display: DisplayConfig{
			RenderIntervalMs: int(pipeline.DefaultRenderInterval / time.Millisecond),
			BlinkPeriodMs:    int(redraw.DefaultBlinkPeriod / time.Millisecond),
			StatsIntervalS:   0,
		},
	}
}

// ConditionThresholds converts the thresholds section.
func (c *Config) ConditionThresholds() condition.Thresholds {
	t := c.Thresholds
	return condition.Thresholds{
		RPMMax:        t.RPMMax,
		CoolantMin:    t.CoolantMin,
		CoolantMax:    t.CoolantMax,
		CoolantMargin: t.CoolantMargin,
		AFRMin:        t.AFRMin,
		AFRMax:        t.AFRMax,
		AFRMargin:     t.AFRMargin,
		BatteryMin:    t.BatteryMin,
		BatteryMargin: t.BatteryMargin,
		DataTimeout:   time.Duration(t.DataTimeoutMs) * time.Millisecond,
		RecoveryDelay: time.Duration(t.RecoveryDelayMs) * time.Millisecond,
	}
}

// Pipeline builds the pipeline settings. It fails only on a configuration
// that Validate would reject.
func (c *Config) Pipeline() (pipeline.Config, error) {
	pc := pipeline.Config{
		Thresholds:     c.ConditionThresholds(),
		BlinkPeriod:    time.Duration(c.Display.BlinkPeriodMs) * time.Millisecond,
		RenderInterval: time.Duration(c.Display.RenderIntervalMs) * time.Millisecond,
		FieldOrder:     speeduino.DefaultFieldOrder,
	}

	if len(c.Decoder.FieldOrder) > 0 {
		order, err := speeduino.ParseFieldOrder(c.Decoder.FieldOrder)
		if err != nil {
			return pc, err
		}
		pc.FieldOrder = order
	}

	if c.Decoder.Request.Enabled {
		cmd, err := speeduino.ParseRequestCommand(c.Decoder.Request.Command)
		if err != nil {
			return pc, err
		}
		pc.Request = pipeline.Request{
			Enabled: true,
			Command: cmd,
			Period:  time.Duration(c.Decoder.Request.PeriodMs) * time.Millisecond,
			Window:  time.Duration(c.Decoder.Request.WindowMs) * time.Millisecond,
		}
	}
	return pc, nil
}
