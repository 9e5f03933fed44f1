// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

// Normalize applies post-validation normalization.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Connection.Port = strings.TrimSpace(cfg.Connection.Port)
	cfg.Connection.URL = strings.TrimSpace(cfg.Connection.URL)

	// Field names are matched case-insensitively; store them canonical
	if len(cfg.Decoder.FieldOrder) > 0 {
		if order, err := speeduino.ParseFieldOrder(cfg.Decoder.FieldOrder); err == nil {
			names := strings.Split(order.String(), ",")
			for len(names) > 1 && names[len(names)-1] == "-" {
				names = names[:len(names)-1]
			}
			cfg.Decoder.FieldOrder = names
		}
	}

	if cmd, err := speeduino.ParseRequestCommand(cfg.Decoder.Request.Command); err == nil {
		if cmd >= 0x21 && cmd <= 0x7E {
			cfg.Decoder.Request.Command = string(rune(cmd))
		} else {
			cfg.Decoder.Request.Command = fmt.Sprintf("0x%02X", cmd)
		}
	}
}
