// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"fmt"
	"strconv"
	"strings"
)

// Request commands written to the ECU in poll mode.
const (
	// CmdRealtime asks for the realtime data block (format B response).
	CmdRealtime = 'A'
	// CmdRealtimeLegacy is the lower-case variant used by older firmware.
	CmdRealtimeLegacy = 'a'
)

// ParseRequestCommand parses a request command from config. It accepts a
// single character ("A") or a hex byte ("0x41").
func ParseRequestCommand(s string) (byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CmdRealtime, nil
	}
	if len(s) == 1 {
		return s[0], nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid request command %q: %w", s, err)
		}
		return byte(v), nil
	}
	return 0, fmt.Errorf("invalid request command %q (use one character or 0xNN)", s)
}

// IsRequestCommand reports whether b is a known realtime request.
func IsRequestCommand(b byte) bool {
	return b == CmdRealtime || b == CmdRealtimeLegacy
}
