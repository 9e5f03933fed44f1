// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import "testing"

func TestParseInt(t *testing.T) {
	tests := []struct {
		in     string
		want   int32
		wantOK bool
	}{
		{"42", 42, true},
		{" -7 ", -7, true},
		{"+5", 5, true},
		{"\t0", 0, true},
		{"", 0, false},
		{"-", 0, false},
		{"4x", 0, false},
		{"14.7", 0, false},
		{"1234567890", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseInt(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseFixed(t *testing.T) {
	tests := []struct {
		in          string
		places      int
		want        int32
		wantInteger bool
		wantOK      bool
	}{
		{"14.7", 2, 1470, false, true},
		{"14", 2, 1400, true, true},
		{"14.705", 2, 1471, false, true},
		{"14.704", 2, 1470, false, true},
		{".5", 2, 50, false, true},
		{"5.", 2, 500, false, true},
		{"-1.25", 2, -125, false, true},
		{"12.6", 3, 12600, false, true},
		{"1.2.3", 2, 0, false, false},
		{"abc", 2, 0, false, false},
		{".", 2, 0, false, false},
		{"1234567890", 2, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, isInteger, ok := ParseFixed(tt.in, tt.places)
			if ok != tt.wantOK {
				t.Fatalf("ParseFixed(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got != tt.want || isInteger != tt.wantInteger {
				t.Errorf("ParseFixed(%q, %d) = %d (integer=%v), want %d (integer=%v)",
					tt.in, tt.places, got, isInteger, tt.want, tt.wantInteger)
			}
		})
	}
}

func TestParseAFR(t *testing.T) {
	tests := []struct {
		in     string
		want   uint16
		wantOK bool
	}{
		{"14.7", 1470, true},
		{"14", 1400, true},
		{"1470", 1470, true},
		{"8.0", 800, true},
		{"25", 2500, true},
		{"7.9", 0, false},
		{"99.9", 0, false},
		{"0", 0, false},
		{"147", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseAFR(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseAFR(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseBattery(t *testing.T) {
	tests := []struct {
		in     string
		want   uint16
		wantOK bool
	}{
		{"12.6", 12600, true},
		{"12", 12000, true},
		{"126", 12600, true},
		{"13800", 13800, true},
		{"20", 20000, true},
		{"25.5", 0, false},
		{"0", 0, false},
		{"-5", 0, false},
		{"99999", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseBattery(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseBattery(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
