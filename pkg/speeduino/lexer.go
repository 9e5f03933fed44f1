// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

// The text formats are emitted by firmware regardless of host locale, so the
// lexers below only accept ASCII digits, an optional leading '-' and a '.'
// decimal point. Surrounding spaces and tabs are ignored.

const maxLexDigits = 9

func trimBlank(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// ParseInt parses a signed decimal integer.
// Returns ok=false for empty input, stray characters or overflow.
func ParseInt(s string) (int32, bool) {
	s = trimBlank(s)
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if len(s) == 0 || len(s) > maxLexDigits {
		return 0, false
	}
	var v int32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int32(c-'0')
	}
	if neg {
		v = -v
	}
	return v, true
}

// ParseFixed parses a decimal number and returns it multiplied by 10^places,
// rounded half away from zero. isInteger reports whether the input had no
// fractional part.
func ParseFixed(s string, places int) (value int32, isInteger bool, ok bool) {
	s = trimBlank(s)
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	intPart, frac, hasDot := s, "", false
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			intPart, frac, hasDot = s[:i], s[i+1:], true
			break
		}
	}
	if intPart == "" && frac == "" {
		return 0, false, false
	}
	if len(intPart)+places > maxLexDigits {
		return 0, false, false
	}

	var v int32
	for i := 0; i < len(intPart); i++ {
		c := intPart[i]
		if c < '0' || c > '9' {
			return 0, false, false
		}
		v = v*10 + int32(c-'0')
	}
	for i := 0; i < len(frac); i++ {
		if frac[i] < '0' || frac[i] > '9' {
			return 0, false, false
		}
	}
	for i := 0; i < places; i++ {
		v *= 10
		if i < len(frac) {
			v += int32(frac[i] - '0')
		}
	}
	if len(frac) > places && frac[places] >= '5' {
		v++
	}
	if neg {
		v = -v
	}
	return v, !hasDot, true
}
