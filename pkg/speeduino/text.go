// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speeduino

import (
	"fmt"
	"strings"
)

// FieldOrder maps CSV columns to fields. A zero entry skips the column.
type FieldOrder [7]Fields

// DefaultFieldOrder is RPM,MAP,TPS,CLT,IAT,AFR,BAT.
var DefaultFieldOrder = FieldOrder{FieldRPM, FieldMAP, FieldThrottle, FieldCoolant, FieldIntake, FieldAFR, FieldBattery}

// ParseFieldOrder builds a FieldOrder from column names. "-" or "" skips a
// column. Each field may appear at most once.
func ParseFieldOrder(names []string) (FieldOrder, error) {
	var order FieldOrder
	if len(names) == 0 || len(names) > len(order) {
		return order, fmt.Errorf("field order needs 1-%d columns, got %d", len(order), len(names))
	}
	var seen Fields
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || name == "-" {
			continue
		}
		f, ok := ParseField(name)
		if !ok {
			return order, fmt.Errorf("unknown field %q in column %d", name, i)
		}
		if seen&f != 0 {
			return order, fmt.Errorf("field %q appears more than once", name)
		}
		seen |= f
		order[i] = f
	}
	if seen == 0 {
		return order, fmt.Errorf("field order maps no fields")
	}
	return order, nil
}

// String returns the order as comma-separated names
func (o FieldOrder) String() string {
	names := make([]string, 0, len(o))
	for _, f := range o {
		if f == 0 {
			names = append(names, "-")
			continue
		}
		names = append(names, f.String())
	}
	return strings.Join(names, ",")
}

// lineDecoder accumulates printable ASCII into lines.
type lineDecoder struct {
	buffer     [LineBufferSize]byte
	length     int
	discarding bool
	order      FieldOrder
}

func (l *lineDecoder) reset() {
	l.length = 0
}

func isPrintable(b byte) bool {
	return b == '\t' || (b >= 0x20 && b <= 0x7E)
}

// feed pushes one byte. ready reports a completed line. overflowed reports
// that the buffer filled up and the rest of the line will be discarded.
func (l *lineDecoder) feed(b byte) (ready bool, overflowed bool) {
	if b == '\r' || b == '\n' {
		if l.discarding {
			l.discarding = false
			l.reset()
			return false, false
		}
		if l.length == 0 {
			return false, false
		}
		return true, false
	}
	if l.discarding || !isPrintable(b) {
		return false, false
	}
	if l.length >= MaxLineLength {
		l.reset()
		l.discarding = true
		return false, true
	}
	l.buffer[l.length] = b
	l.length++
	return false, false
}

// decode parses the completed line into r and resets the machine. dropped
// holds recognised fields whose values were rejected.
func (l *lineDecoder) decode(r *Record) (dropped Fields, err *ValidationError) {
	line := string(l.buffer[:l.length])
	l.reset()

	if strings.IndexByte(line, '=') >= 0 {
		return decodeKeyValue(line, r)
	}
	return decodeCSV(line, l.order, r)
}

func isTokenSeparator(c byte) bool {
	return c == ',' || c == ' ' || c == '\t'
}

// decodeKeyValue parses "KEY=value" tokens separated by commas or blanks.
func decodeKeyValue(line string, r *Record) (Fields, *ValidationError) {
	*r = Record{Format: FormatKeyValue}
	var dropped Fields

	for pos := 0; pos < len(line); {
		for pos < len(line) && isTokenSeparator(line[pos]) {
			pos++
		}
		start := pos
		for pos < len(line) && !isTokenSeparator(line[pos]) {
			pos++
		}
		token := line[start:pos]
		eq := strings.IndexByte(token, '=')
		if eq <= 0 {
			continue
		}
		f, ok := matchKey(token[:eq])
		if !ok {
			continue
		}
		if !setField(r, f, token[eq+1:]) {
			dropped |= f
		}
	}

	if r.Fields == 0 {
		return dropped, emptyLineError(FormatKeyValue, dropped)
	}
	return dropped, nil
}

// matchKey upper-cases the key and strips anything that isn't alphanumeric
// before looking it up.
func matchKey(raw string) (Fields, bool) {
	var key [maxKeyLength]byte
	n := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			if n == len(key) {
				return 0, false
			}
			key[n] = c
			n++
		}
	}
	return ParseField(string(key[:n]))
}

// decodeCSV maps comma-separated columns through order.
func decodeCSV(line string, order FieldOrder, r *Record) (Fields, *ValidationError) {
	*r = Record{Format: FormatCSV}

	columns := strings.Count(line, ",") + 1
	if columns < MinCSVFields {
		return 0, lineError(FormatCSV, AnomalyTooFewFields,
			fmt.Sprintf("%d fields (need at least %d)", columns, MinCSVFields),
			map[string]interface{}{"fields": columns, "minimum": MinCSVFields})
	}

	var dropped Fields
	rest := line
	for i := 0; i < len(order) && rest != ""; i++ {
		value := rest
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			value, rest = rest[:comma], rest[comma+1:]
		} else {
			rest = ""
		}
		f := order[i]
		if f == 0 {
			continue
		}
		if !setField(r, f, value) {
			dropped |= f
		}
	}

	if r.Fields == 0 {
		return dropped, emptyLineError(FormatCSV, dropped)
	}
	return dropped, nil
}

// emptyLineError rejects a line that set nothing. A line whose recognised
// fields were all out of range is a range failure, anything else has no
// usable fields at all.
func emptyLineError(f Format, dropped Fields) *ValidationError {
	if dropped != 0 {
		return lineError(f, AnomalyFieldRange, "every field out of range: "+dropped.String(),
			map[string]interface{}{"dropped": dropped.String()})
	}
	return lineError(f, AnomalyNoFields, "no usable fields", nil)
}

// setField parses value for field f and stores it in r if it is plausible.
func setField(r *Record, f Fields, value string) bool {
	switch f {
	case FieldRPM:
		v, ok := ParseInt(value)
		if !ok || v < 0 || v > MaxTextRPM {
			return false
		}
		r.RPM = uint16(v)
	case FieldMAP:
		v, ok := ParseInt(value)
		if !ok || v < 0 || v > MaxTextMAP {
			return false
		}
		r.MAPkPa = uint8(v)
	case FieldThrottle:
		v, ok := ParseInt(value)
		if !ok || v < 0 || v > MaxTextThrottle {
			return false
		}
		r.ThrottlePct = uint8(v)
	case FieldCoolant, FieldIntake:
		v, ok := ParseInt(value)
		if !ok || v < -32768 || v > 32767 {
			return false
		}
		if f == FieldCoolant {
			r.CoolantC = int16(v)
		} else {
			r.IntakeC = int16(v)
		}
	case FieldAFR:
		v, ok := parseAFR(value)
		if !ok {
			return false
		}
		r.AFRx100 = v
	case FieldBattery:
		v, ok := parseBattery(value)
		if !ok {
			return false
		}
		r.BatteryMV = v
	default:
		return false
	}
	r.Fields |= f
	return true
}

// parseAFR accepts a ratio ("14.7") or a pre-scaled x100 integer ("1470").
func parseAFR(value string) (uint16, bool) {
	v, isInteger, ok := ParseFixed(value, 2)
	if !ok {
		return 0, false
	}
	afr := v
	if v <= 0 || v >= maxDecimalAFR {
		if !isInteger {
			return 0, false
		}
		afr = v / 100
	}
	if afr < MinAFRx100 || afr > MaxAFRx100 {
		return 0, false
	}
	return uint16(afr), true
}

// parseBattery accepts volts ("12.6"), tenths of a volt ("126") or
// millivolts ("12600").
func parseBattery(value string) (uint16, bool) {
	v, isInteger, ok := ParseFixed(value, 3)
	if !ok {
		return 0, false
	}
	mv := v
	if v <= 0 || v >= maxDecimalVolts {
		if !isInteger {
			return 0, false
		}
		raw := v / 1000
		if raw <= maxTenthsBattery {
			mv = raw * 100
		} else {
			mv = raw
		}
	}
	if mv <= 0 || mv > MaxBatteryMV {
		return 0, false
	}
	return uint16(mv), true
}
