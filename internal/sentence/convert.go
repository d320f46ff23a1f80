// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package sentence

import (
	"math"
	"strconv"
	"strings"

	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
)

// headings of exactly this value mean the receiver has no heading
const noHeading = "0.0000"

// Converter maps one field of a fixed format sentence to one observation.
type Converter struct {
	Field   int
	Path    string
	Convert func(raw string) any
}

// Table is the ordered set of converters for one sentence type. Rule, if
// set, runs on the converted batch before it is returned.
type Table struct {
	// Semicolon tables read fields from the data section after ';'.
	Semicolon  bool
	Converters []Converter
	Rule       func(values []observation.PathValue)
}

// Parse applies every converter in the table. A field missing from a short
// sentence converts as an empty string.
func (t Table) Parse(r Record) []observation.PathValue {
	fields := r.Fields
	if t.Semicolon {
		var ok bool
		if fields, ok = r.Data(); !ok {
			return nil
		}
	}

	values := make([]observation.PathValue, 0, len(t.Converters))
	for _, c := range t.Converters {
		raw := ""
		if c.Field < len(fields) {
			raw = fields[c.Field]
		}
		values = append(values, observation.PathValue{
			Path:  c.Path,
			Value: c.Convert(raw),
		})
	}

	if t.Rule != nil {
		t.Rule(values)
	}
	return values
}

// Float parses a decimal number, NaN if it can't.
func Float(raw string) any {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Int parses a decimal integer, NaN if it can't.
func Int(raw string) any {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return math.NaN()
	}
	return v
}

func String(raw string) any {
	return strings.Trim(strings.TrimSpace(raw), `"`)
}

// Radians converts degrees to radians.
func Radians(raw string) any {
	v, ok := Float(raw).(float64)
	if !ok || math.IsNaN(v) {
		return math.NaN()
	}
	return v * math.Pi / 180
}

// Heading converts a receiver heading in degrees to radians from true north.
// "0.0000" is the receiver's way of saying it has no heading and converts to
// nil.
func Heading(raw string) any {
	if strings.TrimSpace(raw) == noHeading {
		return nil
	}
	v, ok := Float(raw).(float64)
	if !ok || math.IsNaN(v) {
		return math.NaN()
	}
	return math.Mod(v+90, 360) * math.Pi / 180
}

// clearWhen returns a rule that sets the value at target to nil when the value
// at gate equals sentinel.
func clearWhen(gate string, sentinel string, target string) func([]observation.PathValue) {
	return func(values []observation.PathValue) {
		cleared := false
		for _, pv := range values {
			if pv.Path == gate && pv.Value == sentinel {
				cleared = true
				break
			}
		}
		if !cleared {
			return
		}
		for i := range values {
			if values[i].Path == target {
				values[i].Value = nil
			}
		}
	}
}
