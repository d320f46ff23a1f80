// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sigmask decodes the per-satellite signal masks reported in
// BESTSAT logs into signal band names.
package sigmask

import (
	"strconv"
	"strings"
)

const (
	GPS     = "GPS"
	GLONASS = "GLONASS"
	GALILEO = "GALILEO"
	BEIDOU  = "BEIDOU"
	QZSS    = "QZSS"
)

// Bit n of a mask maps to entry n. Empty entries are reserved bits.
var tables = map[string][8]string{
	GPS:     {"L1CA", "L2P", "L2C", "L5", "L1C", "", "", ""},
	GLONASS: {"L1CA", "L2CA", "L2P", "L3", "", "", "", ""},
	GALILEO: {"E1", "E5A", "E5B", "ALTBOC", "E6", "", "", ""},
	BEIDOU:  {"B1I", "B1GEO", "B2I", "B2GEO", "B3I", "B3GEO", "B1C", "B2A"},
	QZSS:    {"L1CA", "L2C", "L5", "L1C", "L6", "", "", ""},
}

// Constellations returns the constellation identifiers with a known table.
func Constellations() []string {
	return []string{GPS, GLONASS, GALILEO, BEIDOU, QZSS}
}

// Decode returns the signal names for every set bit in the hexadecimal mask,
// lowest bit first. For an unknown constellation the mask itself is returned
// as a single "0x" prefixed entry.
func Decode(constellation string, mask string) []string {
	table, ok := tables[strings.ToUpper(constellation)]
	if !ok {
		return []string{"0x" + mask}
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(mask), "0x"), 16, 64)
	if err != nil {
		return []string{}
	}

	signals := []string{}
	for bit, name := range table {
		if name != "" && v&(1<<uint(bit)) != 0 {
			signals = append(signals, name)
		}
	}
	return signals
}
