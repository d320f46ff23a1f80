// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package sentence

import (
	"strings"

	"gitlab.com/postmarketOS/gnss_rtk/internal/nmea"
)

// Record is a single line from the receiver, split up for the parsers.
type Record struct {
	// Raw is the sentence as received, without any multiplexing prefix.
	Raw string
	// Body is Raw with the checksum suffix removed.
	Body string
	// Type is the token before the first comma, without the leading '$'
	// or '#'.
	Type string
	// Fields are the comma separated fields after Type.
	Fields []string

	// Set when the line arrived wrapped as "timestamp;source;sentence".
	Timestamp string
	Source    string
}

// Data returns the comma separated fields after the first ';'. ok is false if
// the sentence has no ';'.
func (r Record) Data() (fields []string, ok bool) {
	i := strings.IndexByte(r.Body, ';')
	if i < 0 {
		return nil, false
	}
	return strings.Split(r.Body[i+1:], ","), true
}

// NumFields is the number of comma separated fields in the whole sentence,
// including the type and any header.
func (r Record) NumFields() int {
	return strings.Count(r.Body, ",") + 1
}

func isMultiplexed(line string) bool {
	if line == "" || line[0] == '$' || line[0] == '#' {
		return false
	}
	return strings.Count(line, ";") >= 2
}

// Split turns a line into a Record. ok is false for empty lines.
func Split(line string) (r Record, ok bool) {
	line = strings.TrimSpace(line)

	if isMultiplexed(line) {
		parts := strings.Split(line, ";")
		r.Timestamp = parts[0]
		r.Source = parts[1]
		line = strings.Join(parts[2:], ";")
	}
	if line == "" {
		return r, false
	}

	r.Raw = line
	r.Body, _ = nmea.StripChecksum(line)

	fields := strings.Split(r.Body, ",")
	r.Type = strings.TrimLeft(fields[0], "$#")
	r.Fields = fields[1:]

	// "#MSG;data" with no comma before the ';'
	if i := strings.IndexByte(r.Type, ';'); i >= 0 {
		r.Type = r.Type[:i]
	}

	return r, r.Type != ""
}
