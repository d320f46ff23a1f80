// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sentence turns lines from a Unicore receiver into observations.
//
// Lines are either plain sentences ("$GNHPR,...*CC", "#BESTSATA,...;...*CC")
// or sentences wrapped by a multiplexer as "timestamp;source;sentence".
// Checksums are not verified. A field that fails to convert is reported as
// NaN without dropping the rest of the sentence.
package sentence

import (
	"fmt"
	"time"

	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
)

// Sentence types the dispatcher knows. Every entry must have a parser.
var Types = []string{
	"BESTSATA",
	"UNIHEADINGA",
	"CONFIG",
	"HPR",
	"GGA",
	"RMC",
	"VTG",
}

type Parser interface {
	Parse(r Record) []observation.PathValue
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(r Record) []observation.PathValue

func (f ParserFunc) Parse(r Record) []observation.PathValue {
	return f(r)
}

// Dispatcher routes lines to the parser for their sentence type and emits
// the non-empty results to a sink. A Dispatcher is not safe for concurrent
// use; lines are handled one at a time, in order.
type Dispatcher struct {
	source  string
	sink    observation.Sink
	parsers map[string]Parser
	config  *configEcho
	now     func() time.Time
}

// New creates a dispatcher emitting deltas tagged with source to sink.
func New(source string, sink observation.Sink) (*Dispatcher, error) {
	d := &Dispatcher{
		source: source,
		sink:   sink,
		config: &configEcho{entries: ConfigEntries{}},
		now:    time.Now,
	}

	parsers := map[string]Parser{
		"BESTSATA":    ParserFunc(parseSatellites),
		"UNIHEADINGA": uniHeading,
		"CONFIG":      ParserFunc(d.config.parse),
		"HPR":         hpr,
		"GGA":         ParserFunc(parseStandard),
		"RMC":         ParserFunc(parseStandard),
		"VTG":         ParserFunc(parseStandard),
	}
	if err := validate(Types, parsers); err != nil {
		return nil, fmt.Errorf("sentence.New(): %w", err)
	}
	d.parsers = parsers

	return d, nil
}

// validate checks that types and parsers match one to one.
func validate(types []string, parsers map[string]Parser) error {
	seen := map[string]bool{}
	for _, t := range types {
		if seen[t] {
			return fmt.Errorf("sentence type %q declared twice", t)
		}
		seen[t] = true
		if parsers[t] == nil {
			return fmt.Errorf("no parser for sentence type %q", t)
		}
	}
	for t := range parsers {
		if !seen[t] {
			return fmt.Errorf("parser for undeclared sentence type %q", t)
		}
	}
	return nil
}

// Config returns a copy of the receiver configuration seen so far.
func (d *Dispatcher) Config() ConfigEntries {
	return d.config.entries.copy()
}

func (d *Dispatcher) lookup(r Record) Parser {
	if p, ok := d.parsers[r.Type]; ok {
		return p
	}
	// standard sentences are keyed without their talker id, e.g. GNGGA
	if len(r.Raw) > 0 && r.Raw[0] == '$' && len(r.Type) == 5 {
		return d.parsers[r.Type[2:]]
	}
	return nil
}

func (d *Dispatcher) parse(line string) (Record, []observation.PathValue) {
	r, ok := Split(line)
	if !ok {
		return r, nil
	}
	p := d.lookup(r)
	if p == nil {
		return r, nil
	}
	return r, p.Parse(r)
}

// Parse returns the observations for a single line. Unknown and malformed
// sentences give no observations.
func (d *Dispatcher) Parse(line string) []observation.PathValue {
	_, values := d.parse(line)
	return values
}

// Handle parses a line and emits its observations as one delta. Nothing is
// emitted when the line produced no observations.
func (d *Dispatcher) Handle(line string) error {
	r, values := d.parse(line)
	if len(values) == 0 {
		return nil
	}

	source := d.source
	if r.Source != "" {
		source = fmt.Sprintf("%s.%s", d.source, r.Source)
	}

	if err := d.sink.Emit(observation.Delta{
		Source:    source,
		Timestamp: d.now(),
		Values:    values,
	}); err != nil {
		return fmt.Errorf("sentence.Dispatcher.Handle(): %w", err)
	}
	return nil
}
