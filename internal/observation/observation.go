// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package observation

import (
	"encoding/json"
	"math"
	"time"
)

// PathValue is a single observation: a dotted path and its value. Value is
// one of float64, int, string, nil or a structured record.
type PathValue struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// MarshalJSON writes non-finite floats as null since JSON has no NaN.
func (pv PathValue) MarshalJSON() ([]byte, error) {
	v := pv.Value
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		v = nil
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	}{pv.Path, v})
}

// Delta is one update: all observations derived from one sentence or
// correction message, in order.
type Delta struct {
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Values    []PathValue `json:"values"`
}

type Sink interface {
	Emit(d Delta) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(d Delta) error

func (f SinkFunc) Emit(d Delta) error {
	return f(d)
}

// Multi fans a delta out to every sink. All sinks are called; the first
// error is returned.
type Multi []Sink

func (m Multi) Emit(d Delta) (err error) {
	for _, s := range m {
		if e := s.Emit(d); e != nil && err == nil {
			err = e
		}
	}
	return
}
