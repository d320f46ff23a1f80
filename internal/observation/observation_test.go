// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package observation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestPathValueJSON(t *testing.T) {
	tables := []struct {
		in       PathValue
		expected string
	}{
		{PathValue{"navigation.headingTrue", 1.5}, `{"path":"navigation.headingTrue","value":1.5}`},
		{PathValue{"navigation.headingTrue", nil}, `{"path":"navigation.headingTrue","value":null}`},
		{PathValue{"navigation.gnss.heading.baselineLength", math.NaN()}, `{"path":"navigation.gnss.heading.baselineLength","value":null}`},
		{PathValue{"navigation.gnss.heading.positionType", "NONE"}, `{"path":"navigation.gnss.heading.positionType","value":"NONE"}`},
	}

	for _, table := range tables {
		out, err := json.Marshal(table.in)
		if err != nil {
			t.Fatalf("%+v: %v", table.in, err)
		}
		if string(out) != table.expected {
			t.Errorf("%+v expected: %s, got: %s", table.in, table.expected, out)
		}
	}
}

func TestMulti(t *testing.T) {
	var got []Delta
	errSink := errors.New("sink failed")
	m := Multi{
		SinkFunc(func(d Delta) error { return errSink }),
		SinkFunc(func(d Delta) error { got = append(got, d); return nil }),
	}

	err := m.Emit(Delta{Source: "test"})
	if !errors.Is(err, errSink) {
		t.Errorf("expected %v, got %v", errSink, err)
	}
	if len(got) != 1 {
		t.Errorf("expected second sink to be called once, got %d", len(got))
	}
}

func TestMQTTSink(t *testing.T) {
	published := map[string]string{}
	var order []string
	s := newMQTTSink("gnss/", func(topic string, payload []byte) error {
		published[topic] = string(payload)
		order = append(order, topic)
		return nil
	})

	d := Delta{
		Source:    "um982",
		Timestamp: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Values: []PathValue{
			{"navigation.headingTrue", 1.0},
			{"navigation.attitude.pitch", 0.5},
		},
	}
	if err := s.Emit(d); err != nil {
		t.Fatal(err)
	}

	expected := []string{"gnss/navigation/headingTrue", "gnss/navigation/attitude/pitch", "gnss/delta"}
	if len(order) != len(expected) {
		t.Fatalf("expected topics %q, got %q", expected, order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Errorf("topic %d expected: %q, got: %q", i, expected[i], order[i])
		}
	}
	if published["gnss/navigation/headingTrue"] != `{"path":"navigation.headingTrue","value":1}` {
		t.Errorf("unexpected payload %q", published["gnss/navigation/headingTrue"])
	}
}

func TestMQTTSinkPublishError(t *testing.T) {
	s := newMQTTSink("gnss", func(topic string, payload []byte) error {
		return errors.New("not connected")
	})
	if err := s.Emit(Delta{Values: []PathValue{{"a.b", 1}}}); err == nil {
		t.Error("expected error")
	}
}
