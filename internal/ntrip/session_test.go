// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ntrip

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"gitlab.com/postmarketOS/gnss_rtk/internal/geo"
	"gitlab.com/postmarketOS/gnss_rtk/internal/rtcm"
)

const eventTimeout = 2 * time.Second

// syncBuffer collects forwarded corrections
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte{}, b.buf.Bytes()...)
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("serial port gone")
}

// caster is a fake NTRIP caster. Each dial runs the next handler on the
// server end of a pipe.
type caster struct {
	mu       sync.Mutex
	handlers []func(conn net.Conn, req *bufio.Reader)
	dials    int
}

func (c *caster) dial(ctx context.Context, network, address string) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dials >= len(c.handlers) {
		c.dials++
		return nil, errors.New("connection refused")
	}
	h := c.handlers[c.dials]
	c.dials++

	client, server := net.Pipe()
	go func() {
		defer server.Close()
		h(server, bufio.NewReader(server))
	}()
	return client, nil
}

// readRequest reads the request header and returns its lines.
func readRequest(r *bufio.Reader) []string {
	var lines []string
	for {
		l, err := r.ReadString('\n')
		if err != nil {
			return lines
		}
		l = strings.TrimSpace(l)
		if l == "" {
			return lines
		}
		lines = append(lines, l)
	}
}

// accept answers the request, checks the first GGA report and then sends
// data. The connection is kept open until the client goes away.
func accept(t *testing.T, response string, data []byte, keepOpen bool) func(net.Conn, *bufio.Reader) {
	return func(conn net.Conn, r *bufio.Reader) {
		readRequest(r)
		if _, err := io.WriteString(conn, response); err != nil {
			return
		}
		gga, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if _, err := gonmea.Parse(strings.TrimSpace(gga)); err != nil || !strings.HasPrefix(gga, "$GPGGA,") {
			t.Errorf("unexpected position report %q: %v", gga, err)
		}
		if len(data) > 0 {
			if _, err := conn.Write(data); err != nil {
				return
			}
		}
		if keepOpen {
			io.Copy(io.Discard, r)
		}
	}
}

// waitFor reads events until one matches, returning everything read.
func waitFor(t *testing.T, events <-chan Event, match func(Event) bool) []Event {
	t.Helper()
	var seen []Event
	timeout := time.After(eventTimeout)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				t.Fatalf("events closed, seen: %+v", seen)
			}
			seen = append(seen, e)
			if match(e) {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out, seen: %+v", seen)
		}
	}
}

func isState(st State) func(Event) bool {
	return func(e Event) bool {
		return e.Kind == StateChanged && e.State == st
	}
}

func states(events []Event) []State {
	var out []State
	for _, e := range events {
		if e.Kind == StateChanged {
			out = append(out, e.State)
		}
	}
	return out
}

func testOptions() Options {
	return Options{
		Host:       "caster.example.com",
		Port:       2101,
		Mountpoint: "MOUNT",
		Username:   "user",
		Password:   "pass",
		Position:   geo.GeodeticToECEF(52.0, 5.0, 0),
	}
}

type stationMsg struct {
	id      int
	x, y, z int64
}

func (m stationMsg) StationID() int       { return m.id }
func (m stationMsg) ARP() (x, y, z int64) { return m.x, m.y, m.z }
func (m stationMsg) Scale() float64       { return 10000 }

// fakeDecoder returns one station message for every 0xAA byte and fails on
// anything else.
type fakeDecoder struct {
	msg stationMsg
}

func (d fakeDecoder) Decode(buf []byte) (any, int, error) {
	if buf[0] != 0xAA {
		return nil, 0, errors.New("partial frame")
	}
	return d.msg, 1, nil
}

func TestRequest(t *testing.T) {
	req := request(testOptions())
	for _, want := range []string{
		"GET /MOUNT HTTP/1.0\r\n",
		"Authorization: Basic dXNlcjpwYXNz\r\n",
		"User-Agent: NTRIP",
	} {
		if !strings.Contains(req, want) {
			t.Errorf("request %q missing %q", req, want)
		}
	}
	if !strings.HasSuffix(req, "\r\n\r\n") {
		t.Errorf("request not terminated: %q", req)
	}

	opts := testOptions()
	opts.Username = ""
	if strings.Contains(request(opts), "Authorization") {
		t.Error("unexpected authorization header")
	}
}

func TestStreamForwardsAndDecodes(t *testing.T) {
	p := geo.GeodeticToECEF(48.1, 11.5, 500)
	msg := stationMsg{
		id: 5001,
		x:  int64(math.Round(p.X * 10000)),
		y:  int64(math.Round(p.Y * 10000)),
		z:  int64(math.Round(p.Z * 10000)),
	}
	data := []byte{0xAA, 0x01, 0x02, 0xAA}

	c := &caster{handlers: []func(net.Conn, *bufio.Reader){
		accept(t, "ICY 200 OK\r\n", data, true),
	}}
	out := &syncBuffer{}
	s := NewSession(testOptions(), out, fakeDecoder{msg}, WithDialer(c.dial))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	seen := waitFor(t, s.Events(), func(e Event) bool { return e.Kind == Station })
	if got := states(seen); len(got) != 2 || got[0] != Connecting || got[1] != Streaming {
		t.Errorf("unexpected states %v", got)
	}

	st := seen[len(seen)-1].Station
	if st.ID != 5001 {
		t.Errorf("expected station 5001, got %d", st.ID)
	}
	if math.Abs(st.Position.Latitude-48.1) > 1e-6 || math.Abs(st.Position.Longitude-11.5) > 1e-6 ||
		math.Abs(st.Position.Height-500) > 1e-3 {
		t.Errorf("unexpected position %+v", st.Position)
	}

	// decoding stops at the first failure, so only the first 0xAA decodes
	select {
	case e := <-s.Events():
		t.Errorf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	deadline := time.Now().Add(eventTimeout)
	for !bytes.Equal(out.Bytes(), data) {
		if time.Now().After(deadline) {
			t.Fatalf("expected %x forwarded, got %x", data, out.Bytes())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if s.State() != Streaming {
		t.Errorf("expected streaming, got %s", s.State())
	}

	obs := st.Observation()
	if obs.Path != PathReferenceStation {
		t.Errorf("unexpected path %q", obs.Path)
	}
	if rec := obs.Value.(stationRecord); rec.Name != "5001" {
		t.Errorf("unexpected station name %q", rec.Name)
	}
}

func TestStreamRTCM(t *testing.T) {
	frame, err := hex.DecodeString("D300133ED7D30202980EDEEF34B4BD62AC0941986F33360B98")
	if err != nil {
		t.Fatal(err)
	}
	c := &caster{handlers: []func(net.Conn, *bufio.Reader){
		accept(t, "HTTP/1.1 200 OK\r\nContent-Type: gnss/data\r\n\r\n", frame, true),
	}}
	out := &syncBuffer{}
	s := NewSession(testOptions(), out, rtcm.NewDecoder(), WithDialer(c.dial))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	seen := waitFor(t, s.Events(), func(e Event) bool { return e.Kind == Station })
	st := seen[len(seen)-1].Station
	if st.ID != 2003 {
		t.Errorf("expected station 2003, got %d", st.ID)
	}
	if st.Position.Latitude < -90 || st.Position.Latitude > 90 ||
		st.Position.Longitude < -180 || st.Position.Longitude > 180 {
		t.Errorf("implausible position %+v", st.Position)
	}
}

func TestChunkedResponse(t *testing.T) {
	c := &caster{handlers: []func(net.Conn, *bufio.Reader){
		accept(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n", []byte("5\r\nhello\r\n"), true),
	}}
	out := &syncBuffer{}
	s := NewSession(testOptions(), out, nil, WithDialer(c.dial))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(eventTimeout)
	for string(out.Bytes()) != "hello" {
		if time.Now().After(deadline) {
			t.Fatalf("expected %q forwarded, got %q", "hello", out.Bytes())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReconnect(t *testing.T) {
	c := &caster{handlers: []func(net.Conn, *bufio.Reader){
		// close right after the first report
		accept(t, "ICY 200 OK\r\n", nil, false),
		accept(t, "ICY 200 OK\r\n", nil, true),
	}}
	s := NewSession(testOptions(), io.Discard, nil, WithDialer(c.dial), WithReconnectDelay(10*time.Millisecond))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, s.Events(), isState(Streaming))
	seen := waitFor(t, s.Events(), isState(Reconnecting))
	if seen[0].Kind != Error || seen[0].Err == nil {
		t.Errorf("expected error before reconnecting, got %+v", seen[0])
	}
	waitFor(t, s.Events(), isState(Connecting))
	waitFor(t, s.Events(), isState(Streaming))

	c.mu.Lock()
	dials := c.dials
	c.mu.Unlock()
	if dials != 2 {
		t.Errorf("expected 2 dials, got %d", dials)
	}
}

func TestRefused(t *testing.T) {
	c := &caster{handlers: []func(net.Conn, *bufio.Reader){
		func(conn net.Conn, r *bufio.Reader) {
			readRequest(r)
			io.WriteString(conn, "HTTP/1.1 401 Unauthorized\r\n\r\n")
		},
	}}
	s := NewSession(testOptions(), io.Discard, nil, WithDialer(c.dial), WithReconnectDelay(time.Hour))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	seen := waitFor(t, s.Events(), isState(Reconnecting))
	var handshakeErr error
	for _, e := range seen {
		if e.Kind == Error {
			handshakeErr = e.Err
		}
		if e.Kind == StateChanged && e.State == Streaming {
			t.Error("unexpected streaming state")
		}
	}
	if handshakeErr == nil || !strings.Contains(handshakeErr.Error(), "401") {
		t.Errorf("expected 401 error, got %v", handshakeErr)
	}

	// stop cancels the pending reconnect
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(eventTimeout):
		t.Fatal("stop did not cancel the reconnect delay")
	}
	if s.State() != Closed {
		t.Errorf("expected closed, got %s", s.State())
	}
}

func TestDialFailure(t *testing.T) {
	c := &caster{}
	s := NewSession(testOptions(), io.Discard, nil, WithDialer(c.dial), WithReconnectDelay(10*time.Millisecond))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, s.Events(), isState(Reconnecting))
	waitFor(t, s.Events(), isState(Reconnecting))
}

func TestStopWithFullQueue(t *testing.T) {
	c := &caster{}
	s := NewSession(testOptions(), io.Discard, nil, WithDialer(c.dial), WithReconnectDelay(time.Millisecond))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// nobody reads until the queue is full
	deadline := time.Now().Add(eventTimeout)
	for len(s.Events()) < cap(s.Events()) {
		if time.Now().After(deadline) {
			t.Fatal("event queue never filled")
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	var last Event
	n := 0
	for e := range s.Events() {
		last = e
		n++
	}
	if n != eventQueueLen {
		t.Errorf("expected %d events, got %d", eventQueueLen, n)
	}
	if last.Kind != StateChanged || last.State != Closed {
		t.Errorf("expected closed as the last event, got %+v", last)
	}
}

func TestForwardError(t *testing.T) {
	c := &caster{handlers: []func(net.Conn, *bufio.Reader){
		accept(t, "ICY 200 OK\r\n", []byte{0xAA}, true),
	}}
	s := NewSession(testOptions(), failWriter{}, fakeDecoder{stationMsg{id: 7}}, WithDialer(c.dial))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	// the write error is reported, decoding still happens
	seen := waitFor(t, s.Events(), func(e Event) bool { return e.Kind == Station })
	foundErr := false
	for _, e := range seen {
		if e.Kind == Error {
			foundErr = true
		}
	}
	if !foundErr {
		t.Errorf("expected forwarding error, got %+v", seen)
	}
	if s.State() != Streaming {
		t.Errorf("expected streaming, got %s", s.State())
	}
}

func TestStop(t *testing.T) {
	c := &caster{handlers: []func(net.Conn, *bufio.Reader){
		accept(t, "ICY 200 OK\r\n", nil, true),
	}}
	s := NewSession(testOptions(), io.Discard, nil, WithDialer(c.dial))
	if s.State() != Idle {
		t.Errorf("expected idle, got %s", s.State())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected second start to fail")
	}
	waitFor(t, s.Events(), isState(Streaming))

	s.Stop()
	s.Stop()
	if s.State() != Closed {
		t.Errorf("expected closed, got %s", s.State())
	}

	// drain until closed
	timeout := time.After(eventTimeout)
	for {
		select {
		case _, ok := <-s.Events():
			if !ok {
				if err := s.Start(context.Background()); err == nil {
					t.Error("expected start after stop to fail")
				}
				return
			}
		case <-timeout:
			t.Fatal("events not closed")
		}
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := NewSession(testOptions(), io.Discard, nil)
	s.Stop()
	s.Stop()
	if s.State() != Closed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if _, ok := <-s.Events(); ok {
		t.Error("expected closed events")
	}
	select {
	case <-s.Done():
	default:
		t.Error("expected done")
	}
}

func TestMinimumInterval(t *testing.T) {
	s := NewSession(Options{Interval: 10 * time.Millisecond}, io.Discard, nil)
	if s.opts.Interval != MinReportInterval {
		t.Errorf("expected %v, got %v", MinReportInterval, s.opts.Interval)
	}
	s = NewSession(Options{Interval: 3 * time.Second}, io.Discard, nil)
	if s.opts.Interval != 3*time.Second {
		t.Errorf("expected 3s, got %v", s.opts.Interval)
	}
}
