// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ntrip is a client for NTRIP casters. A Session keeps a connection
// to one mountpoint open, reports the rover position to the caster and
// forwards the correction stream to the receiver.
package ntrip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/postmarketOS/gnss_rtk/internal/geo"
)

const (
	MinReportInterval     = time.Second
	DefaultReconnectDelay = 5 * time.Second

	readBufferSize = 4096
	eventQueueLen  = 64
)

// Options for a session. They are copied when the session is created.
type Options struct {
	Host       string
	Port       int
	Mountpoint string
	Username   string
	Password   string
	// Position is the rover position reported to the caster.
	Position geo.ECEF
	// Interval between position reports, at least MinReportInterval.
	Interval time.Duration
}

// Decoder splits the correction stream into messages. It returns the first
// message in buf and the number of bytes consumed.
type Decoder interface {
	Decode(buf []byte) (msg any, n int, err error)
}

// StationPosition is implemented by decoded messages that carry a reference
// station position in integer ECEF units of 1/Scale() meters.
type StationPosition interface {
	StationID() int
	ARP() (x, y, z int64)
	Scale() float64
}

type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

type Option func(*Session)

// WithReconnectDelay sets the fixed delay between a lost connection and the
// next attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Session) {
		s.reconnectDelay = d
	}
}

func WithDialer(d Dialer) Option {
	return func(s *Session) {
		s.dial = d
	}
}

type Session struct {
	opts           Options
	out            io.Writer
	decoder        Decoder
	dial           Dialer
	reconnectDelay time.Duration
	now            func() time.Time

	state  atomic.Int32
	events chan Event

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewSession creates an idle session. Corrections are written to out as they
// arrive; decoder may be nil if station locations are not wanted.
func NewSession(opts Options, out io.Writer, decoder Decoder, options ...Option) *Session {
	var d net.Dialer
	s := &Session{
		opts:           opts,
		out:            out,
		decoder:        decoder,
		dial:           d.DialContext,
		reconnectDelay: DefaultReconnectDelay,
		now:            time.Now,
		events:         make(chan Event, eventQueueLen),
		done:           make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}
	if s.opts.Interval < MinReportInterval {
		s.opts.Interval = MinReportInterval
	}
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Events returns the session's events, in the order they happened. The last
// event is always the Closed state, after which the channel is closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start connects to the caster in the background. The session keeps
// reconnecting until Stop is called or ctx is done.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != Idle {
		return fmt.Errorf("ntrip.Session.Start(): session is %s", st)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.state.Store(int32(Connecting))
	go s.run(ctx)

	return nil
}

// Stop closes the connection, cancels pending timers and waits for the
// session to finish. It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		if cancel == nil {
			// never started
			s.state.Store(int32(Closed))
			close(s.events)
			close(s.done)
		}
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-s.done
		}
	})
}

// Done is closed once the session has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) emit(ctx context.Context, e Event) {
	select {
	case s.events <- e:
	case <-ctx.Done():
	}
}

func (s *Session) setState(ctx context.Context, st State) {
	s.state.Store(int32(st))
	s.emit(ctx, Event{Kind: StateChanged, State: st})
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	for {
		s.setState(ctx, Connecting)
		err := s.connect(ctx)
		if ctx.Err() != nil {
			break
		}
		s.emit(ctx, Event{Kind: Error, Err: err})

		s.setState(ctx, Reconnecting)
		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.state.Store(int32(Closed))
	s.emitLast(Event{Kind: StateChanged, State: Closed})
	close(s.events)
}

// emitLast queues e without blocking. If nobody is reading and the queue is
// full, the oldest unread event is dropped to make room, so e is always the
// last event delivered. Only run sends on events.
func (s *Session) emitLast(e Event) {
	for {
		select {
		case s.events <- e:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}

// connect runs one connection to the caster until it fails or ctx is done.
func (s *Session) connect(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ntrip.Session.connect(): %w", err)
	}
	defer conn.Close()

	// unblocks reads and writes on stop
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	r, err := handshake(conn, s.opts)
	if err != nil {
		return fmt.Errorf("ntrip.Session.connect(): %w", err)
	}

	s.setState(ctx, Streaming)
	return s.stream(ctx, conn, r)
}

func (s *Session) stream(ctx context.Context, conn net.Conn, r io.Reader) error {
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		for {
			buf := make([]byte, readBufferSize)
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-quit:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	if err := report(conn, s.opts.Position, s.now()); err != nil {
		return err
	}
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := report(conn, s.opts.Position, s.now()); err != nil {
				return err
			}
		case chunk := <-chunks:
			s.handleChunk(ctx, chunk)
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("ntrip.Session.stream(): connection closed by caster")
			}
			return fmt.Errorf("ntrip.Session.stream(): %w", err)
		}
	}
}

// handleChunk forwards the chunk to the receiver and then looks for station
// positions in it. Decode errors end decoding of the chunk; a chunk may end
// in a partial frame.
func (s *Session) handleChunk(ctx context.Context, chunk []byte) {
	if _, err := s.out.Write(chunk); err != nil {
		s.emit(ctx, Event{Kind: Error, Err: fmt.Errorf("ntrip.Session.handleChunk(): %w", err)})
	}

	if s.decoder == nil {
		return
	}

	for buf := chunk; len(buf) > 0 && ctx.Err() == nil; {
		msg, n, err := s.decoder.Decode(buf)
		if err != nil || n <= 0 {
			return
		}
		buf = buf[n:]

		sp, ok := msg.(StationPosition)
		if !ok {
			continue
		}
		x, y, z := sp.ARP()
		s.emit(ctx, Event{
			Kind: Station,
			Station: StationLocation{
				ID:       sp.StationID(),
				Position: geo.FromScaledECEF(x, y, z, sp.Scale()),
			},
		})
	}
}
