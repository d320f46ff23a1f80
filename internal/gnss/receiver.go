// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package gnss

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"go.bug.st/serial"
)

const (
	ackPrefix = "$command,"
	ackOK     = "response: OK"

	// lines read while waiting for an acknowledgement before giving up
	maxReplyLines = 200
)

var ErrNotOpen = errors.New("gnss: receiver not open")

var _ Driver = (*Receiver)(nil)

// Receiver is a Unicore receiver connected over a serial port, e.g. via
// /dev/ttyUSBN.
type Receiver struct {
	path string
	baud int
	open func() (io.ReadWriteCloser, error)

	mu      sync.Mutex
	port    io.ReadWriteCloser
	scanner *bufio.Scanner
}

func NewReceiver(path string, baud int) *Receiver {
	r := &Receiver{
		path: path,
		baud: baud,
	}
	r.open = func() (io.ReadWriteCloser, error) {
		return serial.Open(r.path, &serial.Mode{BaudRate: r.baud})
	}
	return r
}

// newPortReceiver wraps an already connected port.
func newPortReceiver(port io.ReadWriteCloser) *Receiver {
	return &Receiver{
		path: "port",
		open: func() (io.ReadWriteCloser, error) {
			return port, nil
		},
	}
}

// Open opens the port if it isn't open already.
func (r *Receiver) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port != nil {
		return nil
	}
	port, err := r.open()
	if err != nil {
		return fmt.Errorf("gnss.Receiver.Open(): %q: %w", r.path, err)
	}
	r.port = port
	r.scanner = bufio.NewScanner(port)
	return nil
}

func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	r.scanner = nil
	if err != nil {
		return fmt.Errorf("gnss.Receiver.Close(): %w", err)
	}
	return nil
}

// Start streams lines from the receiver until stop is signalled or the port
// returns an error. The port is closed when Start returns.
func (r *Receiver) Start(lines chan<- string, stop <-chan bool, errCh chan<- error) {
	if err := r.Open(); err != nil {
		errCh <- fmt.Errorf("gnss.Receiver.Start(): %w", err)
		return
	}
	defer r.Close()

	r.mu.Lock()
	scanner := r.scanner
	r.mu.Unlock()

scanLoop: // used to break out of select when a 'stop' is received
	for scanner.Scan() {
		select {
		case <-stop:
			break scanLoop
		case lines <- scanner.Text():
		}
	}
	if err := scanner.Err(); err != nil {
		errCh <- fmt.Errorf("gnss.Receiver.Start(): %w", err)
	}
}

// Write sends raw bytes, e.g. correction data, to the receiver.
func (r *Receiver) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port == nil {
		return 0, ErrNotOpen
	}
	n, err := r.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("gnss.Receiver.Write(): %w", err)
	}
	return n, nil
}

// SendCommand writes a command line to the receiver. If acked is set, it reads
// until the receiver acknowledges the command and returns the lines read
// before the acknowledgement. It must not be used while Start is running,
// since both read from the port.
func (r *Receiver) SendCommand(cmd string, acked bool) (out []string, err error) {
	cmd = strings.TrimSpace(cmd)
	if _, err = r.Write([]byte(cmd + "\r\n")); err != nil {
		return nil, fmt.Errorf("gnss.Receiver.SendCommand(): %w", err)
	}
	if !acked {
		return nil, nil
	}

	r.mu.Lock()
	scanner := r.scanner
	r.mu.Unlock()
	if scanner == nil {
		return nil, fmt.Errorf("gnss.Receiver.SendCommand(): %w", ErrNotOpen)
	}

	prefix := strings.ToUpper(ackPrefix + cmd)
	for c := 0; c < maxReplyLines && scanner.Scan(); c++ {
		line := scanner.Text()
		if !strings.HasPrefix(strings.ToUpper(line), prefix) {
			out = append(out, line)
			continue
		}
		if !strings.Contains(line, ackOK) {
			return out, fmt.Errorf("gnss.Receiver.SendCommand(): %q rejected: %q", cmd, line)
		}
		return out, nil
	}
	if err = scanner.Err(); err != nil {
		return out, fmt.Errorf("gnss.Receiver.SendCommand(): %w", err)
	}
	return out, fmt.Errorf("gnss.Receiver.SendCommand(): no acknowledgement for %q", cmd)
}

// Configure sends each command and waits for it to be acknowledged. Unless
// strict is set, failed commands are logged and the rest are still sent.
func (r *Receiver) Configure(cmds []string, strict bool) error {
	if err := r.Open(); err != nil {
		return fmt.Errorf("gnss.Receiver.Configure(): %w", err)
	}

	var failed int
	for _, c := range cmds {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if _, err := r.SendCommand(c, true); err != nil {
			err = fmt.Errorf("gnss.Receiver.Configure(): %w", err)
			if strict {
				return err
			}
			log.Println(err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("gnss.Receiver.Configure(): %d of %d commands failed", failed, len(cmds))
	}
	return nil
}
