// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gitlab.com/postmarketOS/gnss_rtk/internal/gnss"
	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
	"gitlab.com/postmarketOS/gnss_rtk/internal/sentence"
)

func usage() {
	flag.CommandLine.Usage()
}

func main() {
	var devPath string
	flag.StringVar(&devPath, "d", "/dev/ttyUSB0", "Path to the receiver's serial device")
	var baud int
	flag.IntVar(&baud, "b", 115200, "Baud rate")
	var wait time.Duration
	flag.DurationVar(&wait, "t", 2*time.Second, "How long to collect the receiver's configuration.")

	var help bool
	flag.BoolVar(&help, "h", false, "Print help and quit.")

	flag.Usage = func() {
		fmt.Println("usage: unictl [OPTION...] COMMAND ")
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println("Commands:")
		fmt.Printf("  %-12s\t%s\n", "send <command...>", "Send a command and wait for it to be acknowledged.")
		fmt.Printf("  %-12s\t%s\n", "config", "Print the receiver configuration.")
		fmt.Printf("  %-12s\t%s\n", "save", "Save the current configuration on the receiver.")
		fmt.Printf("  %-12s\t%s\n", "reset", "Reset the receiver.")
	}

	flag.Parse()

	if help {
		usage()
		return
	}

	receiver := gnss.NewReceiver(devPath, baud)
	if err := receiver.Open(); err != nil {
		log.Fatal(err)
	}
	defer receiver.Close()

	switch cmd := flag.Arg(0); cmd {
	case "send":
		if len(flag.Args()) < 2 {
			usage()
			return
		}
		if err := send(receiver, strings.Join(flag.Args()[1:], " ")); err != nil {
			log.Fatal(err)
		}
	case "config":
		entries, err := readConfig(receiver, wait)
		if err != nil {
			log.Fatal(err)
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, entries[k])
		}
	case "save":
		if err := send(receiver, "SAVECONFIG"); err != nil {
			log.Fatal(err)
		}
	case "reset":
		// the receiver restarts without acknowledging
		if _, err := receiver.SendCommand("RESET", false); err != nil {
			log.Fatal(err)
		}
	default:
		usage()
		return
	}
}

func send(r *gnss.Receiver, cmd string) error {
	out, err := r.SendCommand(cmd, true)
	for _, l := range out {
		fmt.Println(l)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: OK\n", cmd)
	return nil
}

// readConfig asks for the configuration and collects the replies for the
// given time.
func readConfig(r *gnss.Receiver, wait time.Duration) (sentence.ConfigEntries, error) {
	discard := observation.SinkFunc(func(observation.Delta) error { return nil })
	d, err := sentence.New("unictl", discard)
	if err != nil {
		return nil, err
	}

	if _, err := r.SendCommand("CONFIG", false); err != nil {
		return nil, err
	}

	lines := make(chan string)
	stop := make(chan bool)
	errCh := make(chan error, 1)
	go r.Start(lines, stop, errCh)
	defer close(stop)

	return collect(d, lines, errCh, time.After(wait))
}

// collect feeds lines to d until timeout. A line that fails is logged and
// collection goes on.
func collect(d *sentence.Dispatcher, lines <-chan string, errCh <-chan error, timeout <-chan time.Time) (sentence.ConfigEntries, error) {
	for {
		select {
		case line := <-lines:
			if err := d.Handle(line); err != nil {
				log.Print(err)
			}
		case err := <-errCh:
			return nil, err
		case <-timeout:
			return d.Config(), nil
		}
	}
}
