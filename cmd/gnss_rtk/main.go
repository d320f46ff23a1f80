// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/postmarketOS/gnss_rtk/internal/config"
	"gitlab.com/postmarketOS/gnss_rtk/internal/gnss"
	"gitlab.com/postmarketOS/gnss_rtk/internal/ntrip"
	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
	"gitlab.com/postmarketOS/gnss_rtk/internal/pool"
	"gitlab.com/postmarketOS/gnss_rtk/internal/rtcm"
	"gitlab.com/postmarketOS/gnss_rtk/internal/sentence"
	"gitlab.com/postmarketOS/gnss_rtk/internal/server"
)

const ntripSource = "ntrip"

func usage() {
	flag.CommandLine.Usage()
}

func main() {
	var confFile string
	flag.StringVar(&confFile, "c", "/etc/gnss_rtk.conf", "Configuration file to use.")
	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Log every observation.")
	var help bool
	flag.BoolVar(&help, "h", false, "Print help and quit.")

	flag.Usage = func() {
		fmt.Println("usage: gnss_rtk [OPTION...]")
		fmt.Println("Options:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if help {
		usage()
		return
	}

	conf, err := config.Parse(confFile)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, conf, verbose); err != nil {
		log.Fatal(err)
	}
}

func logSink(d observation.Delta) error {
	for _, pv := range d.Values {
		log.Printf("%s: %s = %v", d.Source, pv.Path, pv.Value)
	}
	return nil
}

func sinks(ctx context.Context, conf *config.Config, verbose bool) (observation.Multi, error) {
	var out observation.Multi

	if verbose {
		out = append(out, observation.SinkFunc(logSink))
	}

	if conf.Mqtt.Broker != "" {
		m, err := observation.ConnectMQTT(conf.Mqtt.Broker, conf.Mqtt.ClientID, conf.Mqtt.TopicPrefix)
		if err != nil {
			return nil, fmt.Errorf("sinks(): %w", err)
		}
		fmt.Printf("Publishing observations to %s\n", conf.Mqtt.Broker)
		out = append(out, m)
	}

	if conf.Listen != "" {
		// connection broadcast pool
		connPool := pool.New()
		go connPool.Start()
		go func() {
			<-ctx.Done()
			connPool.Stop()
		}()

		srv := server.New(conf.Listen, connPool)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Print(err)
			}
		}()
		out = append(out, connPool)
	}

	return out, nil
}

func run(ctx context.Context, conf *config.Config, verbose bool) error {
	sink, err := sinks(ctx, conf, verbose)
	if err != nil {
		return fmt.Errorf("run(): %w", err)
	}

	dispatcher, err := sentence.New(conf.Source, sink)
	if err != nil {
		return fmt.Errorf("run(): %w", err)
	}

	receiver := gnss.NewReceiver(conf.DevicePath, conf.BaudRate)
	if err := receiver.Open(); err != nil {
		return fmt.Errorf("run(): %w", err)
	}
	defer receiver.Close()

	if len(conf.InitCommands) > 0 {
		fmt.Printf("Configuring receiver at %s\n", conf.DevicePath)
		if err := receiver.Configure(conf.InitCommands, false); err != nil {
			// not fatal
			fmt.Printf("error configuring receiver: %s\n", err)
		}
	}

	var session *ntrip.Session
	var events <-chan ntrip.Event
	if conf.Ntrip.Enabled {
		session = ntrip.NewSession(conf.NtripOptions(), receiver, rtcm.NewDecoder())
		if err := session.Start(ctx); err != nil {
			return fmt.Errorf("run(): %w", err)
		}
		defer session.Stop()
		events = session.Events()
		fmt.Printf("Streaming corrections from %s:%d/%s\n", conf.Ntrip.Host, conf.Ntrip.Port, conf.Ntrip.Mountpoint)
	}

	var driver gnss.Driver = receiver
	lines := make(chan string)
	stopChan := make(chan bool)
	errChan := make(chan error, 1)
	go driver.Start(lines, stopChan, errChan)

	fmt.Printf("Reading receiver at %s\n", conf.DevicePath)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Shutting down")
			close(stopChan)
			if session != nil {
				// corrections are written to the receiver until the session is done
				<-session.Done()
				for e := range session.Events() {
					handleEvent(e, sink)
				}
			}
			// unblocks the line reader
			receiver.Close()
			return nil
		case err := <-errChan:
			return fmt.Errorf("run(): %w", err)
		case line := <-lines:
			if err := dispatcher.Handle(line); err != nil {
				log.Print(err)
			}
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			handleEvent(e, sink)
		}
	}
}

func handleEvent(e ntrip.Event, sink observation.Sink) {
	switch e.Kind {
	case ntrip.StateChanged:
		fmt.Printf("NTRIP session %s\n", e.State)
	case ntrip.Error:
		fmt.Printf("NTRIP error: %s\n", e.Err)
	case ntrip.Station:
		err := sink.Emit(observation.Delta{
			Source:    ntripSource,
			Timestamp: time.Now(),
			Values:    []observation.PathValue{e.Station.Observation()},
		})
		if err != nil {
			log.Print(err)
		}
	}
}
