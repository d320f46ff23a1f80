// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ntrip

import (
	"strconv"

	"gitlab.com/postmarketOS/gnss_rtk/internal/geo"
	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
)

type State int32

const (
	Idle State = iota
	Connecting
	Streaming
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type EventKind int

const (
	// StateChanged carries the new State.
	StateChanged EventKind = iota
	// Error carries a connection or forwarding error. The session keeps
	// running.
	Error
	// Station carries a reference station location decoded from the
	// correction stream.
	Station
)

type Event struct {
	Kind    EventKind
	State   State
	Err     error
	Station StationLocation
}

const PathReferenceStation = "navigation.gnss.rtk.referenceStation"

type StationLocation struct {
	ID       int
	Position geo.Geodetic
}

type stationRecord struct {
	Name     string       `json:"name"`
	Position geo.Geodetic `json:"position"`
}

// Observation returns the station location as an observation, named by the
// station id.
func (l StationLocation) Observation() observation.PathValue {
	return observation.PathValue{
		Path: PathReferenceStation,
		Value: stationRecord{
			Name:     strconv.Itoa(l.ID),
			Position: l.Position,
		},
	}
}
