// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package sentence

import (
	"strconv"
	"strings"

	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
	"gitlab.com/postmarketOS/gnss_rtk/internal/sigmask"
)

// shorter BESTSATA sentences are treated as truncated
const minSatelliteFields = 10

// fields per satellite: constellation, id, status, signal mask
const satelliteGroup = 4

type Satellite struct {
	Constellation string   `json:"constellation"`
	ID            string   `json:"id"`
	SignalMask    string   `json:"signalMask"`
	Signals       []string `json:"signals"`
}

// parseSatellites handles #BESTSATA. The whole satellite list is one
// observation, rebuilt from every sentence.
func parseSatellites(r Record) []observation.PathValue {
	if r.NumFields() < minSatelliteFields {
		return nil
	}
	data, ok := r.Data()
	if !ok {
		return nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(data[0]))
	if err != nil || n < 0 {
		return nil
	}

	sats := make([]Satellite, 0, n)
	for i := 0; i < n; i++ {
		base := i*satelliteGroup + 1
		if base+satelliteGroup > len(data) {
			break
		}
		constellation := data[base]
		mask := data[base+3]
		sats = append(sats, Satellite{
			Constellation: constellation,
			ID:            data[base+1],
			SignalMask:    mask,
			Signals:       sigmask.Decode(constellation, mask),
		})
	}

	return []observation.PathValue{
		{Path: PathSatellitesInView, Value: sats},
	}
}
