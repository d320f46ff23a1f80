// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package nmea

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Sentence struct {
	Type string
	Data []string
}

func checksum(s string) string {
	var sum uint8
	for i := 0; i < len(s); i++ {
		sum ^= s[i]
	}

	return fmt.Sprintf("%02X", sum)
}

func (s Sentence) String() string {
	sentence := s.Type
	for _, d := range s.Data {
		sentence = fmt.Sprintf("%s,%s", sentence, d)
	}

	if len(s.Data) == 0 {
		// always make sure the type is followed by a comma if there is no data
		sentence = fmt.Sprintf("%s,", sentence)
	}

	str := fmt.Sprintf("$%s*%s", sentence, checksum(sentence))
	return str
}

func (s Sentence) Bytes() []byte {
	return []byte(s.String())
}

// StripChecksum returns the line without the '*' delimited checksum suffix
// and the suffix itself (empty if there was none).
func StripChecksum(line string) (body string, sum string) {
	if i := strings.LastIndexByte(line, '*'); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

// degMin splits v into whole degrees and minutes rounded to the 5 decimals
// GGA carries, so minutes never print as 60.
func degMin(v float64) (deg, mins float64) {
	deg = math.Floor(v)
	mins = math.Round((v-deg)*60*1e5) / 1e5
	if mins >= 60 {
		deg++
		mins -= 60
	}
	return deg, mins
}

// GGA builds a GGA position report for the given position, as sent to NTRIP
// casters that need to know the rover's approximate location.
func GGA(t time.Time, lat, lon, alt float64) Sentence {
	latHemi := "N"
	if lat < 0 {
		latHemi = "S"
		lat = -lat
	}
	lonHemi := "E"
	if lon < 0 {
		lonHemi = "W"
		lon = -lon
	}

	latDeg, latMin := degMin(lat)
	lonDeg, lonMin := degMin(lon)

	t = t.UTC()
	return Sentence{
		Type: "GPGGA",
		Data: []string{
			fmt.Sprintf("%02d%02d%02d.%02d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/10000000),
			fmt.Sprintf("%02.0f%08.5f", latDeg, latMin),
			latHemi,
			fmt.Sprintf("%03.0f%08.5f", lonDeg, lonMin),
			lonHemi,
			"1",
			"12",
			"1.0",
			fmt.Sprintf("%.3f", alt),
			"M",
			"0.0",
			"M",
			"",
			"",
		},
	}
}
