// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package sentence

import (
	"math"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
)

const knotsToMetersPerSecond = 1852.0 / 3600.0

var fixQualities = map[string]string{
	"0": "no GPS",
	"1": "GNSS Fix",
	"2": "DGNSS fix",
	"3": "Precise GNSS",
	"4": "RTK fixed integer",
	"5": "RTK float",
	"6": "Estimated (DR) mode",
	"7": "Manual input",
	"8": "Simulator mode",
}

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Knots converts a speed in knots to m/s, NaN if it can't be parsed.
func Knots(raw string) any {
	v, ok := Float(raw).(float64)
	if !ok || math.IsNaN(v) {
		return math.NaN()
	}
	return v * knotsToMetersPerSecond
}

// $GNGGA,<utc>,<lat>,<N/S>,<lon>,<E/W>,<quality>,<#SVs>,<hdop>,<alt>,M,
// <sep>,M,<dgps age>,<dgps id>
var ggaTable = Table{
	Converters: []Converter{
		{5, PathMethodQuality, fixQuality},
		{6, PathSatellites, Int},
		{7, PathHDOP, Float},
		{8, PathAntennaAltitude, Float},
		{10, PathGeoidalSeparation, Float},
	},
}

// $GNRMC,<utc>,<status>,<lat>,<N/S>,<lon>,<E/W>,<sog>,<cog>,<date>,<mag var>,<E/W>
var rmcTable = Table{
	Converters: []Converter{
		{6, PathSpeedOverGround, Knots},
		{7, PathCourseTrue, Radians},
		{9, PathMagneticVariation, Radians},
	},
}

// $GNVTG,<cog true>,T,<cog mag>,M,<sog knots>,N,<sog km/h>,K
var vtgTable = Table{
	Converters: []Converter{
		{0, PathCourseTrue, Radians},
		{2, PathCourseMagnetic, Radians},
		{4, PathSpeedOverGround, Knots},
	},
}

func fixQuality(raw string) any {
	if q, ok := fixQualities[raw]; ok {
		return q
	}
	return raw
}

// baseSentence stops go-nmea at the base sentence so every field can be
// converted on its own.
func baseSentence(s gonmea.BaseSentence) (gonmea.Sentence, error) {
	return s, nil
}

// parseStandard handles the standard NMEA sentences. go-nmea splits the
// sentence without verifying the checksum; a field that doesn't parse
// becomes NaN and the rest of the sentence is still reported.
func parseStandard(r Record) []observation.PathValue {
	p := gonmea.SentenceParser{
		CheckCRC: func(gonmea.BaseSentence, string) error { return nil },
		CustomParsers: map[string]gonmea.ParserFunc{
			gonmea.TypeGGA: baseSentence,
			gonmea.TypeRMC: baseSentence,
			gonmea.TypeVTG: baseSentence,
		},
	}
	s, err := p.Parse(r.Raw)
	if err != nil {
		return nil
	}
	base, ok := s.(gonmea.BaseSentence)
	if !ok {
		return nil
	}

	fields := Record{Fields: base.Fields}
	switch base.Type {
	case gonmea.TypeGGA:
		return fromGGA(fields)
	case gonmea.TypeRMC:
		return fromRMC(fields)
	case gonmea.TypeVTG:
		return vtgTable.Parse(fields)
	}
	return nil
}

func field(r Record, i int) string {
	if i < len(r.Fields) {
		return r.Fields[i]
	}
	return ""
}

// position converts a lat/lon field pair, NaN if either doesn't parse.
func position(r Record, lat, lon int) any {
	la, err := gonmea.ParseLatLong(field(r, lat) + " " + field(r, lat+1))
	if err != nil {
		return math.NaN()
	}
	lo, err := gonmea.ParseLatLong(field(r, lon) + " " + field(r, lon+1))
	if err != nil {
		return math.NaN()
	}
	return Position{Latitude: la, Longitude: lo}
}

func fromGGA(r Record) []observation.PathValue {
	var values []observation.PathValue
	if field(r, 5) != "0" {
		values = append(values, observation.PathValue{Path: PathPosition, Value: position(r, 1, 3)})
	}
	values = append(values, ggaTable.Parse(r)...)

	if age := field(r, 12); age != "" {
		values = append(values,
			observation.PathValue{Path: PathDifferentialAge, Value: Float(age)},
			observation.PathValue{Path: PathDifferentialRef, Value: String(field(r, 13))},
		)
	}
	return values
}

func fromRMC(r Record) []observation.PathValue {
	if field(r, 1) != "A" {
		return nil
	}

	values := []observation.PathValue{{Path: PathPosition, Value: position(r, 2, 4)}}
	values = append(values, rmcTable.Parse(r)...)
	if field(r, 10) == gonmea.West {
		for i := range values {
			if v, ok := values[i].Value.(float64); ok && values[i].Path == PathMagneticVariation {
				values[i].Value = -v
			}
		}
	}

	t, terr := gonmea.ParseTime(field(r, 0))
	d, derr := gonmea.ParseDate(field(r, 8))
	if terr == nil && derr == nil && t.Valid && d.Valid {
		dt := time.Date(2000+d.YY, time.Month(d.MM), d.DD,
			t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
		values = append(values, observation.PathValue{
			Path:  PathDatetime,
			Value: dt.Format(time.RFC3339Nano),
		})
	}
	return values
}
