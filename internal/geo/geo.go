// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geo converts between WGS84 geodetic coordinates and ECEF.
package geo

import "math"

const (
	// WGS84 semi-major axis, meters
	SemiMajorAxis = 6378137.0
	// WGS84 first eccentricity squared
	EccentricitySq = 0.00669437999014

	// number of refinement passes in ECEFToGeodetic
	iterations = 10
)

// ECEF is an Earth-Centered-Earth-Fixed position in meters.
type ECEF struct {
	X float64
	Y float64
	Z float64
}

// Geodetic is a WGS84 position. Latitude and longitude are in degrees,
// height is meters above the ellipsoid.
type Geodetic struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Height    float64 `json:"altitude"`
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

func rad2deg(r float64) float64 {
	return r * 180 / math.Pi
}

// prime vertical radius of curvature
func primeVertical(sinLat float64) float64 {
	return SemiMajorAxis / math.Sqrt(1-EccentricitySq*sinLat*sinLat)
}

// GeodeticToECEF converts latitude/longitude in degrees and altitude in
// meters to ECEF.
func GeodeticToECEF(lat, lon, alt float64) ECEF {
	latR := deg2rad(lat)
	lonR := deg2rad(lon)
	sinLat := math.Sin(latR)
	n := primeVertical(sinLat)

	return ECEF{
		X: (n + alt) * math.Cos(latR) * math.Cos(lonR),
		Y: (n + alt) * math.Cos(latR) * math.Sin(lonR),
		Z: (n*(1-EccentricitySq) + alt) * sinLat,
	}
}

// ECEFToGeodetic converts an ECEF position in meters to geodetic
// coordinates. The latitude is refined a fixed number of times, which keeps
// the result deterministic for a given input.
func ECEFToGeodetic(p ECEF) Geodetic {
	lon := math.Atan2(p.Y, p.X)
	horiz := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, horiz*(1-EccentricitySq))
	var n, h float64
	for i := 0; i < iterations; i++ {
		n = primeVertical(math.Sin(lat))
		h = horiz/math.Cos(lat) - n
		lat = math.Atan2(p.Z, horiz*(1-EccentricitySq*n/(n+h)))
	}
	n = primeVertical(math.Sin(lat))
	h = horiz/math.Cos(lat) - n

	return Geodetic{
		Latitude:  rad2deg(lat),
		Longitude: rad2deg(lon),
		Height:    h,
	}
}

// FromScaledECEF converts integer ECEF coordinates expressed in 1/scale
// meters, as carried by station position messages, to geodetic coordinates.
func FromScaledECEF(x, y, z int64, scale float64) Geodetic {
	return ECEFToGeodetic(ECEF{
		X: float64(x) / scale,
		Y: float64(y) / scale,
		Z: float64(z) / scale,
	})
}
