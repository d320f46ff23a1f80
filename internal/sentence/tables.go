// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package sentence

const (
	PathHeading           = "navigation.headingTrue"
	PathPitch             = "navigation.attitude.pitch"
	PathRoll              = "navigation.attitude.roll"
	PathSolutionStatus    = "navigation.gnss.heading.solutionStatus"
	PathPositionType      = "navigation.gnss.heading.positionType"
	PathBaselineLength    = "navigation.gnss.heading.baselineLength"
	PathHeadingStdDev     = "navigation.gnss.heading.headingStdDev"
	PathPitchStdDev       = "navigation.gnss.heading.pitchStdDev"
	PathStationID         = "navigation.gnss.heading.stationId"
	PathTracked           = "navigation.gnss.heading.satellitesTracked"
	PathUsed              = "navigation.gnss.heading.satellitesUsed"
	PathHeadingQuality    = "navigation.gnss.heading.quality"
	PathHeadingAge        = "navigation.gnss.heading.differentialAge"
	PathSatellitesInView  = "navigation.gnss.satellitesInView"
	PathReceiverConfig    = "navigation.gnss.receiver.config"
	PathPosition          = "navigation.position"
	PathAntennaAltitude   = "navigation.gnss.antennaAltitude"
	PathSatellites        = "navigation.gnss.satellites"
	PathHDOP              = "navigation.gnss.horizontalDilution"
	PathMethodQuality     = "navigation.gnss.methodQuality"
	PathGeoidalSeparation = "navigation.gnss.geoidalSeparation"
	PathDifferentialAge   = "navigation.gnss.differentialAge"
	PathDifferentialRef   = "navigation.gnss.differentialReference"
	PathSpeedOverGround   = "navigation.speedOverGround"
	PathCourseTrue        = "navigation.courseOverGroundTrue"
	PathCourseMagnetic    = "navigation.courseOverGroundMagnetic"
	PathMagneticVariation = "navigation.magneticVariation"
	PathDatetime          = "navigation.datetime"
)

// position type reported while the receiver has no heading solution
const positionNone = "NONE"

// #UNIHEADINGA,<header>;<sol stat>,<pos type>,<length>,<heading>,<pitch>,
// <reserved>,<hdg std dev>,<ptch std dev>,<stn id>,<#SVs>,<#solnSVs>,...
var uniHeading = Table{
	Semicolon: true,
	Converters: []Converter{
		{0, PathSolutionStatus, String},
		{1, PathPositionType, String},
		{2, PathBaselineLength, Float},
		{3, PathHeading, Heading},
		{4, PathPitch, Radians},
		{6, PathHeadingStdDev, Radians},
		{7, PathPitchStdDev, Radians},
		{8, PathStationID, String},
		{9, PathTracked, Int},
		{10, PathUsed, Int},
	},
	// heading is meaningless without a position solution
	Rule: clearWhen(PathPositionType, positionNone, PathHeading),
}

// $GNHPR,<utc>,<heading>,<pitch>,<roll>,<QF>,<satNo>,<age>,<stn id>
var hpr = Table{
	Converters: []Converter{
		{1, PathHeading, Heading},
		{2, PathPitch, Radians},
		{3, PathRoll, Radians},
		{4, PathHeadingQuality, Int},
		{5, PathUsed, Int},
		{6, PathHeadingAge, Float},
		{7, PathStationID, String},
	},
}
