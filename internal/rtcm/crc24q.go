// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package rtcm

import "github.com/snksoft/crc"

// CRC-24Q as used by RTCM3 and Qualcomm
var CRC24Q = &crc.Parameters{
	Width:      24,
	Polynomial: 0x864CFB,
	Init:       0,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0,
}

var crc24qTable = crc.NewTable(CRC24Q)

func crc24q(buf []byte) uint32 {
	return uint32(crc24qTable.CalculateCRC(buf))
}

// checkCRC reports whether the last three bytes of frame are the CRC of the
// rest of it.
func checkCRC(frame []byte) bool {
	if len(frame) < headerLen+crcLen {
		return false
	}
	l := len(frame) - crcLen
	crc := crc24q(frame[:l])
	return byte(crc>>16) == frame[l] &&
		byte(crc>>8) == frame[l+1] &&
		byte(crc) == frame[l+2]
}
